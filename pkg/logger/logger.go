// Package logger provides the structured logger used across the service.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls log level, format and destination.
type Config struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"` // "json" or "text"
	Output string `yaml:"output" env:"LOG_OUTPUT"` // "stdout", "stderr" or "file"
	File   string `yaml:"file" env:"LOG_FILE"`
	// MaxSizeMB bounds a log file before rotation. Zero means 100MB.
	MaxSizeMB  int `yaml:"max_size_mb" env:"LOG_MAX_SIZE_MB"`
	MaxBackups int `yaml:"max_backups" env:"LOG_MAX_BACKUPS"`
}

// Logger wraps a logrus entry carrying the component field.
type Logger struct {
	entry *logrus.Entry
}

// New builds a logger from config. Unknown levels fall back to info.
func New(component string, cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	l.SetOutput(outputFor(cfg))

	return &Logger{entry: l.WithField("component", component)}
}

// NewDefault returns a text logger on stderr at info level.
func NewDefault(component string) *Logger {
	return New(component, Config{Level: "info", Format: "text", Output: "stderr"})
}

func outputFor(cfg Config) io.Writer {
	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case "file":
		if cfg.File == "" {
			return os.Stderr
		}
		return &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
	case "stdout":
		return os.Stdout
	default:
		return os.Stderr
	}
}

// WithField returns a logger with an extra structured field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithFields returns a logger with extra structured fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

// WithError attaches an error field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

func (l *Logger) Debug(args ...interface{}) { l.entry.Debug(args...) }
func (l *Logger) Info(args ...interface{})  { l.entry.Info(args...) }
func (l *Logger) Warn(args ...interface{})  { l.entry.Warn(args...) }
func (l *Logger) Error(args ...interface{}) { l.entry.Error(args...) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
