// Package config loads the service configuration from an optional YAML
// file overlaid with environment variables. A .env file in the working
// directory is loaded first so local runs need no exported variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/arzwatch/arzwatch/pkg/logger"
)

// Config is the root configuration for the service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Logging   logger.Config   `yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host" env:"SERVER_HOST"`
	Port            int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
	CORSOrigins     []string      `yaml:"cors_origins" env:"CORS_ORIGINS"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig selects the persistence backend. An empty DSN keeps
// everything in memory.
type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"DATABASE_DSN"`
}

// RedisConfig controls the response cache. An empty address disables it.
type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB"`
	CacheTTL time.Duration `yaml:"cache_ttl" env:"RESPONSE_CACHE_TTL"`
}

// ScraperConfig controls the scheduled scrape runs and the rendering
// engine they share.
type ScraperConfig struct {
	Interval      time.Duration `yaml:"interval" env:"SCRAPE_INTERVAL"`
	InitialRun    bool          `yaml:"initial_run" env:"SCRAPE_INITIAL_RUN"`
	Timeout       time.Duration `yaml:"timeout" env:"SCRAPE_TIMEOUT"`
	MaxSessions   int           `yaml:"max_sessions" env:"SCRAPE_MAX_SESSIONS"`
	MinFreeMemMB  uint64        `yaml:"min_free_mem_mb" env:"SCRAPE_MIN_FREE_MEM_MB"`
	SnapshotDir   string        `yaml:"snapshot_dir" env:"SCRAPE_SNAPSHOT_DIR"`
	SnapshotStore string        `yaml:"snapshot_store" env:"SCRAPE_SNAPSHOT_STORE"`
}

// AuthConfig carries the shared secret for administrative routes.
type AuthConfig struct {
	AdminToken string `yaml:"admin_token" env:"ADMIN_TOKEN"`
}

// RateLimitConfig is the burst guard in front of the daily quota.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"RATE_LIMIT_RPS"`
	Burst             int     `yaml:"burst" env:"RATE_LIMIT_BURST"`
}

// Load reads the YAML file at path (when it exists), overlays environment
// variables and fills in defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// Environment-only configuration.
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Redis.CacheTTL == 0 {
		c.Redis.CacheTTL = 5 * time.Minute
	}
	if c.Scraper.Interval == 0 {
		c.Scraper.Interval = 10 * time.Minute
	}
	if c.Scraper.Timeout == 0 {
		c.Scraper.Timeout = 10 * time.Second
	}
	if c.Scraper.MaxSessions == 0 {
		c.Scraper.MaxSessions = 4
	}
	if c.Scraper.MinFreeMemMB == 0 {
		c.Scraper.MinFreeMemMB = 512
	}
	if c.Scraper.SnapshotStore == "" {
		c.Scraper.SnapshotStore = "memory"
	}
	if c.Scraper.SnapshotDir == "" {
		c.Scraper.SnapshotDir = "scrapers_output"
	}
	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 5
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 10
	}
}
