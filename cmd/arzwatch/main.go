// Command arzwatch runs the price scraping service and its HTTP API.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	app "github.com/arzwatch/arzwatch/internal/app"
	"github.com/arzwatch/arzwatch/internal/app/httpapi"
	"github.com/arzwatch/arzwatch/internal/app/storage/memory"
	"github.com/arzwatch/arzwatch/internal/app/storage/postgres"
	"github.com/arzwatch/arzwatch/internal/app/storage/snapfile"
	"github.com/arzwatch/arzwatch/internal/config"
	"github.com/arzwatch/arzwatch/internal/middleware"
	"github.com/arzwatch/arzwatch/internal/render"
	"github.com/arzwatch/arzwatch/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "arzwatch: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.New("arzwatch", cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, closeStores, err := buildStores(cfg, log)
	if err != nil {
		return err
	}
	defer closeStores()

	engine, err := render.NewRod(render.RodConfig{
		MaxSessions:   cfg.Scraper.MaxSessions,
		MinFreeMemory: cfg.Scraper.MinFreeMemMB * 1024 * 1024,
	}, log)
	if err != nil {
		log.WithError(err).Warn("browser unavailable; running in API-only mode")
	} else {
		defer func() {
			if err := engine.Close(); err != nil {
				log.WithError(err).Warn("browser shutdown failed")
			}
		}()
	}

	var appEngine render.Engine
	if engine != nil {
		appEngine = engine
	}

	application, err := app.New(stores, app.Options{
		Engine:         appEngine,
		ScrapeInterval: cfg.Scraper.Interval,
		ScrapeTimeout:  cfg.Scraper.Timeout,
		InitialRun:     cfg.Scraper.InitialRun,
	}, log)
	if err != nil {
		return err
	}

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := application.Stop(stopCtx); err != nil {
			log.WithError(err).Warn("application shutdown failed")
		}
	}()

	var cache *httpapi.ResponseCache
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		cache = httpapi.NewResponseCache(client, cfg.Redis.CacheTTL, log)
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
	limiter.StartCleanup(10 * time.Minute)

	handler := httpapi.NewHandler(httpapi.Deps{
		Snapshots:  application.Snapshots,
		Identities: application.Identities,
		Ledger:     application.Ledger,
		Cache:      cache,
		Managers:   application.Managers,
		AdminToken: cfg.Auth.AdminToken,
		Limiter:    limiter,
		CORS:       cfg.Server.CORSOrigins,
		Log:        log,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown failed")
	}
	return nil
}

// buildStores selects the persistence backends. A database DSN takes
// precedence; otherwise snapshots go to the configured snapshot store and
// identities stay in memory.
func buildStores(cfg *config.Config, log *logger.Logger) (app.Stores, func(), error) {
	if cfg.Database.DSN != "" {
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return app.Stores{}, nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return app.Stores{}, nil, fmt.Errorf("ping database: %w", err)
		}
		if err := postgres.EnsureSchema(context.Background(), db); err != nil {
			db.Close()
			return app.Stores{}, nil, err
		}
		store := postgres.New(db)
		log.Info("using postgres storage")
		return app.Stores{Snapshots: store, Identities: store, Commands: store},
			func() { db.Close() }, nil
	}

	stores := app.Stores{}
	if cfg.Scraper.SnapshotStore == "file" {
		stores.Snapshots = snapfile.New(cfg.Scraper.SnapshotDir)
		log.WithField("dir", cfg.Scraper.SnapshotDir).Info("using file snapshot storage")
	}

	mem := memory.New()
	if stores.Snapshots == nil {
		stores.Snapshots = mem
	}
	stores.Identities = mem
	stores.Commands = mem
	return stores, func() {}, nil
}
