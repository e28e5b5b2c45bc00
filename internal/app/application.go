// Package app wires stores, services and the scrape scheduler into one
// lifecycle-managed application.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/arzwatch/arzwatch/internal/app/domain/market"
	identitysvc "github.com/arzwatch/arzwatch/internal/app/services/identity"
	"github.com/arzwatch/arzwatch/internal/app/services/quota"
	"github.com/arzwatch/arzwatch/internal/app/services/scrape"
	"github.com/arzwatch/arzwatch/internal/app/storage"
	"github.com/arzwatch/arzwatch/internal/app/storage/memory"
	"github.com/arzwatch/arzwatch/internal/app/system"
	"github.com/arzwatch/arzwatch/internal/render"
	"github.com/arzwatch/arzwatch/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Snapshots  storage.SnapshotStore
	Identities storage.IdentityStore
	Commands   storage.CommandLogStore
}

// Options tunes the scrape side of the application.
type Options struct {
	// Engine renders pages for the scrapers. Nil disables scraping; the
	// API then serves whatever snapshots the store already has.
	Engine render.Engine

	ScrapeInterval   time.Duration
	ScrapeTimeout    time.Duration
	InitialRun       bool
	IdentityDefaults identitysvc.Defaults
}

// Application ties the services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Identities *identitysvc.Service
	Ledger     *quota.Ledger
	Snapshots  storage.SnapshotStore
	Managers   []*scrape.Manager
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Snapshots == nil {
		stores.Snapshots = mem
	}
	if stores.Identities == nil {
		stores.Identities = mem
	}
	if stores.Commands == nil {
		stores.Commands = mem
	}

	manager := system.NewManager()

	identityService := identitysvc.NewService(stores.Identities, stores.Commands, opts.IdentityDefaults, log)
	ledger := quota.NewLedger(stores.Identities, log)

	application := &Application{
		manager:    manager,
		log:        log,
		Identities: identityService,
		Ledger:     ledger,
		Snapshots:  stores.Snapshots,
	}

	if opts.Engine != nil {
		managers, err := buildManagers(opts.Engine, stores.Snapshots, opts.ScrapeTimeout, log)
		if err != nil {
			return nil, err
		}
		application.Managers = managers

		scheduler := scrape.NewScheduler(managers, opts.ScrapeInterval, opts.InitialRun, log)
		if err := manager.Register(scheduler); err != nil {
			return nil, fmt.Errorf("register scheduler: %w", err)
		}
	} else {
		log.Warn("no render engine configured; scraping disabled")
	}

	return application, nil
}

// buildManagers assembles the per-source scraper managers: TGJU with its
// three categories, ArzDigital and CoinEx with crypto.
func buildManagers(engine render.Engine, store storage.SnapshotStore, timeout time.Duration, log *logger.Logger) ([]*scrape.Manager, error) {
	var tgjuScrapers []*scrape.Scraper
	for _, category := range []market.Category{market.CategoryGold, market.CategoryCoin, market.CategoryCurrency} {
		plan, err := scrape.TGJUPlan(category)
		if err != nil {
			return nil, fmt.Errorf("tgju %s plan: %w", category, err)
		}
		tgjuScrapers = append(tgjuScrapers, scrape.NewScraper(plan, engine, timeout, log))
	}

	return []*scrape.Manager{
		scrape.NewManager(market.SourceTGJU, tgjuScrapers, store, log),
		scrape.NewManager(market.SourceArzDigital, []*scrape.Scraper{
			scrape.NewScraper(scrape.ArzDigitalPlan(), engine, timeout, log),
		}, store, log),
		scrape.NewManager(market.SourceCoinEx, []*scrape.Scraper{
			scrape.NewScraper(scrape.CoinExPlan(), engine, timeout, log),
		}, store, log),
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
