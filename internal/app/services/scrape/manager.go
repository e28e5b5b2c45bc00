package scrape

import (
	"context"
	"sync"

	"github.com/arzwatch/arzwatch/internal/app/domain/market"
	"github.com/arzwatch/arzwatch/internal/app/storage"
	"github.com/arzwatch/arzwatch/pkg/logger"
)

// RunResult is the outcome for one category within a manager run.
type RunResult struct {
	Records []market.PriceRecord
	Report  Report
	Err     error
}

// Manager orchestrates the scrapers of one source family. Categories run
// concurrently (independent render sessions); persistence is all-or-nothing
// per category: an empty or failed fetch leaves the prior snapshot untouched.
type Manager struct {
	source   market.Source
	scrapers map[market.Category]*Scraper
	order    []market.Category
	store    storage.SnapshotStore
	log      *logger.Logger
}

// NewManager builds a manager over the given scrapers, which must all belong
// to the same source.
func NewManager(source market.Source, scrapers []*Scraper, store storage.SnapshotStore, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDefault("scrape-manager")
	}
	m := &Manager{
		source:   source,
		scrapers: make(map[market.Category]*Scraper, len(scrapers)),
		store:    store,
		log:      log.WithField("source", source),
	}
	for _, s := range scrapers {
		m.scrapers[s.Plan().Category] = s
		m.order = append(m.order, s.Plan().Category)
	}
	return m
}

// Source returns the source family this manager owns.
func (m *Manager) Source() market.Source { return m.source }

// Categories lists the categories the manager can scrape, in registration
// order.
func (m *Manager) Categories() []market.Category {
	return append([]market.Category(nil), m.order...)
}

// Run scrapes the selected categories (all registered ones when the list is
// empty). With persist set, each successful non-empty result replaces the
// category's snapshot; otherwise results are only returned in-memory. No
// category is retried within one run.
func (m *Manager) Run(ctx context.Context, categories []market.Category, persist bool) map[market.Category]RunResult {
	if len(categories) == 0 {
		categories = m.order
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[market.Category]RunResult, len(categories))
	)

	for _, category := range categories {
		scraper, ok := m.scrapers[category]
		if !ok {
			m.log.WithField("category", category).Warn("no scraper registered for category")
			continue
		}

		wg.Add(1)
		go func(category market.Category, scraper *Scraper) {
			defer wg.Done()

			records, report, err := scraper.Fetch(ctx)
			result := RunResult{Records: records, Report: report, Err: err}

			if persist {
				if err := m.persist(ctx, category, records, err); err != nil {
					result.Err = err
				}
			}

			mu.Lock()
			results[category] = result
			mu.Unlock()
		}(category, scraper)
	}

	wg.Wait()
	return results
}

// persist replaces the category snapshot when the fetch produced records.
// Failed or empty fetches leave the previous snapshot in place so readers
// keep seeing the last good data.
func (m *Manager) persist(ctx context.Context, category market.Category, records []market.PriceRecord, fetchErr error) error {
	if fetchErr != nil || len(records) == 0 {
		m.log.WithField("category", category).Warn("skipping snapshot write; previous snapshot retained")
		return fetchErr
	}

	snap := market.Snapshot{
		Source:      m.source,
		Category:    category,
		Records:     records,
		RetrievedAt: records[0].LastUpdate,
	}
	if err := m.store.ReplaceSnapshot(ctx, snap); err != nil {
		m.log.WithError(err).WithField("category", category).Error("snapshot write failed")
		return err
	}

	m.log.WithField("category", category).
		WithField("records", len(records)).
		Info("snapshot replaced")
	return nil
}
