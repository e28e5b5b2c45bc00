package scrape

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arzwatch/arzwatch/internal/app/domain/market"
	"github.com/arzwatch/arzwatch/internal/app/metrics"
	"github.com/arzwatch/arzwatch/internal/render"
	"github.com/arzwatch/arzwatch/pkg/logger"
)

// Scraper fetches one (source, category) page and runs extraction on it.
// Every failure mode is logged and absorbed here: callers see records or an
// error value, never a panic, and the render session is always released by
// the engine.
type Scraper struct {
	plan    Plan
	engine  render.Engine
	log     *logger.Logger
	timeout time.Duration
}

// NewScraper builds a scraper for a plan. A zero timeout defaults inside the
// render engine.
func NewScraper(plan Plan, engine render.Engine, timeout time.Duration, log *logger.Logger) *Scraper {
	if log == nil {
		log = logger.NewDefault("scraper")
	}
	return &Scraper{
		plan:    plan,
		engine:  engine,
		log:     log.WithField("source", plan.Source).WithField("category", plan.Category),
		timeout: timeout,
	}
}

// Plan returns the scraper's extraction plan.
func (s *Scraper) Plan() Plan { return s.plan }

// Fetch renders the source page and extracts records from it. A nil error
// with an empty slice is a valid outcome (nothing relevant on the page); a
// non-nil error means the page could not be fetched at all.
func (s *Scraper) Fetch(ctx context.Context) (records []market.PriceRecord, report Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("panic", r).Error("unexpected fault during fetch")
			records, report, err = nil, Report{}, fmt.Errorf("fetch %s/%s: panic: %v", s.plan.Source, s.plan.Category, r)
		}
	}()

	s.log.Info("fetching page")
	started := time.Now()

	html, err := s.engine.Render(ctx, render.Request{
		URL:          s.plan.URL,
		WaitSelector: s.plan.ReadySelector,
		Timeout:      s.timeout,
		Settle:       s.plan.Settle,
	})
	if err != nil {
		switch {
		case errors.Is(err, render.ErrTimeout):
			s.log.WithError(err).Warn("page load timed out")
		case errors.Is(err, render.ErrEngine):
			s.log.WithError(err).Error("rendering engine failed")
		default:
			s.log.WithError(err).Error("unexpected fetch failure")
		}
		metrics.ObserveScrape(string(s.plan.Source), string(s.plan.Category), "failed", time.Since(started))
		return nil, Report{}, err
	}

	batch := time.Now().UTC()
	records, report, err = Extract(s.plan, html, batch, s.log)
	if err != nil {
		s.log.WithError(err).Error("markup parse failed")
		metrics.ObserveScrape(string(s.plan.Source), string(s.plan.Category), "failed", time.Since(started))
		return nil, Report{}, err
	}

	metrics.ObserveScrape(string(s.plan.Source), string(s.plan.Category), "ok", time.Since(started))
	metrics.CountRows(string(s.plan.Source), string(s.plan.Category), report.Parsed, report.Skipped, report.Irrelevant, report.Duplicate)

	s.log.WithFields(map[string]interface{}{
		"parsed":     report.Parsed,
		"skipped":    report.Skipped,
		"irrelevant": report.Irrelevant,
		"duplicate":  report.Duplicate,
	}).Info("extraction finished")

	return records, report, nil
}
