package scrape

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/arzwatch/arzwatch/internal/app/domain/market"
	"github.com/arzwatch/arzwatch/pkg/logger"
)

// Plan parameterizes the generic extraction pipeline for one (source,
// category): where the page lives, what signals readiness, which rows matter
// and how a row becomes a record.
type Plan struct {
	Source   market.Source
	Category market.Category

	URL           string
	ReadySelector string
	RowSelector   string
	// Settle pauses after the ready selector appears, for pages that keep
	// filling cells after the table mounts.
	Settle time.Duration

	// Relevant decides whether a row belongs in the output (the allow-list
	// test). Irrelevant rows are skipped silently.
	Relevant func(row *goquery.Selection) bool

	// MapRow turns a relevant row into a record. An error drops the row and
	// is counted in the report; extraction continues.
	MapRow func(row *goquery.Selection, batch time.Time) (market.PriceRecord, error)
}

// Report summarizes one extraction pass.
type Report struct {
	Parsed     int
	Skipped    int
	Irrelevant int
	Duplicate  int
}

// Extract parses rendered markup per the plan. Rows failing the relevance
// predicate are discarded; rows that fail to map are logged at low severity
// and counted, never fatal; duplicate titles keep the first occurrence. An
// empty result is a valid outcome.
func Extract(plan Plan, html string, batch time.Time, log *logger.Logger) ([]market.PriceRecord, Report, error) {
	if log == nil {
		log = logger.NewDefault("extract")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, Report{}, err
	}

	var (
		report  Report
		records []market.PriceRecord
		seen    = make(map[string]struct{})
	)

	doc.Find(plan.RowSelector).Each(func(_ int, row *goquery.Selection) {
		if plan.Relevant != nil && !plan.Relevant(row) {
			report.Irrelevant++
			return
		}

		record, err := plan.MapRow(row, batch)
		if err != nil {
			report.Skipped++
			log.WithError(err).
				WithField("source", plan.Source).
				WithField("category", plan.Category).
				Debug("row skipped")
			return
		}

		if _, dup := seen[record.Title]; dup {
			report.Duplicate++
			return
		}
		seen[record.Title] = struct{}{}

		records = append(records, record)
		report.Parsed++
	})

	return records, report, nil
}
