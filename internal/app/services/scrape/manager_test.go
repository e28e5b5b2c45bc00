package scrape

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arzwatch/arzwatch/internal/app/domain/market"
	"github.com/arzwatch/arzwatch/internal/app/storage/memory"
	"github.com/arzwatch/arzwatch/internal/render"
	"github.com/arzwatch/arzwatch/pkg/logger"
)

func currencyManager(t *testing.T, engine render.Engine, store *memory.Store) *Manager {
	t.Helper()
	plan, err := TGJUPlan(market.CategoryCurrency)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	scraper := NewScraper(plan, engine, time.Second, logger.NewDefault("test"))
	return NewManager(market.SourceTGJU, []*Scraper{scraper}, store, logger.NewDefault("test"))
}

func TestManagerPersistsSnapshot(t *testing.T) {
	store := memory.New()
	engine := render.EngineFunc(func(context.Context, render.Request) (string, error) {
		return tgjuCurrencyHTML, nil
	})
	manager := currencyManager(t, engine, store)

	results := manager.Run(context.Background(), nil, true)
	if result := results[market.CategoryCurrency]; result.Err != nil {
		t.Fatalf("run: %v", result.Err)
	}

	snap, err := store.GetSnapshot(context.Background(), market.Key{Source: market.SourceTGJU, Category: market.CategoryCurrency})
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if len(snap.Records) != 1 || snap.Records[0].Title != "دلار" {
		t.Fatalf("unexpected snapshot: %+v", snap.Records)
	}
	if snap.RetrievedAt.IsZero() {
		t.Fatal("expected retrievedAt to be set")
	}
}

func TestManagerKeepsOldSnapshotOnFailure(t *testing.T) {
	store := memory.New()

	good := render.EngineFunc(func(context.Context, render.Request) (string, error) {
		return tgjuCurrencyHTML, nil
	})
	results := currencyManager(t, good, store).Run(context.Background(), nil, true)
	if result := results[market.CategoryCurrency]; result.Err != nil {
		t.Fatalf("seed run: %v", result.Err)
	}

	failing := render.EngineFunc(func(context.Context, render.Request) (string, error) {
		return "", render.ErrTimeout
	})
	results = currencyManager(t, failing, store).Run(context.Background(), nil, true)
	if result := results[market.CategoryCurrency]; !errors.Is(result.Err, render.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", result.Err)
	}

	snap, err := store.GetSnapshot(context.Background(), market.Key{Source: market.SourceTGJU, Category: market.CategoryCurrency})
	if err != nil {
		t.Fatalf("expected old snapshot to survive: %v", err)
	}
	if len(snap.Records) != 1 {
		t.Fatalf("expected old records intact, got %d", len(snap.Records))
	}
}

func TestManagerKeepsOldSnapshotOnEmptyResult(t *testing.T) {
	store := memory.New()

	good := render.EngineFunc(func(context.Context, render.Request) (string, error) {
		return tgjuCurrencyHTML, nil
	})
	currencyManager(t, good, store).Run(context.Background(), nil, true)

	empty := render.EngineFunc(func(context.Context, render.Request) (string, error) {
		return "<html><body></body></html>", nil
	})
	results := currencyManager(t, empty, store).Run(context.Background(), nil, true)
	if result := results[market.CategoryCurrency]; result.Err != nil {
		t.Fatalf("empty fetch is not an error: %v", result.Err)
	}

	snap, err := store.GetSnapshot(context.Background(), market.Key{Source: market.SourceTGJU, Category: market.CategoryCurrency})
	if err != nil {
		t.Fatalf("expected old snapshot to survive: %v", err)
	}
	if len(snap.Records) != 1 {
		t.Fatalf("expected old records intact, got %d", len(snap.Records))
	}
}

func TestManagerWithoutPersistLeavesStoreUntouched(t *testing.T) {
	store := memory.New()
	engine := render.EngineFunc(func(context.Context, render.Request) (string, error) {
		return tgjuCurrencyHTML, nil
	})

	results := currencyManager(t, engine, store).Run(context.Background(), nil, false)
	if result := results[market.CategoryCurrency]; len(result.Records) != 1 {
		t.Fatalf("expected records in-memory, got %d", len(result.Records))
	}

	_, err := store.GetSnapshot(context.Background(), market.Key{Source: market.SourceTGJU, Category: market.CategoryCurrency})
	if err == nil {
		t.Fatal("expected no snapshot written")
	}
}

func TestScraperAbsorbsPanics(t *testing.T) {
	plan, err := TGJUPlan(market.CategoryCurrency)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	panicking := render.EngineFunc(func(context.Context, render.Request) (string, error) {
		panic("browser exploded")
	})
	scraper := NewScraper(plan, panicking, time.Second, logger.NewDefault("test"))

	_, _, err = scraper.Fetch(context.Background())
	if err == nil {
		t.Fatal("expected panic to surface as error")
	}
}
