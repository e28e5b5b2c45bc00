package scrape

import (
	"context"
	"testing"
	"time"

	"github.com/arzwatch/arzwatch/internal/app/domain/market"
	"github.com/arzwatch/arzwatch/internal/app/storage/memory"
	"github.com/arzwatch/arzwatch/internal/render"
	"github.com/arzwatch/arzwatch/pkg/logger"
)

func TestSchedulerInitialRunAndStop(t *testing.T) {
	store := memory.New()
	ran := make(chan struct{}, 1)
	engine := render.EngineFunc(func(context.Context, render.Request) (string, error) {
		select {
		case ran <- struct{}{}:
		default:
		}
		return tgjuCurrencyHTML, nil
	})

	manager := currencyManager(t, engine, store)
	scheduler := NewScheduler([]*Manager{manager}, time.Hour, true, logger.NewDefault("test"))

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("initial run never fired")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := scheduler.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	snap, err := store.GetSnapshot(context.Background(), market.Key{Source: market.SourceTGJU, Category: market.CategoryCurrency})
	if err != nil {
		t.Fatalf("expected initial run to persist a snapshot: %v", err)
	}
	if len(snap.Records) == 0 {
		t.Fatal("expected records in snapshot")
	}

	// Stopping twice is a no-op.
	if err := scheduler.Stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	store := memory.New()
	block := make(chan struct{})
	started := make(chan struct{}, 2)
	engine := render.EngineFunc(func(ctx context.Context, _ render.Request) (string, error) {
		started <- struct{}{}
		select {
		case <-block:
		case <-ctx.Done():
		}
		return tgjuCurrencyHTML, nil
	})

	manager := currencyManager(t, engine, store)
	scheduler := NewScheduler([]*Manager{manager}, time.Second, true, logger.NewDefault("test"))

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	// The initial run is blocked; the next ticks must be skipped, not run
	// a second fetch against the same session pool.
	<-started
	select {
	case <-started:
		t.Fatal("overlapping run started while previous was in flight")
	case <-time.After(2500 * time.Millisecond):
	}

	close(block)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := scheduler.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
