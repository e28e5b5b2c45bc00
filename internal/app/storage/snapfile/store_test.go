package snapfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arzwatch/arzwatch/internal/app/domain/market"
	"github.com/arzwatch/arzwatch/internal/app/storage"
)

func TestReplaceAndGetRoundTrip(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()
	key := market.Key{Source: market.SourceCoinEx, Category: market.CategoryCrypto}

	if _, err := store.GetSnapshot(ctx, key); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	snap := market.Snapshot{
		Source:   key.Source,
		Category: key.Category,
		Records: []market.PriceRecord{
			{Title: "Bitcoin", Symbol: "BTC", Price: "67000.12", LastUpdate: time.Now().UTC().Truncate(time.Second)},
		},
		RetrievedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := store.ReplaceSnapshot(ctx, snap); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, err := store.GetSnapshot(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Records) != 1 || got.Records[0].Symbol != "BTC" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if !got.RetrievedAt.Equal(snap.RetrievedAt) {
		t.Fatalf("retrievedAt mismatch: %v vs %v", got.RetrievedAt, snap.RetrievedAt)
	}
}

func TestReplaceOverwritesWholeFile(t *testing.T) {
	root := t.TempDir()
	store := New(root)
	ctx := context.Background()
	key := market.Key{Source: market.SourceTGJU, Category: market.CategoryCoin}

	first := market.Snapshot{
		Source:   key.Source,
		Category: key.Category,
		Records:  []market.PriceRecord{{Title: "سکه امامی", Price: "1"}, {Title: "نیم سکه", Price: "2"}},
	}
	if err := store.ReplaceSnapshot(ctx, first); err != nil {
		t.Fatalf("replace: %v", err)
	}

	second := first
	second.Records = []market.PriceRecord{{Title: "ربع سکه", Price: "3"}}
	if err := store.ReplaceSnapshot(ctx, second); err != nil {
		t.Fatalf("replace again: %v", err)
	}

	got, err := store.GetSnapshot(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Records) != 1 || got.Records[0].Title != "ربع سکه" {
		t.Fatalf("expected full replacement, got %+v", got.Records)
	}

	// No temp files may survive a successful write.
	entries, err := os.ReadDir(filepath.Join(root, string(key.Source)))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, entry := range entries {
		if entry.Name() != string(key.Category)+".json" {
			t.Fatalf("unexpected leftover file: %s", entry.Name())
		}
	}
}
