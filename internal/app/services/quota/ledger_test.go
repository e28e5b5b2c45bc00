package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arzwatch/arzwatch/internal/app/domain/identity"
	"github.com/arzwatch/arzwatch/internal/app/storage/memory"
	"github.com/arzwatch/arzwatch/pkg/logger"
)

func newTestIdentity(t *testing.T, store *memory.Store, max int) identity.Identity {
	t.Helper()
	ident, err := store.CreateIdentity(context.Background(), identity.Identity{
		Kind:        identity.KindAPIKey,
		Name:        "test",
		Key:         "0123456789abcdef0123456789abcdef01234567",
		MaxRequests: max,
		Status:      identity.StatusActive,
	})
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
	return ident
}

func TestLedgerBudgetCeiling(t *testing.T) {
	store := memory.New()
	ledger := NewLedger(store, logger.NewDefault("quota-test"))
	ident := newTestIdentity(t, store, 3)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := ledger.Admit(ctx, &ident); err != nil {
			t.Fatalf("admit %d: %v", i+1, err)
		}
		if err := ledger.RecordUsage(ctx, &ident); err != nil {
			t.Fatalf("record %d: %v", i+1, err)
		}
	}

	if err := ledger.Admit(ctx, &ident); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}

	stored, err := store.GetIdentity(ctx, ident.ID)
	if err != nil {
		t.Fatalf("get identity: %v", err)
	}
	if stored.RequestCount != 3 {
		t.Fatalf("expected count 3, got %d", stored.RequestCount)
	}
}

func TestLedgerRecordUsageNeverPassesCeiling(t *testing.T) {
	store := memory.New()
	ledger := NewLedger(store, logger.NewDefault("quota-test"))
	ident := newTestIdentity(t, store, 1)

	ctx := context.Background()
	if err := ledger.RecordUsage(ctx, &ident); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if err := ledger.RecordUsage(ctx, &ident); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}

	stored, err := store.GetIdentity(ctx, ident.ID)
	if err != nil {
		t.Fatalf("get identity: %v", err)
	}
	if stored.RequestCount != 1 {
		t.Fatalf("expected count 1, got %d", stored.RequestCount)
	}
}

func TestLedgerDayRollover(t *testing.T) {
	store := memory.New()
	ledger := NewLedger(store, logger.NewDefault("quota-test"))
	ident := newTestIdentity(t, store, 2)

	ctx := context.Background()
	day1 := time.Date(2025, 3, 10, 23, 50, 0, 0, time.UTC)
	ledger.now = func() time.Time { return day1 }

	for i := 0; i < 2; i++ {
		if err := ledger.Admit(ctx, &ident); err != nil {
			t.Fatalf("admit on day 1: %v", err)
		}
		if err := ledger.RecordUsage(ctx, &ident); err != nil {
			t.Fatalf("record on day 1: %v", err)
		}
	}
	if err := ledger.Admit(ctx, &ident); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected exhaustion on day 1, got %v", err)
	}

	// A few minutes later it is a new UTC day and the counter resets
	// before the budget check.
	ledger.now = func() time.Time { return day1.Add(15 * time.Minute) }
	if err := ledger.Admit(ctx, &ident); err != nil {
		t.Fatalf("admit on day 2: %v", err)
	}
	if err := ledger.RecordUsage(ctx, &ident); err != nil {
		t.Fatalf("record on day 2: %v", err)
	}

	stored, err := store.GetIdentity(ctx, ident.ID)
	if err != nil {
		t.Fatalf("get identity: %v", err)
	}
	if stored.RequestCount != 1 {
		t.Fatalf("expected count 1 after rollover, got %d", stored.RequestCount)
	}
}

func TestLedgerStaleCopyCannotPassBudget(t *testing.T) {
	store := memory.New()
	ledger := NewLedger(store, logger.NewDefault("quota-test"))
	ident := newTestIdentity(t, store, 1)

	ctx := context.Background()
	// Two callers fetch the identity while one slot is still free.
	copyA := ident
	copyB := ident

	if err := ledger.Admit(ctx, &copyA); err != nil {
		t.Fatalf("admit first copy: %v", err)
	}
	if err := ledger.RecordUsage(ctx, &copyA); err != nil {
		t.Fatalf("record first copy: %v", err)
	}

	// The second copy still carries count 0; admission must run against
	// the stored counter, not the copy.
	if err := ledger.Admit(ctx, &copyB); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded for stale copy, got %v", err)
	}
	if copyB.RequestCount != 1 {
		t.Fatalf("expected stale copy refreshed to count 1, got %d", copyB.RequestCount)
	}
}

func TestLedgerStaleResetDateDoesNotRegrantBudget(t *testing.T) {
	store := memory.New()
	ledger := NewLedger(store, logger.NewDefault("quota-test"))
	ident := newTestIdentity(t, store, 1)

	ctx := context.Background()
	today := time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return today }

	if err := ledger.Admit(ctx, &ident); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if err := ledger.RecordUsage(ctx, &ident); err != nil {
		t.Fatalf("record: %v", err)
	}

	// A copy fetched before today's reset still carries yesterday's reset
	// date. It must not zero a budget that was already spent today.
	stale := ident
	stale.RequestCount = 0
	stale.LastResetAt = today.Add(-24 * time.Hour)

	if err := ledger.Admit(ctx, &stale); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded for stale reset date, got %v", err)
	}

	stored, err := store.GetIdentity(ctx, ident.ID)
	if err != nil {
		t.Fatalf("get identity: %v", err)
	}
	if stored.RequestCount != 1 {
		t.Fatalf("expected spent counter preserved at 1, got %d", stored.RequestCount)
	}
}

func TestLedgerRejectsByStatus(t *testing.T) {
	store := memory.New()
	ledger := NewLedger(store, logger.NewDefault("quota-test"))
	ctx := context.Background()

	banned := newTestIdentity(t, store, 10)
	banned.Status = identity.StatusBanned
	if _, err := store.UpdateIdentity(ctx, banned); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := ledger.Admit(ctx, &banned); !errors.Is(err, ErrBanned) {
		t.Fatalf("expected ErrBanned, got %v", err)
	}

	expiry := time.Now().UTC().Add(-time.Hour)
	expired, err := store.CreateIdentity(ctx, identity.Identity{
		Kind:        identity.KindAPIKey,
		Key:         "fedcba9876543210fedcba9876543210fedcba98",
		MaxRequests: 10,
		Status:      identity.StatusActive,
		ExpiresAt:   &expiry,
	})
	if err != nil {
		t.Fatalf("create expired identity: %v", err)
	}
	if err := ledger.Admit(ctx, &expired); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}
