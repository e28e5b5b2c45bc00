// Package quota enforces per-identity daily request budgets.
package quota

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/arzwatch/arzwatch/internal/app/domain/identity"
	"github.com/arzwatch/arzwatch/internal/app/metrics"
	"github.com/arzwatch/arzwatch/internal/app/storage"
	"github.com/arzwatch/arzwatch/pkg/logger"
)

var (
	// ErrBanned is returned when the identity has been banned.
	ErrBanned = errors.New("identity is banned")
	// ErrInactive is returned when the identity has been deactivated.
	ErrInactive = errors.New("identity is inactive")
	// ErrExpired is returned when the identity's key has expired.
	ErrExpired = errors.New("identity key has expired")
	// ErrQuotaExceeded is returned when the daily budget is used up.
	ErrQuotaExceeded = errors.New("daily request quota exceeded")
)

const lockStripes = 64

// Ledger serializes admission and usage accounting per identity.
// The same identity never has two budget decisions in flight at once;
// distinct identities proceed concurrently on separate stripes.
type Ledger struct {
	store storage.IdentityStore
	log   *logger.Logger
	now   func() time.Time

	locks [lockStripes]sync.Mutex
}

// NewLedger creates a ledger backed by the given identity store.
func NewLedger(store storage.IdentityStore, log *logger.Logger) *Ledger {
	return &Ledger{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

func (l *Ledger) stripe(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &l.locks[h.Sum32()%lockStripes]
}

// Admit decides whether the identity may consume one request.
// The identity is re-read under the stripe lock, so the decision always
// runs against the current counter and reset date rather than whatever
// copy the caller fetched at auth time. The day rollover is applied
// before the budget check, so the first request of a new UTC day always
// sees a fresh counter. Admit does not charge the budget; call
// RecordUsage after the request is served.
func (l *Ledger) Admit(ctx context.Context, ident *identity.Identity) error {
	mu := l.stripe(ident.ID)
	mu.Lock()
	defer mu.Unlock()

	current, err := l.store.GetIdentity(ctx, ident.ID)
	if err != nil {
		return err
	}
	*ident = current

	now := l.now().UTC()
	if err := l.resetIfNewPeriod(ctx, ident, now); err != nil {
		return err
	}

	switch ident.Status {
	case identity.StatusBanned:
		metrics.CountQuotaRejection("banned")
		return ErrBanned
	case identity.StatusInactive:
		metrics.CountQuotaRejection("inactive")
		return ErrInactive
	}
	if ident.Expired(now) {
		metrics.CountQuotaRejection("expired")
		return ErrExpired
	}
	if ident.RequestCount >= ident.MaxRequests {
		metrics.CountQuotaRejection("quota")
		return ErrQuotaExceeded
	}
	return nil
}

// RecordUsage charges one request against the identity's budget.
// The increment is capped at the store level, so the counter can never
// pass MaxRequests even under races.
func (l *Ledger) RecordUsage(ctx context.Context, ident *identity.Identity) error {
	mu := l.stripe(ident.ID)
	mu.Lock()
	defer mu.Unlock()

	updated, err := l.store.IncrementRequestCount(ctx, ident.ID)
	if err != nil {
		if errors.Is(err, storage.ErrBudgetExhausted) {
			metrics.CountQuotaRejection("quota")
			return ErrQuotaExceeded
		}
		return err
	}
	*ident = updated
	return nil
}

// resetIfNewPeriod zeroes the counter when the last reset happened on an
// earlier UTC day than now.
func (l *Ledger) resetIfNewPeriod(ctx context.Context, ident *identity.Identity, now time.Time) error {
	last := ident.LastResetAt.UTC()
	if sameUTCDay(last, now) {
		return nil
	}
	updated, err := l.store.ResetRequestCount(ctx, ident.ID, now)
	if err != nil {
		return err
	}
	*ident = updated
	l.log.WithFields(map[string]interface{}{
		"identity": ident.ID,
		"reset_at": now.Format(time.RFC3339),
	}).Debug("daily quota counter reset")
	return nil
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
