// Package storage defines the persistence interfaces for snapshots and
// identities, plus the sentinel errors stores must return so callers can
// distinguish outcomes without inspecting message text.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/arzwatch/arzwatch/internal/app/domain/identity"
	"github.com/arzwatch/arzwatch/internal/app/domain/market"
)

// ErrNotFound is returned when a snapshot or identity does not exist.
var ErrNotFound = errors.New("not found")

// ErrBudgetExhausted is returned by IncrementRequestCount when the counter
// already sits at the identity's ceiling.
var ErrBudgetExhausted = errors.New("request budget exhausted")

// SnapshotStore holds the latest extraction result per (source, category).
// ReplaceSnapshot must be all-or-nothing: either the new snapshot fully
// replaces the old one, or the old one stays readable.
type SnapshotStore interface {
	ReplaceSnapshot(ctx context.Context, snap market.Snapshot) error
	GetSnapshot(ctx context.Context, key market.Key) (market.Snapshot, error)
}

// IdentityStore persists budgeted principals.
type IdentityStore interface {
	CreateIdentity(ctx context.Context, ident identity.Identity) (identity.Identity, error)
	UpdateIdentity(ctx context.Context, ident identity.Identity) (identity.Identity, error)
	GetIdentity(ctx context.Context, id string) (identity.Identity, error)
	GetIdentityByKey(ctx context.Context, key string) (identity.Identity, error)
	GetIdentityByTelegramID(ctx context.Context, telegramUserID int64) (identity.Identity, error)
	ListIdentities(ctx context.Context, kind identity.Kind) ([]identity.Identity, error)

	// IncrementRequestCount atomically increments the request counter if and
	// only if it is below the identity's ceiling, returning the updated
	// identity or ErrBudgetExhausted.
	IncrementRequestCount(ctx context.Context, id string) (identity.Identity, error)

	// ResetRequestCount zeroes the counter and records the reset time.
	ResetRequestCount(ctx context.Context, id string, resetAt time.Time) (identity.Identity, error)
}

// CommandLogStore appends served-request records for observability.
type CommandLogStore interface {
	AppendCommandLog(ctx context.Context, entry identity.CommandLog) (identity.CommandLog, error)
	ListCommandLogs(ctx context.Context, identityID string) ([]identity.CommandLog, error)
}
