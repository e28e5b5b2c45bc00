// Package memory provides a thread-safe in-memory implementation of the
// storage interfaces, intended for tests and prototyping.
package memory

import (
	"context"
	"fmt"
	"time"

	"sync"

	"github.com/google/uuid"

	"github.com/arzwatch/arzwatch/internal/app/domain/identity"
	"github.com/arzwatch/arzwatch/internal/app/domain/market"
	"github.com/arzwatch/arzwatch/internal/app/storage"
)

// Store keeps snapshots, identities and command logs in mutex-guarded maps.
type Store struct {
	mu         sync.RWMutex
	snapshots  map[market.Key]market.Snapshot
	identities map[string]identity.Identity
	byKey      map[string]string
	byTelegram map[int64]string
	commands   []identity.CommandLog
}

var _ storage.SnapshotStore = (*Store)(nil)
var _ storage.IdentityStore = (*Store)(nil)
var _ storage.CommandLogStore = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		snapshots:  make(map[market.Key]market.Snapshot),
		identities: make(map[string]identity.Identity),
		byKey:      make(map[string]string),
		byTelegram: make(map[int64]string),
	}
}

// SnapshotStore implementation ------------------------------------------------

func (s *Store) ReplaceSnapshot(_ context.Context, snap market.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[market.Key{Source: snap.Source, Category: snap.Category}] = cloneSnapshot(snap)
	return nil
}

func (s *Store) GetSnapshot(_ context.Context, key market.Key) (market.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[key]
	if !ok {
		return market.Snapshot{}, storage.ErrNotFound
	}
	return cloneSnapshot(snap), nil
}

// IdentityStore implementation ------------------------------------------------

func (s *Store) CreateIdentity(_ context.Context, ident identity.Identity) (identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ident.ID == "" {
		ident.ID = uuid.NewString()
	} else if _, exists := s.identities[ident.ID]; exists {
		return identity.Identity{}, fmt.Errorf("identity %s already exists", ident.ID)
	}
	if ident.Key != "" {
		if _, taken := s.byKey[ident.Key]; taken {
			return identity.Identity{}, fmt.Errorf("api key already in use")
		}
	}
	if ident.TelegramUserID != 0 {
		if _, taken := s.byTelegram[ident.TelegramUserID]; taken {
			return identity.Identity{}, fmt.Errorf("telegram user %d already registered", ident.TelegramUserID)
		}
	}

	now := time.Now().UTC()
	ident.CreatedAt = now
	if ident.LastResetAt.IsZero() {
		ident.LastResetAt = now
	}
	if ident.LastSeen.IsZero() {
		ident.LastSeen = now
	}

	s.identities[ident.ID] = ident
	if ident.Key != "" {
		s.byKey[ident.Key] = ident.ID
	}
	if ident.TelegramUserID != 0 {
		s.byTelegram[ident.TelegramUserID] = ident.ID
	}
	return ident, nil
}

func (s *Store) UpdateIdentity(_ context.Context, ident identity.Identity) (identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.identities[ident.ID]
	if !ok {
		return identity.Identity{}, storage.ErrNotFound
	}

	// ID, key and telegram binding are immutable after creation.
	ident.Key = original.Key
	ident.TelegramUserID = original.TelegramUserID
	ident.CreatedAt = original.CreatedAt

	s.identities[ident.ID] = ident
	return ident, nil
}

func (s *Store) GetIdentity(_ context.Context, id string) (identity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ident, ok := s.identities[id]
	if !ok {
		return identity.Identity{}, storage.ErrNotFound
	}
	return ident, nil
}

func (s *Store) GetIdentityByKey(_ context.Context, key string) (identity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[key]
	if !ok {
		return identity.Identity{}, storage.ErrNotFound
	}
	return s.identities[id], nil
}

func (s *Store) GetIdentityByTelegramID(_ context.Context, telegramUserID int64) (identity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byTelegram[telegramUserID]
	if !ok {
		return identity.Identity{}, storage.ErrNotFound
	}
	return s.identities[id], nil
}

func (s *Store) ListIdentities(_ context.Context, kind identity.Kind) ([]identity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]identity.Identity, 0)
	for _, ident := range s.identities {
		if kind == "" || ident.Kind == kind {
			result = append(result, ident)
		}
	}
	return result, nil
}

func (s *Store) IncrementRequestCount(_ context.Context, id string) (identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ident, ok := s.identities[id]
	if !ok {
		return identity.Identity{}, storage.ErrNotFound
	}
	if ident.RequestCount >= ident.MaxRequests {
		return identity.Identity{}, storage.ErrBudgetExhausted
	}
	ident.RequestCount++
	ident.LastSeen = time.Now().UTC()
	s.identities[id] = ident
	return ident, nil
}

func (s *Store) ResetRequestCount(_ context.Context, id string, resetAt time.Time) (identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ident, ok := s.identities[id]
	if !ok {
		return identity.Identity{}, storage.ErrNotFound
	}
	ident.RequestCount = 0
	ident.LastResetAt = resetAt.UTC()
	s.identities[id] = ident
	return ident, nil
}

// CommandLogStore implementation ----------------------------------------------

func (s *Store) AppendCommandLog(_ context.Context, entry identity.CommandLog) (identity.CommandLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.commands = append(s.commands, entry)
	return entry, nil
}

func (s *Store) ListCommandLogs(_ context.Context, identityID string) ([]identity.CommandLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]identity.CommandLog, 0)
	for _, entry := range s.commands {
		if identityID == "" || entry.IdentityID == identityID {
			result = append(result, entry)
		}
	}
	return result, nil
}

func cloneSnapshot(snap market.Snapshot) market.Snapshot {
	snap.Records = append([]market.PriceRecord(nil), snap.Records...)
	return snap
}
