// Package snapfile persists snapshots as a JSON file tree, one file per
// (source, category): <root>/<source>/<category>.json. Writes go through a
// temp file and rename so a crashed write never corrupts the prior snapshot.
package snapfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/arzwatch/arzwatch/internal/app/domain/market"
	"github.com/arzwatch/arzwatch/internal/app/storage"
)

// Store writes and reads snapshot files under a root directory.
type Store struct {
	root string
	mu   sync.RWMutex
}

var _ storage.SnapshotStore = (*Store)(nil)

// New creates a file-backed snapshot store rooted at dir.
func New(dir string) *Store {
	return &Store{root: dir}
}

func (s *Store) path(key market.Key) string {
	return filepath.Join(s.root, string(key.Source), string(key.Category)+".json")
}

func (s *Store) ReplaceSnapshot(_ context.Context, snap market.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.path(market.Key{Source: snap.Source, Category: snap.Category})
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (s *Store) GetSnapshot(_ context.Context, key market.Key) (market.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return market.Snapshot{}, storage.ErrNotFound
		}
		return market.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}

	var snap market.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return market.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}
