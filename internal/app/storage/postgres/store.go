// Package postgres implements the storage interfaces on PostgreSQL. Snapshot
// replacement is a single upsert so readers always observe either the old or
// the new snapshot; budget increments are a guarded single-statement update.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arzwatch/arzwatch/internal/app/domain/identity"
	"github.com/arzwatch/arzwatch/internal/app/domain/market"
	"github.com/arzwatch/arzwatch/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.SnapshotStore = (*Store)(nil)
var _ storage.IdentityStore = (*Store)(nil)
var _ storage.CommandLogStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- SnapshotStore -----------------------------------------------------------

func (s *Store) ReplaceSnapshot(ctx context.Context, snap market.Snapshot) error {
	records, err := json.Marshal(snap.Records)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (source, category, records, retrieved_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source, category)
		DO UPDATE SET records = EXCLUDED.records, retrieved_at = EXCLUDED.retrieved_at
	`, snap.Source, snap.Category, records, snap.RetrievedAt.UTC())
	return err
}

func (s *Store) GetSnapshot(ctx context.Context, key market.Key) (market.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT records, retrieved_at
		FROM snapshots
		WHERE source = $1 AND category = $2
	`, key.Source, key.Category)

	var (
		recordsRaw []byte
		snap       market.Snapshot
	)
	if err := row.Scan(&recordsRaw, &snap.RetrievedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return market.Snapshot{}, storage.ErrNotFound
		}
		return market.Snapshot{}, err
	}
	if err := json.Unmarshal(recordsRaw, &snap.Records); err != nil {
		return market.Snapshot{}, fmt.Errorf("decode records: %w", err)
	}
	snap.Source = key.Source
	snap.Category = key.Category
	return snap, nil
}

// --- IdentityStore -----------------------------------------------------------

const identityColumns = `
	id, kind, name, key, expires_at,
	telegram_user_id, username, first_name, last_name, language_code, is_bot,
	request_count, max_requests, status, last_reset_at, last_seen, created_at`

func (s *Store) CreateIdentity(ctx context.Context, ident identity.Identity) (identity.Identity, error) {
	if ident.ID == "" {
		ident.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	ident.CreatedAt = now
	if ident.LastResetAt.IsZero() {
		ident.LastResetAt = now
	}
	if ident.LastSeen.IsZero() {
		ident.LastSeen = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identities (`+identityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, ident.ID, ident.Kind, ident.Name, nullString(ident.Key), nullTime(ident.ExpiresAt),
		nullInt64(ident.TelegramUserID), ident.Username, ident.FirstName, ident.LastName,
		ident.LanguageCode, ident.IsBot,
		ident.RequestCount, ident.MaxRequests, ident.Status,
		ident.LastResetAt, ident.LastSeen, ident.CreatedAt)
	if err != nil {
		return identity.Identity{}, err
	}
	return ident, nil
}

func (s *Store) UpdateIdentity(ctx context.Context, ident identity.Identity) (identity.Identity, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE identities
		SET name = $2, expires_at = $3, username = $4, first_name = $5,
		    last_name = $6, language_code = $7, is_bot = $8,
		    request_count = $9, max_requests = $10, status = $11,
		    last_reset_at = $12, last_seen = $13
		WHERE id = $1
	`, ident.ID, ident.Name, nullTime(ident.ExpiresAt), ident.Username, ident.FirstName,
		ident.LastName, ident.LanguageCode, ident.IsBot,
		ident.RequestCount, ident.MaxRequests, ident.Status,
		ident.LastResetAt, ident.LastSeen)
	if err != nil {
		return identity.Identity{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return identity.Identity{}, storage.ErrNotFound
	}
	return s.GetIdentity(ctx, ident.ID)
}

func (s *Store) GetIdentity(ctx context.Context, id string) (identity.Identity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE id = $1
	`, id)
	return scanIdentity(row)
}

func (s *Store) GetIdentityByKey(ctx context.Context, key string) (identity.Identity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE key = $1
	`, key)
	return scanIdentity(row)
}

func (s *Store) GetIdentityByTelegramID(ctx context.Context, telegramUserID int64) (identity.Identity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE telegram_user_id = $1
	`, telegramUserID)
	return scanIdentity(row)
}

func (s *Store) ListIdentities(ctx context.Context, kind identity.Kind) ([]identity.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities`
	args := []interface{}{}
	if kind != "" {
		query += ` WHERE kind = $1`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []identity.Identity
	for rows.Next() {
		ident, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ident)
	}
	return result, rows.Err()
}

func (s *Store) IncrementRequestCount(ctx context.Context, id string) (identity.Identity, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE identities
		SET request_count = request_count + 1, last_seen = NOW()
		WHERE id = $1 AND request_count < max_requests
	`, id)
	if err != nil {
		return identity.Identity{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, err := s.GetIdentity(ctx, id); err != nil {
			return identity.Identity{}, err
		}
		return identity.Identity{}, storage.ErrBudgetExhausted
	}
	return s.GetIdentity(ctx, id)
}

func (s *Store) ResetRequestCount(ctx context.Context, id string, resetAt time.Time) (identity.Identity, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE identities
		SET request_count = 0, last_reset_at = $2
		WHERE id = $1
	`, id, resetAt.UTC())
	if err != nil {
		return identity.Identity{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return identity.Identity{}, storage.ErrNotFound
	}
	return s.GetIdentity(ctx, id)
}

// --- CommandLogStore ----------------------------------------------------------

func (s *Store) AppendCommandLog(ctx context.Context, entry identity.CommandLog) (identity.CommandLog, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO command_logs (id, identity_id, command, created_at)
		VALUES ($1, $2, $3, $4)
	`, entry.ID, entry.IdentityID, entry.Command, entry.CreatedAt)
	if err != nil {
		return identity.CommandLog{}, err
	}
	return entry, nil
}

func (s *Store) ListCommandLogs(ctx context.Context, identityID string) ([]identity.CommandLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, identity_id, command, created_at
		FROM command_logs
		WHERE identity_id = $1
		ORDER BY created_at
	`, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []identity.CommandLog
	for rows.Next() {
		var entry identity.CommandLog
		if err := rows.Scan(&entry.ID, &entry.IdentityID, &entry.Command, &entry.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// --- helpers -------------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIdentity(row rowScanner) (identity.Identity, error) {
	var (
		ident      identity.Identity
		key        sql.NullString
		expiresAt  sql.NullTime
		telegramID sql.NullInt64
	)
	err := row.Scan(&ident.ID, &ident.Kind, &ident.Name, &key, &expiresAt,
		&telegramID, &ident.Username, &ident.FirstName, &ident.LastName,
		&ident.LanguageCode, &ident.IsBot,
		&ident.RequestCount, &ident.MaxRequests, &ident.Status,
		&ident.LastResetAt, &ident.LastSeen, &ident.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.Identity{}, storage.ErrNotFound
		}
		return identity.Identity{}, err
	}
	if key.Valid {
		ident.Key = key.String
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		ident.ExpiresAt = &t
	}
	if telegramID.Valid {
		ident.TelegramUserID = telegramID.Int64
	}
	return ident, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}
