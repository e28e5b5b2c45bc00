package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	source       TEXT NOT NULL,
	category     TEXT NOT NULL,
	records      JSONB NOT NULL,
	retrieved_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (source, category)
);

CREATE TABLE IF NOT EXISTS identities (
	id               UUID PRIMARY KEY,
	kind             TEXT NOT NULL,
	name             TEXT NOT NULL DEFAULT '',
	key              TEXT UNIQUE,
	expires_at       TIMESTAMPTZ,
	telegram_user_id BIGINT UNIQUE,
	username         TEXT NOT NULL DEFAULT '',
	first_name       TEXT NOT NULL DEFAULT '',
	last_name        TEXT NOT NULL DEFAULT '',
	language_code    TEXT NOT NULL DEFAULT '',
	is_bot           BOOLEAN NOT NULL DEFAULT FALSE,
	request_count    INTEGER NOT NULL DEFAULT 0,
	max_requests     INTEGER NOT NULL,
	status           TEXT NOT NULL DEFAULT 'active',
	last_reset_at    TIMESTAMPTZ NOT NULL,
	last_seen        TIMESTAMPTZ NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS command_logs (
	id          UUID PRIMARY KEY,
	identity_id UUID NOT NULL REFERENCES identities (id),
	command     TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS command_logs_identity_idx ON command_logs (identity_id);
`

// EnsureSchema creates the tables the store expects when they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
