package repository

import (
	"context"
	"fmt"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS parse_records (
	id                 UUID PRIMARY KEY,
	session_id         TEXT NOT NULL,
	source_path        TEXT NOT NULL DEFAULT '',
	source_type        TEXT NOT NULL DEFAULT '',
	mode               TEXT NOT NULL,
	strategy           TEXT NOT NULL DEFAULT '',
	success            BOOLEAN NOT NULL,
	confidence         DOUBLE PRECISION NOT NULL DEFAULT 0,
	completeness_score INTEGER NOT NULL DEFAULT 0,
	extracted_json     TEXT NOT NULL DEFAULT '',
	warnings_json      TEXT NOT NULL DEFAULT '[]',
	error              TEXT NOT NULL DEFAULT '',
	tokens_used        INTEGER NOT NULL DEFAULT 0,
	processing_time_ms BIGINT NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS parse_records_created_at_idx ON parse_records (created_at DESC);
CREATE INDEX IF NOT EXISTS parse_records_session_idx ON parse_records (session_id);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS parse_records (
	id                 TEXT PRIMARY KEY,
	session_id         TEXT NOT NULL,
	source_path        TEXT NOT NULL DEFAULT '',
	source_type        TEXT NOT NULL DEFAULT '',
	mode               TEXT NOT NULL,
	strategy           TEXT NOT NULL DEFAULT '',
	success            BOOLEAN NOT NULL,
	confidence         REAL NOT NULL DEFAULT 0,
	completeness_score INTEGER NOT NULL DEFAULT 0,
	extracted_json     TEXT NOT NULL DEFAULT '',
	warnings_json      TEXT NOT NULL DEFAULT '[]',
	error              TEXT NOT NULL DEFAULT '',
	tokens_used        INTEGER NOT NULL DEFAULT 0,
	processing_time_ms INTEGER NOT NULL DEFAULT 0,
	created_at         TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS parse_records_created_at_idx ON parse_records (created_at DESC);
CREATE INDEX IF NOT EXISTS parse_records_session_idx ON parse_records (session_id);
`

func migrate(ctx context.Context, db *DB) error {
	ddl := sqliteSchema
	if db.Dialect == DialectPostgres {
		ddl = postgresSchema
	}
	if _, err := db.SQL.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("%s: create schema: %w", db.Dialect, err)
	}
	return nil
}
