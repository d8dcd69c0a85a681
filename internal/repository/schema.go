package repository

import (
	"context"
	"database/sql"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS extract_job (
		id             UUID PRIMARY KEY,
		kind           TEXT NOT NULL,
		format         TEXT NOT NULL,
		content_hash   TEXT NOT NULL,
		started_at     TIMESTAMPTZ NOT NULL,
		finished_at    TIMESTAMPTZ,
		status         TEXT NOT NULL,
		error_message  TEXT,
		confidence     DOUBLE PRECISION,
		needs_review   BOOLEAN NOT NULL DEFAULT FALSE,
		ocr_text       TEXT,
		extracted_json JSONB,
		field_errors   JSONB,
		model_name     TEXT,
		model_params   JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS extract_job_status_started_idx ON extract_job (status, started_at)`,
	`CREATE INDEX IF NOT EXISTS extract_job_content_hash_idx ON extract_job (content_hash)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS extract_job (
		id             TEXT PRIMARY KEY,
		kind           TEXT NOT NULL,
		format         TEXT NOT NULL,
		content_hash   TEXT NOT NULL,
		started_at     DATETIME NOT NULL,
		finished_at    DATETIME,
		status         TEXT NOT NULL,
		error_message  TEXT,
		confidence     REAL,
		needs_review   BOOLEAN NOT NULL DEFAULT 0,
		ocr_text       TEXT,
		extracted_json TEXT,
		field_errors   TEXT,
		model_name     TEXT,
		model_params   TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS extract_job_status_started_idx ON extract_job (status, started_at)`,
	`CREATE INDEX IF NOT EXISTS extract_job_content_hash_idx ON extract_job (content_hash)`,
}

func migrate(ctx context.Context, db *sql.DB, d dialect) error {
	stmts := postgresSchema
	if d == dialectSQLite {
		stmts = sqliteSchema
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate ledger schema: %w", err)
		}
	}
	return nil
}
