package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// schema is applied on every start and must stay idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		telegram_id BIGINT PRIMARY KEY,
		x_handle    TEXT,
		fc_id       BIGINT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		job_id         TEXT PRIMARY KEY,
		user_id        BIGINT NOT NULL,
		task_type      TEXT NOT NULL,
		status         TEXT NOT NULL DEFAULT 'pending',
		result_payload JSONB,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at   TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS jobs_status_created_at_idx ON jobs (status, created_at)`,
}

// Open creates a new database connection and verifies it with a ping
func Open(ctx context.Context, dbURL string) (*sql.DB, error) {
	dbURL = strings.TrimSpace(dbURL)
	if dbURL == "" {
		return nil, fmt.Errorf("database url is empty")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return db, nil
}

// Migrate creates the users and jobs tables if they do not exist
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}
	log.Debug().Int("statements", len(schema)).Msg("Database schema up to date")
	return nil
}
