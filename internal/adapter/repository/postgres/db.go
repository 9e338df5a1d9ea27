package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// NewDB creates a new database connection
// connectionString should be in the format: "host=localhost port=5432 user=postgres password=postgres dbname=coinsettle sslmode=disable"
func NewDB(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// EnsureSchema creates the ledger and job tables when they do not exist yet.
// Idempotent; run once at startup.
func (db *DB) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ledger_accounts (
			tenant_id    TEXT NOT NULL,
			holder_id    TEXT NOT NULL,
			linked_card  TEXT NOT NULL DEFAULT '',
			fiat_balance NUMERIC(20,2) NOT NULL DEFAULT 0 CHECK (fiat_balance >= 0),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (tenant_id, holder_id)
		)`,
		`CREATE TABLE IF NOT EXISTS settlement_jobs (
			id           UUID PRIMARY KEY,
			tenant_id    TEXT NOT NULL,
			holder_id    TEXT NOT NULL,
			kind         TEXT NOT NULL,
			payload      JSONB NOT NULL,
			status       TEXT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL,
			processed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_settlement_jobs_status
			ON settlement_jobs (status, created_at)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}

	return nil
}
