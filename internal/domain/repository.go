package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerRepository defines the interface for ledger account persistence.
// All balance mutations are full replacements computed by the caller; the
// store provides no atomic increment, so callers serialize access per account.
type LedgerRepository interface {
	// GetAccount retrieves an account by its composite key.
	// Returns ErrAccountNotFound when no record exists.
	GetAccount(ctx context.Context, tenantID, holderID string) (*LedgerAccount, error)

	// UpsertBalance writes the new balance for an account, creating the
	// record with that balance if it does not exist yet.
	UpsertBalance(ctx context.Context, tenantID, holderID string, balance decimal.Decimal) error

	// UpsertBalancePair writes both sides of a transfer atomically: either
	// both balances land or neither does.
	UpsertBalancePair(ctx context.Context, tenantID, fromHolder string, fromBalance decimal.Decimal, toHolder string, toBalance decimal.Decimal) error

	// LinkCard records the external settlement account for an account,
	// creating the record if it does not exist yet.
	LinkCard(ctx context.Context, tenantID, holderID, card string) error
}

// JobRepository defines the interface for settlement job persistence.
// The processor keeps the authoritative in-memory queue; the store is an
// append/update audit mirror plus the source for startup recovery.
type JobRepository interface {
	// Insert appends a newly submitted job.
	Insert(ctx context.Context, job *Job) error

	// UpdateStatus records a lifecycle transition. processedAt is non-nil
	// only for terminal statuses.
	UpdateStatus(ctx context.Context, id uuid.UUID, status JobStatus, processedAt *time.Time) error

	// GetByID retrieves a job by id. Returns ErrJobNotFound when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*Job, error)

	// ListUnfinished retrieves all jobs in a non-terminal status, ordered by
	// creation time. Used by the startup recovery scan.
	ListUnfinished(ctx context.Context) ([]*Job, error)
}
