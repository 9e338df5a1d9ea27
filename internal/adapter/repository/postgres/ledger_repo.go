package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"coinsettle/internal/domain"
)

// ledgerRepository implements domain.LedgerRepository
type ledgerRepository struct {
	db *DB
}

// NewLedgerRepository creates a new ledger account repository
func NewLedgerRepository(db *DB) domain.LedgerRepository {
	return &ledgerRepository{db: db}
}

// GetAccount retrieves an account by its (tenant, holder) key
func (r *ledgerRepository) GetAccount(ctx context.Context, tenantID, holderID string) (*domain.LedgerAccount, error) {
	query := `
		SELECT tenant_id, holder_id, linked_card, fiat_balance, updated_at
		FROM ledger_accounts
		WHERE tenant_id = $1 AND holder_id = $2
	`

	var account domain.LedgerAccount
	var balanceStr string

	err := r.db.QueryRowContext(ctx, query, tenantID, holderID).Scan(
		&account.TenantID,
		&account.HolderID,
		&account.LinkedCard,
		&balanceStr,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", domain.ErrAccountNotFound, tenantID, holderID)
		}
		return nil, fmt.Errorf("failed to get ledger account: %w", err)
	}

	// Parse fiat_balance (DECIMAL)
	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fiat_balance: %w", err)
	}
	account.FiatBalance = balance

	return &account, nil
}

// UpsertBalance writes the new balance, creating the account implicitly on
// first reference
func (r *ledgerRepository) UpsertBalance(ctx context.Context, tenantID, holderID string, balance decimal.Decimal) error {
	query := `
		INSERT INTO ledger_accounts (tenant_id, holder_id, fiat_balance, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (tenant_id, holder_id)
		DO UPDATE SET fiat_balance = EXCLUDED.fiat_balance, updated_at = now()
	`

	_, err := r.db.ExecContext(ctx, query, tenantID, holderID, balance.StringFixed(domain.FiatFractionDigits))
	if err != nil {
		return fmt.Errorf("failed to upsert balance: %w", err)
	}

	return nil
}

// UpsertBalancePair writes both sides of a transfer in one database
// transaction so a failure cannot leave the debit without the credit
func (r *ledgerRepository) UpsertBalancePair(ctx context.Context, tenantID, fromHolder string, fromBalance decimal.Decimal, toHolder string, toBalance decimal.Decimal) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	query := `
		INSERT INTO ledger_accounts (tenant_id, holder_id, fiat_balance, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (tenant_id, holder_id)
		DO UPDATE SET fiat_balance = EXCLUDED.fiat_balance, updated_at = now()
	`

	for _, side := range []struct {
		holder  string
		balance decimal.Decimal
	}{
		{fromHolder, fromBalance},
		{toHolder, toBalance},
	} {
		if _, err := dbTx.ExecContext(ctx, query, tenantID, side.holder, side.balance.StringFixed(domain.FiatFractionDigits)); err != nil {
			return fmt.Errorf("failed to upsert balance for %s/%s: %w", tenantID, side.holder, err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// LinkCard records the external settlement account, creating the ledger
// account implicitly on first reference
func (r *ledgerRepository) LinkCard(ctx context.Context, tenantID, holderID, card string) error {
	query := `
		INSERT INTO ledger_accounts (tenant_id, holder_id, linked_card, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (tenant_id, holder_id)
		DO UPDATE SET linked_card = EXCLUDED.linked_card, updated_at = now()
	`

	_, err := r.db.ExecContext(ctx, query, tenantID, holderID, card)
	if err != nil {
		return fmt.Errorf("failed to link card: %w", err)
	}

	return nil
}
