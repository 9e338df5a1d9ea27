// Package ledger is the command-facing surface over the fiat ledger and the
// settlement queue. It owns the per-account serialization that keeps balance
// read-modify-write cycles safe across the pre-submit validation and the
// post-settlement continuation.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"coinsettle/internal/domain"
	"coinsettle/internal/usecase/processor"
)

// Submitter is the slice of the processor the ledger service needs.
type Submitter interface {
	Submit(ctx context.Context, job *domain.Job, onResult func(processor.Outcome)) (uuid.UUID, <-chan processor.Outcome, error)
}

// Service handles balance queries, local fiat transfers and the two
// settlement-backed exchange operations.
type Service struct {
	accounts domain.LedgerRepository
	client   domain.SettlementClient
	queue    Submitter
	rate     decimal.Decimal // coins per fiat unit
	locks    *accountLocks
	logger   *slog.Logger
}

// NewService creates a ledger service. rate is the process-wide fiat-to-coin
// conversion multiplier.
func NewService(accounts domain.LedgerRepository, client domain.SettlementClient, queue Submitter, rate decimal.Decimal, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		accounts: accounts,
		client:   client,
		queue:    queue,
		rate:     rate,
		locks:    newAccountLocks(),
		logger:   logger,
	}
}

// Balance returns the holder's fiat balance. An account that has never been
// referenced reads as zero.
func (s *Service) Balance(ctx context.Context, tenantID, holderID string) (decimal.Decimal, error) {
	acc, err := s.loadAccount(ctx, tenantID, holderID)
	if err != nil {
		return decimal.Zero, err
	}
	return acc.FiatBalance, nil
}

// RemoteBalance returns the coin balance of a settlement account.
func (s *Service) RemoteBalance(ctx context.Context, card string) (decimal.Decimal, error) {
	status, err := s.client.AccountStatus(ctx, card)
	if err != nil {
		return decimal.Zero, err
	}
	return status.Coins, nil
}

// CardStatus returns the full remote state of a settlement account.
func (s *Service) CardStatus(ctx context.Context, card string) (*domain.AccountStatus, error) {
	return s.client.AccountStatus(ctx, card)
}

// Give credits a holder with fiat out of thin air. Staff operation.
func (s *Service) Give(ctx context.Context, tenantID, holderID string, amount decimal.Decimal) (decimal.Decimal, error) {
	amount = domain.FloorFiat(amount)
	if amount.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidAmount)
	}

	m := s.locks.get(tenantID, holderID)
	m.Lock()
	defer m.Unlock()

	acc, err := s.loadAccount(ctx, tenantID, holderID)
	if err != nil {
		return decimal.Zero, err
	}
	if err := acc.Credit(amount); err != nil {
		return decimal.Zero, err
	}
	if err := s.accounts.UpsertBalance(ctx, tenantID, holderID, acc.FiatBalance); err != nil {
		return decimal.Zero, err
	}
	return acc.FiatBalance, nil
}

// Pay moves fiat between two holders of the same tenant. Purely local: the
// settlement service is never involved and the conversion rate is untouched.
// Both balances change under the pair lock, so a concurrent Pay on the same
// accounts cannot overdraw.
func (s *Service) Pay(ctx context.Context, tenantID, fromHolder, toHolder string, amount decimal.Decimal) error {
	amount = domain.FloorFiat(amount)
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", domain.ErrInvalidAmount)
	}
	if fromHolder == toHolder {
		return fmt.Errorf("%w: cannot pay yourself", domain.ErrInvalidAmount)
	}

	unlock := s.locks.lockPair(tenantID, fromHolder, toHolder)
	defer unlock()

	src, err := s.loadAccount(ctx, tenantID, fromHolder)
	if err != nil {
		return err
	}
	dst, err := s.loadAccount(ctx, tenantID, toHolder)
	if err != nil {
		return err
	}

	if err := src.Debit(amount); err != nil {
		return err
	}
	if err := dst.Credit(amount); err != nil {
		return err
	}

	// Both sides in one write: a partial persist would destroy the amount.
	return s.accounts.UpsertBalancePair(ctx, tenantID, fromHolder, src.FiatBalance, toHolder, dst.FiatBalance)
}

// LinkCard verifies a settlement account exists remotely, then records it as
// the holder's linked card.
func (s *Service) LinkCard(ctx context.Context, tenantID, holderID, card string) error {
	if _, err := s.client.AccountStatus(ctx, card); err != nil {
		return err
	}
	return s.accounts.LinkCard(ctx, tenantID, holderID, card)
}

// Withdraw submits a coin transfer of amount×rate from the tenant's linked
// card to the holder's remote user id. On settlement success the holder's
// fiat balance is credited by the fiat amount inside the drain loop; on
// failure the ledger is untouched.
func (s *Service) Withdraw(ctx context.Context, tenantID, holderID, toUserID string, amount decimal.Decimal) (uuid.UUID, <-chan processor.Outcome, error) {
	amount = domain.FloorFiat(amount)
	if amount.Sign() <= 0 {
		return uuid.Nil, nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidAmount)
	}

	card, err := s.tenantCard(ctx, tenantID)
	if err != nil {
		return uuid.Nil, nil, err
	}

	coinText, err := s.coinAmount(amount)
	if err != nil {
		return uuid.Nil, nil, err
	}
	if err := s.checkRemoteFunds(ctx, card, coinText); err != nil {
		return uuid.Nil, nil, err
	}

	job, err := domain.NewAccountToUserJob(tenantID, holderID, domain.AccountToUserPayload{
		SourceCard: card,
		ToUserID:   toUserID,
		Amount:     coinText,
	})
	if err != nil {
		return uuid.Nil, nil, err
	}

	return s.queue.Submit(ctx, job, func(out processor.Outcome) {
		if !out.Succeeded() {
			return
		}
		if err := s.applyCredit(tenantID, holderID, amount); err != nil {
			s.logger.Error("failed to credit ledger after settlement",
				"job_id", out.JobID, "tenant", tenantID, "holder", holderID, "error", err)
		}
	})
}

// PayCard debits the holder's fiat balance up front, then submits a coin
// transfer of amount×rate from the tenant's linked card to the destination
// card. The up-front debit reserves the funds, so a second request cannot
// spend the same balance while the job is queued; a failed settlement refunds
// it inside the drain loop.
func (s *Service) PayCard(ctx context.Context, tenantID, holderID, toCard string, amount decimal.Decimal) (uuid.UUID, <-chan processor.Outcome, error) {
	amount = domain.FloorFiat(amount)
	if amount.Sign() <= 0 {
		return uuid.Nil, nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidAmount)
	}

	card, err := s.tenantCard(ctx, tenantID)
	if err != nil {
		return uuid.Nil, nil, err
	}
	coinText, err := s.coinAmount(amount)
	if err != nil {
		return uuid.Nil, nil, err
	}

	if err := s.reserve(ctx, tenantID, holderID, amount); err != nil {
		return uuid.Nil, nil, err
	}

	job, err := domain.NewAccountToAccountJob(tenantID, holderID, domain.AccountToAccountPayload{
		FromCard: card,
		ToCard:   toCard,
		Amount:   coinText,
	})
	if err != nil {
		s.refund(tenantID, holderID, amount)
		return uuid.Nil, nil, err
	}

	jobID, ch, err := s.queue.Submit(ctx, job, func(out processor.Outcome) {
		if out.Succeeded() {
			return
		}
		s.refund(tenantID, holderID, amount)
	})
	if err != nil {
		s.refund(tenantID, holderID, amount)
		return uuid.Nil, nil, err
	}
	return jobID, ch, nil
}

// loadAccount maps an absent record onto the implicit zero-balance account.
func (s *Service) loadAccount(ctx context.Context, tenantID, holderID string) (*domain.LedgerAccount, error) {
	acc, err := s.accounts.GetAccount(ctx, tenantID, holderID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return domain.NewLedgerAccount(tenantID, holderID), nil
		}
		return nil, err
	}
	return acc, nil
}

// tenantCard returns the settlement card backing the tenant's coin pool.
func (s *Service) tenantCard(ctx context.Context, tenantID string) (string, error) {
	acc, err := s.loadAccount(ctx, tenantID, tenantID)
	if err != nil {
		return "", err
	}
	if acc.LinkedCard == "" {
		return "", fmt.Errorf("%w: tenant has no linked settlement card", domain.ErrAccountNotFound)
	}
	return acc.LinkedCard, nil
}

// coinAmount converts a fiat amount into coin-encoded transfer text.
func (s *Service) coinAmount(fiat decimal.Decimal) (string, error) {
	text := domain.EncodeCoin(fiat.Mul(s.rate))
	if text == "0" {
		return "", fmt.Errorf("%w: amount is below coin precision", domain.ErrInvalidAmount)
	}
	return text, nil
}

// checkRemoteFunds rejects a withdrawal the tenant's coin pool cannot cover.
func (s *Service) checkRemoteFunds(ctx context.Context, card, coinText string) error {
	status, err := s.client.AccountStatus(ctx, card)
	if err != nil {
		return err
	}
	needed, err := decimal.NewFromString(coinText)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidAmount, err)
	}
	if status.Coins.LessThan(needed) {
		return fmt.Errorf("%w: card holds %s coins, transfer needs %s",
			domain.ErrInsufficientBalance, domain.FormatCoin(status.Coins), coinText)
	}
	return nil
}

// reserve debits the holder under their account lock.
func (s *Service) reserve(ctx context.Context, tenantID, holderID string, amount decimal.Decimal) error {
	m := s.locks.get(tenantID, holderID)
	m.Lock()
	defer m.Unlock()

	acc, err := s.loadAccount(ctx, tenantID, holderID)
	if err != nil {
		return err
	}
	if err := acc.Debit(amount); err != nil {
		return err
	}
	return s.accounts.UpsertBalance(ctx, tenantID, holderID, acc.FiatBalance)
}

// applyCredit credits the holder under their account lock. Runs inside the
// drain loop, so it uses a background context rather than the long-gone
// submission context.
func (s *Service) applyCredit(tenantID, holderID string, amount decimal.Decimal) error {
	m := s.locks.get(tenantID, holderID)
	m.Lock()
	defer m.Unlock()

	ctx := context.Background()
	acc, err := s.loadAccount(ctx, tenantID, holderID)
	if err != nil {
		return err
	}
	if err := acc.Credit(amount); err != nil {
		return err
	}
	return s.accounts.UpsertBalance(ctx, tenantID, holderID, acc.FiatBalance)
}

func (s *Service) refund(tenantID, holderID string, amount decimal.Decimal) {
	if err := s.applyCredit(tenantID, holderID, amount); err != nil {
		s.logger.Error("failed to refund reserved balance",
			"tenant", tenantID, "holder", holderID, "amount", amount, "error", err)
	}
}
