package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobKind identifies which settlement operation a job performs.
type JobKind string

const (
	// JobKindAccountToUser transfers coins from a settlement account to a
	// remote user identifier.
	JobKindAccountToUser JobKind = "account_to_user"

	// JobKindAccountToAccount transfers coins between two settlement accounts.
	JobKindAccountToAccount JobKind = "account_to_account"
)

// JobStatus is the lifecycle state of a settlement job.
// Transitions are monotonic: pending -> processing -> completed | failed.
// A pending job may also fail directly when it is abandoned before its
// settlement call was ever issued.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo reports whether the move from s to next is a legal
// lifecycle step.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing || next == JobStatusFailed
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

// AccountToUserPayload carries the parameters of an account_to_user job.
// Amount is coin-encoded text produced by EncodeCoin.
type AccountToUserPayload struct {
	SourceCard string `json:"source_card"`
	ToUserID   string `json:"to_user_id"`
	Amount     string `json:"amount"`
}

// Validate checks the payload shape at construction time.
func (p *AccountToUserPayload) Validate() error {
	if p.SourceCard == "" {
		return errors.New("source card is required")
	}
	if p.ToUserID == "" {
		return errors.New("destination user id is required")
	}
	if _, err := ParseAmount(p.Amount); err != nil {
		return err
	}
	return nil
}

// AccountToAccountPayload carries the parameters of an account_to_account job.
// Amount is coin-encoded text produced by EncodeCoin.
type AccountToAccountPayload struct {
	FromCard string `json:"from_card"`
	ToCard   string `json:"to_card"`
	Amount   string `json:"amount"`
}

// Validate checks the payload shape at construction time.
func (p *AccountToAccountPayload) Validate() error {
	if p.FromCard == "" {
		return errors.New("source card is required")
	}
	if p.ToCard == "" {
		return errors.New("destination card is required")
	}
	if _, err := ParseAmount(p.Amount); err != nil {
		return err
	}
	return nil
}

// Job is one queued request to invoke the external settlement service.
// Exactly one of ToUser / ToAccount is non-nil, matching Kind. Once submitted
// a job is owned by the processor; the job store is a durability mirror.
type Job struct {
	ID          uuid.UUID
	TenantID    string
	HolderID    string
	Kind        JobKind
	ToUser      *AccountToUserPayload
	ToAccount   *AccountToAccountPayload
	Status      JobStatus
	CreatedAt   time.Time
	ProcessedAt *time.Time // set only on a terminal status
}

// NewAccountToUserJob builds a validated account_to_user job.
func NewAccountToUserJob(tenantID, holderID string, payload AccountToUserPayload) (*Job, error) {
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("account_to_user payload: %w", err)
	}
	return &Job{
		TenantID: tenantID,
		HolderID: holderID,
		Kind:     JobKindAccountToUser,
		ToUser:   &payload,
		Status:   JobStatusPending,
	}, nil
}

// NewAccountToAccountJob builds a validated account_to_account job.
func NewAccountToAccountJob(tenantID, holderID string, payload AccountToAccountPayload) (*Job, error) {
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("account_to_account payload: %w", err)
	}
	return &Job{
		TenantID:  tenantID,
		HolderID:  holderID,
		Kind:      JobKindAccountToAccount,
		ToAccount: &payload,
		Status:    JobStatusPending,
	}, nil
}

// Validate ensures the job carries a dispatchable kind with the matching
// payload shape. Jobs loaded back from the store pass through here before the
// processor will touch them.
func (j *Job) Validate() error {
	if j.TenantID == "" {
		return errors.New("tenant id is required")
	}
	if j.HolderID == "" {
		return errors.New("holder id is required")
	}
	switch j.Kind {
	case JobKindAccountToUser:
		if j.ToUser == nil {
			return fmt.Errorf("%w: %s job without payload", ErrUnknownJobKind, j.Kind)
		}
		return j.ToUser.Validate()
	case JobKindAccountToAccount:
		if j.ToAccount == nil {
			return fmt.Errorf("%w: %s job without payload", ErrUnknownJobKind, j.Kind)
		}
		return j.ToAccount.Validate()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJobKind, j.Kind)
	}
}
