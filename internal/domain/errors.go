package domain

import "errors"

// Sentinel errors for the settlement engine.
// Callers classify failures with errors.Is; wrapped detail is for logs only.
var (
	// ErrInvalidAmount indicates a non-numeric or non-positive amount.
	// Rejected before any state change.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientBalance indicates a local or remote balance check failed.
	// Rejected before a job is enqueued.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAccountNotFound indicates the remote service reported an unknown
	// account, or a local account lookup found nothing.
	ErrAccountNotFound = errors.New("account not found")

	// ErrSettlementUnavailable indicates a timeout, transport failure or a
	// malformed/unsuccessful response from the remote settlement service.
	ErrSettlementUnavailable = errors.New("settlement service unavailable")

	// ErrUnknownJobKind indicates a job was constructed with a kind the
	// processor cannot dispatch. Programmer error in job construction.
	ErrUnknownJobKind = errors.New("unknown job kind")

	// ErrJobNotFound indicates a job ID lookup found no record.
	ErrJobNotFound = errors.New("job not found")

	// ErrQueueClosed indicates a submission after the processor was shut down.
	ErrQueueClosed = errors.New("job queue closed")
)

// UserMessage maps an error onto one of the caller-facing failure messages.
// Every failure surfaced to a caller falls into exactly one of these buckets.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		return "Your request was invalid."
	case errors.Is(err, ErrInsufficientBalance):
		return "You don't have enough balance."
	case errors.Is(err, ErrAccountNotFound):
		return "Your request was invalid."
	case errors.Is(err, ErrSettlementUnavailable):
		return "The settlement service is unavailable, try again later."
	default:
		return "An unexpected error occurred."
	}
}
