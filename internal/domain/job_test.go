package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccountToUserJob_Valid(t *testing.T) {
	job, err := NewAccountToUserJob("guild-1", "user-1", AccountToUserPayload{
		SourceCard: "CARD-A",
		ToUserID:   "9001",
		Amount:     "0.0000001",
	})
	require.NoError(t, err)

	assert.Equal(t, JobKindAccountToUser, job.Kind)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.NotNil(t, job.ToUser)
	assert.Nil(t, job.ToAccount)
	assert.NoError(t, job.Validate())
}

func TestNewAccountToUserJob_RejectsBadPayload(t *testing.T) {
	_, err := NewAccountToUserJob("guild-1", "user-1", AccountToUserPayload{
		ToUserID: "9001",
		Amount:   "1",
	})
	assert.Error(t, err)

	_, err = NewAccountToUserJob("guild-1", "user-1", AccountToUserPayload{
		SourceCard: "CARD-A",
		ToUserID:   "9001",
		Amount:     "-1",
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestNewAccountToAccountJob_Valid(t *testing.T) {
	job, err := NewAccountToAccountJob("guild-1", "user-1", AccountToAccountPayload{
		FromCard: "CARD-A",
		ToCard:   "CARD-B",
		Amount:   "2.5",
	})
	require.NoError(t, err)

	assert.Equal(t, JobKindAccountToAccount, job.Kind)
	assert.NoError(t, job.Validate())
}

func TestJobValidate_UnknownKind(t *testing.T) {
	job := &Job{TenantID: "guild-1", HolderID: "user-1", Kind: JobKind("bogus")}
	assert.ErrorIs(t, job.Validate(), ErrUnknownJobKind)
}

func TestJobValidate_KindWithoutPayload(t *testing.T) {
	job := &Job{TenantID: "guild-1", HolderID: "user-1", Kind: JobKindAccountToUser}
	assert.ErrorIs(t, job.Validate(), ErrUnknownJobKind)
}

func TestJobStatusTransitions(t *testing.T) {
	assert.True(t, JobStatusPending.CanTransitionTo(JobStatusProcessing))
	assert.True(t, JobStatusProcessing.CanTransitionTo(JobStatusCompleted))
	assert.True(t, JobStatusProcessing.CanTransitionTo(JobStatusFailed))
	// A job abandoned before dispatch fails without ever processing.
	assert.True(t, JobStatusPending.CanTransitionTo(JobStatusFailed))

	// No other transitions are legal; terminal states are final.
	assert.False(t, JobStatusPending.CanTransitionTo(JobStatusCompleted))
	assert.False(t, JobStatusProcessing.CanTransitionTo(JobStatusPending))
	assert.False(t, JobStatusCompleted.CanTransitionTo(JobStatusFailed))
	assert.False(t, JobStatusFailed.CanTransitionTo(JobStatusPending))

	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.False(t, JobStatusPending.IsTerminal())
	assert.False(t, JobStatusProcessing.IsTerminal())
}
