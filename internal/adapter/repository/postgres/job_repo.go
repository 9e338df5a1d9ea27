package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"coinsettle/internal/domain"
)

// jobRepository implements domain.JobRepository
type jobRepository struct {
	db *DB
}

// NewJobRepository creates a new settlement job repository
func NewJobRepository(db *DB) domain.JobRepository {
	return &jobRepository{db: db}
}

// Insert appends a newly submitted job with its kind-specific payload as JSON
func (r *jobRepository) Insert(ctx context.Context, job *domain.Job) error {
	payload, err := marshalPayload(job)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO settlement_jobs (id, tenant_id, holder_id, kind, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.ExecContext(ctx, query,
		job.ID,
		job.TenantID,
		job.HolderID,
		string(job.Kind),
		payload,
		string(job.Status),
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	return nil
}

// UpdateStatus records a lifecycle transition
func (r *jobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus, processedAt *time.Time) error {
	query := `
		UPDATE settlement_jobs
		SET status = $2, processed_at = $3
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, id, string(status), processedAt)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}

	return nil
}

// GetByID retrieves a job by id
func (r *jobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `
		SELECT id, tenant_id, holder_id, kind, payload, status, created_at, processed_at
		FROM settlement_jobs
		WHERE id = $1
	`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("failed to get job by ID: %w", err)
	}

	return job, nil
}

// ListUnfinished retrieves all non-terminal jobs in creation order
func (r *jobRepository) ListUnfinished(ctx context.Context) ([]*domain.Job, error) {
	query := `
		SELECT id, tenant_id, holder_id, kind, payload, status, created_at, processed_at
		FROM settlement_jobs
		WHERE status IN ($1, $2)
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query,
		string(domain.JobStatusPending),
		string(domain.JobStatusProcessing),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list unfinished jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}

	return jobs, nil
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(s scanner) (*domain.Job, error) {
	var job domain.Job
	var kind, status string
	var payload []byte
	var processedAt sql.NullTime

	err := s.Scan(
		&job.ID,
		&job.TenantID,
		&job.HolderID,
		&kind,
		&payload,
		&status,
		&job.CreatedAt,
		&processedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	if processedAt.Valid {
		t := processedAt.Time
		job.ProcessedAt = &t
	}

	if err := unmarshalPayload(&job, payload); err != nil {
		return nil, err
	}

	return &job, nil
}

func marshalPayload(job *domain.Job) ([]byte, error) {
	switch job.Kind {
	case domain.JobKindAccountToUser:
		if job.ToUser == nil {
			return nil, fmt.Errorf("%w: %s job without payload", domain.ErrUnknownJobKind, job.Kind)
		}
		return json.Marshal(job.ToUser)
	case domain.JobKindAccountToAccount:
		if job.ToAccount == nil {
			return nil, fmt.Errorf("%w: %s job without payload", domain.ErrUnknownJobKind, job.Kind)
		}
		return json.Marshal(job.ToAccount)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownJobKind, job.Kind)
	}
}

// unmarshalPayload fills the payload slot matching the stored kind. A record
// with an unrecognized kind is returned with no payload so the recovery path
// can fail it through the processor instead of erroring the whole scan.
func unmarshalPayload(job *domain.Job, payload []byte) error {
	switch job.Kind {
	case domain.JobKindAccountToUser:
		job.ToUser = &domain.AccountToUserPayload{}
		if err := json.Unmarshal(payload, job.ToUser); err != nil {
			return fmt.Errorf("failed to parse account_to_user payload: %w", err)
		}
	case domain.JobKindAccountToAccount:
		job.ToAccount = &domain.AccountToAccountPayload{}
		if err := json.Unmarshal(payload, job.ToAccount); err != nil {
			return fmt.Errorf("failed to parse account_to_account payload: %w", err)
		}
	}
	return nil
}
