// Package processor implements the strictly-serial settlement job queue.
//
// One dedicated drain goroutine is the only consumer of the queue, so at most
// one job is ever in flight against the remote service and jobs complete in
// strict submission order. Consecutive settlement calls are separated by a
// configurable inter-job delay to respect the remote service's rate limits.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"coinsettle/internal/domain"
)

// Outcome is the tagged result of one settlement job: either Result or Err is
// set, never both.
type Outcome struct {
	JobID  uuid.UUID
	Result *domain.SettlementResult
	Err    error
}

// Succeeded reports whether the settlement was applied.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// entry pairs a queued job with its delivery channels.
type entry struct {
	job      *domain.Job
	onResult func(Outcome)
	outcome  chan Outcome // buffered, receives exactly one value
}

// Processor owns every submitted job until it reaches a terminal status.
// Construct one per process and pass it by handle; there is no ambient
// global queue.
type Processor struct {
	jobs     domain.JobRepository
	client   domain.SettlementClient
	interval time.Duration
	logger   *slog.Logger

	queue chan *entry

	mu     sync.Mutex
	closed bool

	// lastFinished is touched only by the drain goroutine.
	lastFinished time.Time
}

// New creates a processor draining jobs one at a time with the given
// inter-job interval. capacity bounds the submission queue.
func New(jobs domain.JobRepository, client domain.SettlementClient, interval time.Duration, capacity int, logger *slog.Logger) *Processor {
	if capacity <= 0 {
		capacity = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		jobs:     jobs,
		client:   client,
		interval: interval,
		logger:   logger,
		queue:    make(chan *entry, capacity),
	}
}

// Submit validates and persists a job, places it on the queue and returns
// immediately. The returned channel receives the job's Outcome exactly once.
//
// onResult, when non-nil, is invoked inside the drain loop after the job
// reaches a terminal status and before the next job's settlement call is
// issued; ledger mutations belong there. A panic in onResult is recovered and
// logged, never aborting the drain.
func (p *Processor) Submit(ctx context.Context, job *domain.Job, onResult func(Outcome)) (uuid.UUID, <-chan Outcome, error) {
	if err := job.Validate(); err != nil {
		return uuid.Nil, nil, err
	}

	job.ID = uuid.New()
	job.Status = domain.JobStatusPending
	job.CreatedAt = time.Now().UTC()

	if err := p.jobs.Insert(ctx, job); err != nil {
		return uuid.Nil, nil, fmt.Errorf("failed to persist job: %w", err)
	}

	e := &entry{job: job, onResult: onResult, outcome: make(chan Outcome, 1)}
	if err := p.enqueue(ctx, e); err != nil {
		// The row is already persisted. The caller is told the submission
		// failed, so the job must end terminal or the next startup's recovery
		// scan would resurrect and execute it. Background context: the
		// caller's ctx is typically the reason enqueue failed.
		now := time.Now().UTC()
		job.Status = domain.JobStatusFailed
		job.ProcessedAt = &now
		if uerr := p.jobs.UpdateStatus(context.Background(), job.ID, domain.JobStatusFailed, &now); uerr != nil {
			p.logger.Error("failed to mark unqueued job failed", "job_id", job.ID, "error", uerr)
		}
		return uuid.Nil, nil, err
	}

	p.logger.Debug("settlement job submitted", "job_id", job.ID, "kind", job.Kind, "tenant", job.TenantID)
	return job.ID, e.outcome, nil
}

// Recover marks every job left unfinished by a previous run as failed.
// Nothing is replayed: a job caught in processing may or may not have reached
// the remote, so re-issuing risks double settlement, and a pending job lost
// its ledger continuation with the process — replaying just the coin transfer
// would settle remotely with no matching ledger write. The operator reconciles
// against the remote account status and re-submits.
func (p *Processor) Recover(ctx context.Context) (failed int, err error) {
	unfinished, err := p.jobs.ListUnfinished(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to scan unfinished jobs: %w", err)
	}

	for _, job := range unfinished {
		now := time.Now().UTC()
		if err := p.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusFailed, &now); err != nil {
			return failed, fmt.Errorf("failed to fail unfinished job %s: %w", job.ID, err)
		}
		p.logger.Warn("unfinished job marked failed for re-submission",
			"job_id", job.ID, "kind", job.Kind, "status", job.Status)
		failed++
	}

	return failed, nil
}

// Run drains the queue until ctx is cancelled. It must be called exactly once.
func (p *Processor) Run(ctx context.Context) {
	p.logger.Info("settlement processor started", "interval", p.interval)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("settlement processor stopped")
			return
		case e := <-p.queue:
			queueDepth.Dec()
			p.pace(ctx)
			if ctx.Err() != nil {
				p.abandon(e)
				return
			}
			p.process(ctx, e)
		}
	}
}

// Close rejects further submissions. Jobs already queued still drain while
// Run's context remains live.
func (p *Processor) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *Processor) enqueue(ctx context.Context, e *entry) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return domain.ErrQueueClosed
	}

	select {
	case p.queue <- e:
		queueDepth.Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pace pays the inter-job delay before the next item. The delay is measured
// from the previous job's completion, so it is never paid after the final job
// in a burst.
func (p *Processor) pace(ctx context.Context) {
	if p.lastFinished.IsZero() {
		return
	}
	wait := p.interval - time.Since(p.lastFinished)
	if wait <= 0 {
		return
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// process takes one job through processing to a terminal status, runs the
// caller's continuation and publishes the outcome.
func (p *Processor) process(ctx context.Context, e *entry) {
	defer func() { p.lastFinished = time.Now() }()

	job := e.job
	log := p.logger.With("job_id", job.ID, "kind", job.Kind, "tenant", job.TenantID)

	p.transition(ctx, job, domain.JobStatusProcessing, nil)

	start := time.Now()
	result, err := p.dispatch(ctx, job)
	settlementDuration.WithLabelValues(string(job.Kind)).Observe(time.Since(start).Seconds())

	now := time.Now().UTC()
	if err != nil {
		p.transition(ctx, job, domain.JobStatusFailed, &now)
		log.Warn("settlement job failed", "error", err)
	} else {
		p.transition(ctx, job, domain.JobStatusCompleted, &now)
		log.Info("settlement job completed", "tx_id", result.TxID)
	}
	jobsProcessed.WithLabelValues(string(job.Kind), string(job.Status)).Inc()

	out := Outcome{JobID: job.ID, Result: result, Err: err}
	p.invokeCallback(e, out)
	e.outcome <- out
}

// dispatch routes the job to the settlement operation matching its kind.
// An undispatchable job fails here without the client ever being contacted.
func (p *Processor) dispatch(ctx context.Context, job *domain.Job) (*domain.SettlementResult, error) {
	switch job.Kind {
	case domain.JobKindAccountToUser:
		if job.ToUser == nil {
			return nil, fmt.Errorf("%w: %s job without payload", domain.ErrUnknownJobKind, job.Kind)
		}
		return p.client.TransferToUser(ctx, job.ToUser.SourceCard, job.ToUser.ToUserID, job.ToUser.Amount)
	case domain.JobKindAccountToAccount:
		if job.ToAccount == nil {
			return nil, fmt.Errorf("%w: %s job without payload", domain.ErrUnknownJobKind, job.Kind)
		}
		return p.client.TransferToAccount(ctx, job.ToAccount.FromCard, job.ToAccount.ToCard, job.ToAccount.Amount)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownJobKind, job.Kind)
	}
}

// transition advances the in-memory job and mirrors the change to the store.
// The store is a durability mirror, not the owner: a write failure is logged
// and the drain keeps going.
func (p *Processor) transition(ctx context.Context, job *domain.Job, next domain.JobStatus, processedAt *time.Time) {
	if !job.Status.CanTransitionTo(next) {
		p.logger.Error("illegal job status transition",
			"job_id", job.ID, "from", job.Status, "to", next)
		return
	}
	job.Status = next
	job.ProcessedAt = processedAt

	if err := p.jobs.UpdateStatus(ctx, job.ID, next, processedAt); err != nil {
		p.logger.Error("failed to persist job status",
			"job_id", job.ID, "status", next, "error", err)
	}
}

// abandon resolves an entry the drain dequeued but never dispatched before
// stopping. The settlement call was not issued, so the job fails and its
// outcome is still published exactly once.
func (p *Processor) abandon(e *entry) {
	now := time.Now().UTC()
	p.transition(context.Background(), e.job, domain.JobStatusFailed, &now)

	out := Outcome{JobID: e.job.ID, Err: fmt.Errorf("%w: stopped before dispatch", domain.ErrQueueClosed)}
	p.invokeCallback(e, out)
	e.outcome <- out
	p.logger.Warn("queued job failed at shutdown before dispatch", "job_id", e.job.ID, "kind", e.job.Kind)
}

func (p *Processor) invokeCallback(e *entry, out Outcome) {
	if e.onResult == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job continuation panicked", "job_id", out.JobID, "panic", r)
		}
	}()
	e.onResult(out)
}
