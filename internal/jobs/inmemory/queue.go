package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/finance-migrator/internal/jobs"
	"github.com/dvloznov/finance-migrator/internal/logger"
)

const (
	defaultWorkers      = 5
	defaultMaxRetries   = 3
	defaultRetryBackoff = time.Second
)

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// This implementation is suitable for single-instance deployments and testing.
type Queue struct {
	jobChan   chan *jobs.MigrationJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	submitMu  sync.Mutex
	store     jobs.JobStore
	closed    bool

	workers      int
	retryBackoff time.Duration
	now          func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithWorkers sets how many jobs run concurrently.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithRetryBackoff sets the base delay before a retry; attempt n waits n times as long.
func WithRetryBackoff(d time.Duration) Option {
	return func(q *Queue) { q.retryBackoff = d }
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can be queued before PublishMigration blocks.
func NewQueue(bufferSize int, store jobs.JobStore, opts ...Option) *Queue {
	q := &Queue{
		jobChan:      make(chan *jobs.MigrationJob, bufferSize),
		closeChan:    make(chan struct{}),
		store:        store,
		workers:      defaultWorkers,
		retryBackoff: defaultRetryBackoff,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// PublishMigration implements the Publisher interface. A new job is refused
// with jobs.ErrCallerBusy while its caller has another active job.
func (q *Queue) PublishMigration(ctx context.Context, job *jobs.MigrationJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = q.now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = defaultMaxRetries
	}

	if q.store != nil {
		if err := q.admit(ctx, job); err != nil {
			return err
		}
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// admit saves the job unless another active job for the same caller exists.
func (q *Queue) admit(ctx context.Context, job *jobs.MigrationJob) error {
	q.submitMu.Lock()
	defer q.submitMu.Unlock()

	active, err := q.store.ActiveJobForCaller(ctx, job.CallerID)
	if err != nil {
		return fmt.Errorf("failed to check active jobs: %w", err)
	}
	if active != nil && active.JobID != job.JobID {
		return fmt.Errorf("%w: %s", jobs.ErrCallerBusy, active.JobID)
	}

	if err := q.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// Start implements the Consumer interface.
// It starts the configured number of workers, each running handler on one job at a time.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("queue is closed")
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

// worker processes jobs from the queue.
func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.processJob(ctx, job, handler)
		}
	}
}

// processJob executes a single job with retry logic.
func (q *Queue) processJob(ctx context.Context, job *jobs.MigrationJob, handler jobs.JobHandler) {
	log := logger.FromContext(ctx).With().
		Str("job_id", job.JobID).
		Str("caller_id", job.CallerID).
		Logger()

	job.Status = jobs.JobStatusRunning
	startedAt := q.now()
	job.StartedAt = &startedAt
	q.save(ctx, job)

	progress := func(message string) {
		job.Progress = append(job.Progress, message)
		if q.store != nil {
			_ = q.store.AppendProgress(ctx, job.JobID, message)
		}
	}

	report, err := handler(logger.WithContext(ctx, log), job, progress)

	completedAt := q.now()
	job.CompletedAt = &completedAt
	job.Report = report

	if err != nil {
		job.Error = err.Error()

		if jobs.Retryable(err) && job.RetryCount < job.MaxRetries {
			job.RetryCount++
			job.Status = jobs.JobStatusRetrying
			log.Warn().Err(err).Int("retry", job.RetryCount).Msg("Migration job failed, retrying")

			backoff := time.Duration(job.RetryCount) * q.retryBackoff
			time.AfterFunc(backoff, func() {
				job.Status = jobs.JobStatusPending
				job.StartedAt = nil
				job.CompletedAt = nil
				if err := q.PublishMigration(ctx, job); err != nil {
					log.Error().Err(err).Msg("Failed to re-enqueue migration job")
					job.Status = jobs.JobStatusFailed
					q.save(ctx, job)
				}
			})
		} else {
			job.Status = jobs.JobStatusFailed
			log.Error().Err(err).Msg("Migration job failed")
		}
	} else {
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		failures := 0
		if report != nil {
			failures = len(report.Failures)
		}
		log.Info().Int("failures", failures).Msg("Migration job completed")
	}

	q.save(ctx, job)
}

func (q *Queue) save(ctx context.Context, job *jobs.MigrationJob) {
	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
