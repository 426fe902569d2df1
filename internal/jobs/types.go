package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/finance-migrator/internal/migration"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the migration ran to the end. The report
	// may still list records that were not written.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// Active reports whether a job in this status still occupies its caller.
func (s JobStatus) Active() bool {
	return s == JobStatusPending || s == JobStatusRunning || s == JobStatusRetrying
}

var (
	// ErrJobNotFound is returned when a job id is unknown.
	ErrJobNotFound = errors.New("job not found")
	// ErrCallerBusy is returned when a caller already has an active migration.
	ErrCallerBusy = errors.New("caller already has an active migration")
)

// MigrationJob represents one migration run requested for a caller.
type MigrationJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// CallerID is the signed-in user whose snapshot is migrated.
	CallerID string `json:"caller_id"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// Progress is the live log of progress messages, oldest first.
	Progress []string `json:"progress"`

	// Report is set once the migration returns.
	Report *migration.Report `json:"report,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishMigration publishes a migration job.
	PublishMigration(ctx context.Context, job *MigrationJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler runs a job, forwarding each progress line to progress.
// An error marks the run as failed; Retryable decides whether it is retried.
type JobHandler func(ctx context.Context, job *MigrationJob, progress migration.ProgressFunc) (*migration.Report, error)

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *MigrationJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*MigrationJob, error)

	// ListJobs retrieves jobs with optional filtering, oldest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*MigrationJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error

	// AppendProgress adds one line to a job's progress log.
	AppendProgress(ctx context.Context, jobID, message string) error

	// ActiveJobForCaller returns the caller's pending or running job, or nil.
	ActiveJobForCaller(ctx context.Context, callerID string) (*MigrationJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// CallerID filters jobs by caller.
	CallerID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

// Migrator is the part of migration.Migrator a job needs.
type Migrator interface {
	Migrate(ctx context.Context, callerID string, onProgress migration.ProgressFunc) (*migration.Report, error)
}

// MigrationHandler returns a JobHandler that runs m for the job's caller.
func MigrationHandler(m Migrator) JobHandler {
	return func(ctx context.Context, job *MigrationJob, progress migration.ProgressFunc) (*migration.Report, error) {
		return m.Migrate(ctx, job.CallerID, progress)
	}
}

// Retryable reports whether a failed run may succeed if tried again. A corrupt
// snapshot never will.
func Retryable(err error) bool {
	return err != nil && !errors.Is(err, migration.ErrCorruptSnapshot)
}
