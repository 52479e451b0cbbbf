package jobs

import (
	"context"
	"time"

	"github.com/dvloznov/expenseflow/internal/pipeline"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
)

// IngestDocumentJob is a request to run the ingestion pipeline over a file
// stored in GCS. Result carries the batch outcome once the job completes.
type IngestDocumentJob struct {
	JobID string `json:"job_id"`

	// GCSURI is the gs:// address of the uploaded file to ingest.
	GCSURI string `json:"gcs_uri"`

	// Persist controls whether accepted records are written to the store.
	Persist bool `json:"persist"`

	Status JobStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains failure details when Status is failed.
	Error string `json:"error,omitempty"`

	// Result is the pipeline outcome for completed jobs.
	Result *pipeline.Outcome `json:"result,omitempty"`
}

// Publisher enqueues ingestion jobs. The abstraction allows swapping the
// in-memory queue for Cloud Tasks or Pub/Sub later.
type Publisher interface {
	// PublishIngest enqueues an ingestion job.
	PublishIngest(ctx context.Context, job *IngestDocumentJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer processes queued jobs.
type Consumer interface {
	// Start begins consuming jobs; the handler is called for each one.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes one job. The handler may mutate the job (e.g. set
// Result); the queue saves it again after the handler returns. A returned
// error marks the job failed.
type JobHandler func(ctx context.Context, job *IngestDocumentJob) error

// JobStore tracks job state for the status endpoints.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *IngestDocumentJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*IngestDocumentJob, error)

	// ListJobs retrieves jobs with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*IngestDocumentJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
