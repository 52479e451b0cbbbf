package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/expenseflow/internal/jobs"
)

// Queue is an in-memory implementation of job publisher and consumer. It
// uses a Go channel for job distribution and is safe for concurrent use.
// Suitable for single-instance deployments and tests; a multi-instance
// deployment would migrate to Cloud Tasks or Pub/Sub.
type Queue struct {
	jobChan   chan *jobs.IngestDocumentJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	closed    bool
}

// NewQueue creates a new in-memory job queue. bufferSize determines how
// many jobs can be queued before PublishIngest blocks.
func NewQueue(bufferSize int, store jobs.JobStore) *Queue {
	return &Queue{
		jobChan:   make(chan *jobs.IngestDocumentJob, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
	}
}

// PublishIngest implements the Publisher interface.
func (q *Queue) PublishIngest(ctx context.Context, job *jobs.IngestDocumentJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	job.Status = jobs.JobStatusPending
	job.CreatedAt = time.Now()

	if err := q.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("saving job before enqueue: %w", err)
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

// Start implements the Consumer interface. It blocks until the context is
// canceled or the queue is closed.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.closeChan:
			return nil
		case job := <-q.jobChan:
			q.wg.Add(1)
			q.runJob(ctx, job, handler)
			q.wg.Done()
		}
	}
}

// runJob executes one job and records its lifecycle in the store.
func (q *Queue) runJob(ctx context.Context, job *jobs.IngestDocumentJob, handler jobs.JobHandler) {
	started := time.Now()
	job.Status = jobs.JobStatusRunning
	job.StartedAt = &started
	_ = q.store.SaveJob(ctx, job)

	err := handler(ctx, job)

	completed := time.Now()
	job.CompletedAt = &completed
	if err != nil {
		job.Status = jobs.JobStatusFailed
		job.Error = err.Error()
	} else {
		job.Status = jobs.JobStatusCompleted
	}
	_ = q.store.SaveJob(ctx, job)
}

// Stop implements the Consumer interface. It waits for in-flight jobs to
// finish or the context to expire.
func (q *Queue) Stop(ctx context.Context) error {
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

// Close marks the queue closed. Pending jobs still in the channel are not
// processed after Close.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.closeChan)
	return nil
}

// Ensure Queue implements both interfaces.
var (
	_ jobs.Publisher = (*Queue)(nil)
	_ jobs.Consumer  = (*Queue)(nil)
)
