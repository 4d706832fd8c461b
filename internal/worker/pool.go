// Package worker runs background processing jobs on a bounded pool,
// admitting at most one in-flight job per project.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Submit rejections.
var (
	ErrBusy      = errors.New("project already processing")
	ErrQueueFull = errors.New("processing queue is full")
	ErrClosed    = errors.New("worker pool is shut down")
)

// Job is one unit of background work bound to a project.
type Job struct {
	ID        string
	ProjectID string
	Run       func(ctx context.Context)
}

// Pool executes jobs on a fixed set of worker goroutines.
type Pool struct {
	mu       sync.Mutex
	inflight map[string]string // project ID -> job ID
	jobs     chan Job
	wg       sync.WaitGroup
	closed   bool
}

// NewPool starts the worker goroutines and returns the pool.
func NewPool(workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		inflight: make(map[string]string),
		jobs:     make(chan Job, queueSize),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit enqueues a job for the given project and returns its job ID.
// A project with a run already queued or executing is rejected with ErrBusy.
func (p *Pool) Submit(projectID string, run func(ctx context.Context)) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return "", ErrClosed
	}
	if _, ok := p.inflight[projectID]; ok {
		return "", ErrBusy
	}

	job := Job{ID: uuid.New().String(), ProjectID: projectID, Run: run}
	p.inflight[projectID] = job.ID

	// The send stays under p.mu: Shutdown closes the channel under the
	// same lock, so the send and the close are never concurrent.
	select {
	case p.jobs <- job:
		return job.ID, nil
	default:
		delete(p.inflight, projectID)
		return "", ErrQueueFull
	}
}

// InFlight reports whether the project has a queued or executing job.
func (p *Pool) InFlight(projectID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inflight[projectID]
	return ok
}

// Shutdown stops accepting jobs and waits for queued and running work to finish.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		start := time.Now()
		slog.Info("job started", "job_id", job.ID, "project_id", job.ProjectID)

		job.Run(context.Background())

		p.mu.Lock()
		delete(p.inflight, job.ProjectID)
		p.mu.Unlock()

		slog.Info("job finished", "job_id", job.ID, "project_id", job.ProjectID,
			"duration", time.Since(start).Round(time.Millisecond))
	}
}
