// Package worker runs nearby-hazard refreshes off the caller's path.
package worker

import (
	"context"
	"sync"

	"github.com/roadwatch/go-road-hazards/internal/models"
)

// RefreshJob asks for a recomputation of active hazards near a user's latest
// reported position.
type RefreshJob struct {
	UserID       string
	ConnectionID string
	Location     models.Coordinates
}

type RefreshFunc func(ctx context.Context, job RefreshJob)

type Pool struct {
	numWorkers int
	jobs       chan RefreshJob
	refresh    RefreshFunc
	wg         sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewPool(numWorkers, bufferSize int, refresh RefreshFunc) *Pool {
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan RefreshJob, bufferSize),
		refresh:    refresh,
	}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.refresh(ctx, job)
		}
	}
}

// Submit enqueues a refresh without blocking. Refreshes are best-effort: when
// the buffer is full, or the pool has stopped, the job is dropped and Submit
// reports false. The next location update from the same user supersedes it
// anyway.
func (p *Pool) Submit(job RefreshJob) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}

// Stop closes the queue and waits for in-flight refreshes. Submits racing
// shutdown are rejected rather than sent on the closed channel. Idempotent.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	p.wg.Wait()
}
