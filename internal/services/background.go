package services

import (
	"context"
	"log"
	"sync"
	"time"
)

// BackgroundRunner executes fire-and-forget jobs (track-catalog refreshes,
// venue syncs triggered from show saves) on a fixed worker pool. Jobs carry
// their own error handling; a failed job is logged and dropped, never
// surfaced to the request that submitted it.
type BackgroundRunner struct {
	queue   chan backgroundJob
	wg      sync.WaitGroup
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

type backgroundJob struct {
	name string
	fn   func(ctx context.Context) error
}

// NewBackgroundRunner starts workers goroutines draining a queue of the
// given size. jobTimeout bounds each job's context.
func NewBackgroundRunner(workers, queueSize int, jobTimeout time.Duration) *BackgroundRunner {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	r := &BackgroundRunner{
		queue:   make(chan backgroundJob, queueSize),
		timeout: jobTimeout,
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

func (r *BackgroundRunner) worker() {
	defer r.wg.Done()
	for job := range r.queue {
		r.run(job)
	}
}

func (r *BackgroundRunner) run(job backgroundJob) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("background job %s panicked: %v", job.name, rec)
		}
	}()

	ctx := context.Background()
	cancel := func() {}
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
	}
	defer cancel()

	if err := job.fn(ctx); err != nil {
		log.Printf("background job %s failed: %v", job.name, err)
	}
}

// Submit enqueues a job. When the queue is full the job is dropped with a
// log line rather than blocking the caller; background work must never
// stall a user-facing request.
func (r *BackgroundRunner) Submit(name string, fn func(ctx context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		log.Printf("background job %s dropped: runner stopped", name)
		return
	}

	select {
	case r.queue <- backgroundJob{name: name, fn: fn}:
	default:
		log.Printf("background job %s dropped: queue full", name)
	}
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (r *BackgroundRunner) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	close(r.queue)
	r.wg.Wait()
}
