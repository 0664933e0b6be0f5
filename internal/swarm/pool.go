// Package swarm runs indexed jobs under a concurrency limit that backs off when the remote side throttles.
package swarm

import (
	"context"
	"sync"
	"time"
)

// Job is one unit of work, identified by its index.
type Job func(ctx context.Context, i int) error

// Pool executes jobs with an AIMD-controlled number in flight.
type Pool struct {
	aimd *AIMD

	// Throttled classifies an error as back-pressure. Throttled jobs are retried.
	Throttled func(error) bool
	// Retries bounds how often a throttled job is re-run.
	Retries int
	// Backoff is the base delay before a retry, multiplied by the attempt number.
	Backoff time.Duration

	mu       sync.Mutex
	cond     *sync.Cond
	inflight int
	done     int64
}

func NewPool(start, min, max int) *Pool {
	p := &Pool{
		aimd:    NewAIMD(start, min, max),
		Retries: 3,
		Backoff: 200 * time.Millisecond,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	InFlight  int
	Limit     int
	Completed int64
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{InFlight: p.inflight, Limit: p.aimd.Limit(), Completed: p.done}
}

// Run calls job for every index in [0, n) and waits for all of them.
// The returned slice holds each index's final error. Jobs not started
// because ctx was cancelled carry ctx.Err().
func (p *Pool) Run(ctx context.Context, n int, job Job) []error {
	errs := make([]error, n)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			for j := i; j < n; j++ {
				errs[j] = err
			}
			break
		}

		p.acquire()
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer p.release()
			errs[i] = p.attempt(ctx, i, job)
		}(i)
	}

	wg.Wait()
	return errs
}

func (p *Pool) attempt(ctx context.Context, i int, job Job) error {
	for try := 0; ; try++ {
		start := time.Now()
		err := job(ctx, i)
		throttled := err != nil && p.Throttled != nil && p.Throttled(err)
		p.aimd.Feedback(time.Since(start), throttled)

		if !throttled || try >= p.Retries {
			return err
		}

		select {
		case <-ctx.Done():
			return err
		case <-time.After(p.Backoff * time.Duration(try+1)):
		}
	}
}

func (p *Pool) acquire() {
	p.mu.Lock()
	for p.inflight >= p.aimd.Limit() {
		p.cond.Wait()
	}
	p.inflight++
	p.mu.Unlock()
}

func (p *Pool) release() {
	p.mu.Lock()
	p.inflight--
	p.done++
	p.mu.Unlock()
	p.cond.Broadcast()
}
