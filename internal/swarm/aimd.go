package swarm

import (
	"sync"
	"time"
)

// AIMD is an additive-increase / multiplicative-decrease concurrency limit.
type AIMD struct {
	mu         sync.Mutex
	limit      int
	minWorkers int
	maxWorkers int
	lastChange time.Time

	// Step is added to the limit after a fast, unthrottled job.
	Step int
	// Fast is the latency under which a job counts as healthy.
	Fast time.Duration
	// Settle suppresses changes closer together than this.
	Settle time.Duration

	now func() time.Time
}

func NewAIMD(start, min, max int) *AIMD {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	if start < min {
		start = min
	}
	if start > max {
		start = max
	}
	return &AIMD{
		limit:      start,
		minWorkers: min,
		maxWorkers: max,
		Step:       1,
		Fast:       250 * time.Millisecond,
		Settle:     100 * time.Millisecond,
		now:        time.Now,
	}
}

func (a *AIMD) Limit() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.limit
}

// Feedback adjusts the limit from one finished job.
func (a *AIMD) Feedback(lat time.Duration, throttled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if !a.lastChange.IsZero() && now.Sub(a.lastChange) < a.Settle {
		return
	}

	if throttled {
		a.limit /= 2
		if a.limit < a.minWorkers {
			a.limit = a.minWorkers
		}
		a.lastChange = now
		return
	}

	if lat < a.Fast && a.limit < a.maxWorkers {
		a.limit += a.Step
		if a.limit > a.maxWorkers {
			a.limit = a.maxWorkers
		}
		a.lastChange = now
	}
}
