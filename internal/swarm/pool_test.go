package swarm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSlowDown = errors.New("slow down")

func TestPoolRunsEveryJob(t *testing.T) {
	p := NewPool(2, 1, 2)

	var mu sync.Mutex
	seen := make(map[int]bool)
	var peak, current int32

	errs := p.Run(context.Background(), 20, func(ctx context.Context, i int) error {
		n := atomic.AddInt32(&current, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&current, -1)

		mu.Lock()
		seen[i] = true
		mu.Unlock()
		if i == 7 {
			return errors.New("boom")
		}
		return nil
	})

	require.Len(t, errs, 20)
	assert.Len(t, seen, 20)
	assert.EqualError(t, errs[7], "boom")
	assert.NoError(t, errs[6])
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.Equal(t, int64(20), p.Stats().Completed)
	assert.Zero(t, p.Stats().InFlight)
}

func TestPoolRetriesThrottledJobs(t *testing.T) {
	p := NewPool(4, 1, 4)
	p.Backoff = time.Millisecond
	p.Retries = 2
	p.Throttled = func(err error) bool { return errors.Is(err, errSlowDown) }

	var calls int32
	errs := p.Run(context.Background(), 1, func(ctx context.Context, i int) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errSlowDown
		}
		return nil
	})

	assert.NoError(t, errs[0])
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Less(t, p.Stats().Limit, 4)
}

func TestPoolGivesUpAfterRetries(t *testing.T) {
	p := NewPool(1, 1, 1)
	p.Backoff = time.Millisecond
	p.Retries = 1
	p.Throttled = func(err error) bool { return true }

	var calls int32
	errs := p.Run(context.Background(), 1, func(ctx context.Context, i int) error {
		atomic.AddInt32(&calls, 1)
		return errSlowDown
	})

	assert.ErrorIs(t, errs[0], errSlowDown)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPoolCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	errs := NewPool(1, 1, 1).Run(ctx, 3, func(ctx context.Context, i int) error {
		t.Error("job must not run")
		return nil
	})
	for _, err := range errs {
		assert.ErrorIs(t, err, context.Canceled)
	}
}
