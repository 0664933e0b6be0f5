package swarm

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) tick()          { c.t = c.t.Add(time.Second) }

func TestAIMD_Feedback(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	aimd := NewAIMD(10, 5, 20)
	aimd.Step = 5
	aimd.now = clock.now

	if aimd.Limit() != 10 {
		t.Errorf("Expected initial limit 10, got %d", aimd.Limit())
	}

	aimd.Feedback(50*time.Millisecond, false)
	if aimd.Limit() != 15 {
		t.Errorf("Expected limit 15 after success, got %d", aimd.Limit())
	}

	// Inside the settle window nothing changes.
	aimd.Feedback(50*time.Millisecond, true)
	if aimd.Limit() != 15 {
		t.Errorf("Expected limit to hold at 15, got %d", aimd.Limit())
	}

	clock.tick()
	aimd.Feedback(500*time.Millisecond, true)
	if aimd.Limit() != 7 {
		t.Errorf("Expected limit 7 after throttle, got %d", aimd.Limit())
	}

	clock.tick()
	aimd.Feedback(500*time.Millisecond, true)
	if aimd.Limit() != 5 {
		t.Errorf("Expected limit clamped to min 5, got %d", aimd.Limit())
	}

	for i := 0; i < 10; i++ {
		clock.tick()
		aimd.Feedback(time.Millisecond, false)
	}
	if aimd.Limit() != 20 {
		t.Errorf("Expected limit clamped to max 20, got %d", aimd.Limit())
	}
}

func TestNewAIMDClampsBounds(t *testing.T) {
	if got := NewAIMD(0, 0, 0).Limit(); got != 1 {
		t.Errorf("Expected limit 1, got %d", got)
	}
	if got := NewAIMD(50, 2, 8).Limit(); got != 8 {
		t.Errorf("Expected limit 8, got %d", got)
	}
}
