package workers

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type countingSweeper struct {
	mu    sync.Mutex
	calls int
	idle  time.Duration
}

func (c *countingSweeper) SweepIdle(idle time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.idle = idle
	return 1
}

func (c *countingSweeper) snapshot() (int, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls, c.idle
}

func TestEngineSweep_SweepsOnInterval(t *testing.T) {
	target := &countingSweeper{}
	w := NewEngineSweep(target, zap.NewNop(), 5*time.Millisecond, 30*time.Minute)
	w.Start()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if calls, _ := target.snapshot(); calls >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	w.Stop()

	calls, idle := target.snapshot()
	if calls < 2 {
		t.Errorf("sweeps: got %d, want at least 2", calls)
	}
	if idle != 30*time.Minute {
		t.Errorf("idle threshold: got %v, want 30m", idle)
	}

	// No sweeps after Stop.
	time.Sleep(20 * time.Millisecond)
	if after, _ := target.snapshot(); after != calls {
		t.Errorf("sweeps after Stop: got %d, want %d", after, calls)
	}
}

func TestEngineSweep_StopIsIdempotent(t *testing.T) {
	w := NewEngineSweep(&countingSweeper{}, zap.NewNop(), time.Hour, time.Hour)
	w.Start()
	w.Stop()
	w.Stop()
}
