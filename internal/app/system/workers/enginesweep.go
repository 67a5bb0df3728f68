// internal/app/system/workers/enginesweep.go
package workers

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// IdleSweeper releases resources that have not been used within a window.
type IdleSweeper interface {
	SweepIdle(idle time.Duration) int
}

// EngineSweep is a background worker that deactivates the session engines
// of browser sessions that have gone quiet, so their auth and profile
// subscriptions do not outlive the visitor.
type EngineSweep struct {
	target   IdleSweeper
	log      *zap.Logger
	interval time.Duration
	idle     time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewEngineSweep creates the worker.
//
// Parameters:
//   - target: usually the auth.Registry
//   - interval: how often to sweep (e.g., 1 minute)
//   - idle: how long an engine may go untouched before release (e.g., 30 minutes)
func NewEngineSweep(target IdleSweeper, logger *zap.Logger, interval, idle time.Duration) *EngineSweep {
	return &EngineSweep{
		target:   target,
		log:      logger,
		interval: interval,
		idle:     idle,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (w *EngineSweep) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("engine sweep worker started",
		zap.Duration("interval", w.interval),
		zap.Duration("idle_threshold", w.idle))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *EngineSweep) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	w.log.Info("engine sweep worker stopped")
}

func (w *EngineSweep) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

func (w *EngineSweep) sweep() {
	if n := w.target.SweepIdle(w.idle); n > 0 {
		w.log.Info("released idle session engines", zap.Int("count", n))
	}
}
