// Package timeouts provides centralized timeout values for handler operations.
//
// Guidelines for choosing a timeout:
//   - Ping: health checks and connectivity verification
//   - Short: single-document reads, sign-in lookups
//   - Medium: list queries, single writes
//   - Long: batch writes touching many documents
//   - Gate: how long a gated request waits for its session to resolve
//   - Delivery: the out-of-band notification call
package timeouts

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default timeout values (used if Configure is not called).
const (
	DefaultPing     = 2 * time.Second
	DefaultShort    = 5 * time.Second
	DefaultMedium   = 10 * time.Second
	DefaultLong     = 30 * time.Second
	DefaultGate     = 3 * time.Second
	DefaultDelivery = 5 * time.Second
)

var mu sync.RWMutex

var (
	ping     = DefaultPing
	short    = DefaultShort
	medium   = DefaultMedium
	long     = DefaultLong
	gate     = DefaultGate
	delivery = DefaultDelivery
)

func get(v *time.Duration) time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return *v
}

// Ping returns the timeout for health checks.
func Ping() time.Duration { return get(&ping) }

// Short returns the timeout for simple single-document operations.
func Short() time.Duration { return get(&short) }

// Medium returns the timeout for list queries and single writes.
func Medium() time.Duration { return get(&medium) }

// Long returns the timeout for batch writes.
func Long() time.Duration { return get(&long) }

// Gate returns how long a gated request waits for auth state to settle
// before answering with the loading placeholder.
func Gate() time.Duration { return get(&gate) }

// Delivery returns the bound on the notification delivery call.
func Delivery() time.Duration { return get(&delivery) }

// Config holds timeout configuration values.
// Zero values are ignored (defaults are kept).
type Config struct {
	Ping     time.Duration
	Short    time.Duration
	Medium   time.Duration
	Long     time.Duration
	Gate     time.Duration
	Delivery time.Duration
}

// Configure sets custom timeout values. Zero values in the config are ignored,
// keeping the current (or default) values. Call it during startup before
// handlers are registered.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	set := func(dst *time.Duration, v time.Duration) {
		if v > 0 {
			*dst = v
		}
	}
	set(&ping, cfg.Ping)
	set(&short, cfg.Short)
	set(&medium, cfg.Medium)
	set(&long, cfg.Long)
	set(&gate, cfg.Gate)
	set(&delivery, cfg.Delivery)
}

// Reset restores all timeouts to their default values.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	ping, short, medium, long = DefaultPing, DefaultShort, DefaultMedium, DefaultLong
	gate, delivery = DefaultGate, DefaultDelivery
}

// Current returns the current timeout configuration.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return Config{
		Ping:     ping,
		Short:    short,
		Medium:   medium,
		Long:     long,
		Gate:     gate,
		Delivery: delivery,
	}
}

// WithTimeout derives a context bounded by d. The returned cancel logs a
// warning when the deadline was what ended the operation.
func WithTimeout(parent context.Context, d time.Duration, logger *zap.Logger, op string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, d)
	return ctx, func() {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
			logger.Warn("operation deadline exceeded",
				zap.String("op", op), zap.Duration("timeout", d))
		}
		cancel()
	}
}
