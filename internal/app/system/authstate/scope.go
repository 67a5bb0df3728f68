package authstate

import (
	"context"
	"errors"

	"github.com/dalemusser/impacthub/internal/app/system/docstore"
)

// ErrNotInProvider is returned when auth state is requested outside a
// request that passed through the sign-in gate.
var ErrNotInProvider = errors.New("authstate: no session handle in context")

// Handle is the read-and-logout capability handed to gated code.
type Handle struct {
	e *Engine
}

// Handle returns the engine's capability handle.
func (e *Engine) Handle() *Handle { return &Handle{e: e} }

// State returns the session's current state.
func (h *Handle) State() State { return h.e.State() }

// Logout signs the session out.
func (h *Handle) Logout(ctx context.Context) error { return h.e.Logout(ctx) }

// Subscribe observes the session's state changes.
func (h *Handle) Subscribe(fn func(State)) docstore.Unsubscribe { return h.e.Subscribe(fn) }

type ctxKey struct{}

// WithHandle returns a copy of ctx carrying h.
func WithHandle(ctx context.Context, h *Handle) context.Context {
	return context.WithValue(ctx, ctxKey{}, h)
}

// FromContext returns the handle placed by WithHandle.
func FromContext(ctx context.Context) (*Handle, error) {
	h, ok := ctx.Value(ctxKey{}).(*Handle)
	if !ok || h == nil {
		return nil, ErrNotInProvider
	}
	return h, nil
}

// MustFromContext is FromContext for code that is only ever mounted behind
// the gate. It panics with ErrNotInProvider otherwise.
func MustFromContext(ctx context.Context) *Handle {
	h, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return h
}
