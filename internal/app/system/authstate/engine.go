// internal/app/system/authstate/engine.go
package authstate

import (
	"context"
	"sync"

	"github.com/dalemusser/impacthub/internal/app/system/docstore"
	"github.com/dalemusser/impacthub/internal/app/system/identity"
	"github.com/dalemusser/impacthub/internal/domain/models"
	"go.uber.org/zap"
)

// ProfilesCollection holds one profile document per user, keyed by UID.
const ProfilesCollection = "profiles"

// Engine merges one session's auth-state stream with the signed-in user's
// profile document into a single State.
//
// Stream handlers are serialized by e.serial. Every subscription is tagged
// with the epoch (auth) or generation (profile) current when it was opened;
// callbacks carrying an old tag are dropped, since unsubscribing does not
// wait for a callback already in flight.
type Engine struct {
	client identity.Client
	store  docstore.Store
	log    *zap.Logger

	serial       sync.Mutex
	active       bool
	epoch        uint64
	gen          uint64
	authUnsub    docstore.Unsubscribe
	profileUnsub docstore.Unsubscribe

	mu        sync.RWMutex
	state     State
	changed   chan struct{}
	observers map[*observer]struct{}
}

type observer struct {
	fn func(State)
	d  *docstore.Dispatcher
}

// New creates an inactive engine in the loading state. A nil client means
// no identity backend is available; Activate then resolves to signed out.
func New(client identity.Client, store docstore.Store, logger *zap.Logger) *Engine {
	return &Engine{
		client:    client,
		store:     store,
		log:       logger,
		state:     State{IsLoading: true},
		changed:   make(chan struct{}),
		observers: make(map[*observer]struct{}),
	}
}

// Activate subscribes to the auth stream. Calling it on an active engine is
// a no-op.
func (e *Engine) Activate() {
	e.serial.Lock()
	defer e.serial.Unlock()
	if e.active {
		return
	}
	e.active = true
	e.epoch++

	if e.client == nil {
		e.setState(State{})
		return
	}
	if cur := e.State(); !cur.IsLoading {
		cur.IsLoading = true
		e.setState(cur)
	}
	ep := e.epoch
	e.authUnsub = e.client.SubscribeAuthState(func(p *models.Principal) {
		e.onAuth(ep, p)
	})
}

// Deactivate disposes the auth and profile subscriptions. State is left as
// it was; observers stay registered.
func (e *Engine) Deactivate() {
	e.serial.Lock()
	defer e.serial.Unlock()
	e.deactivateLocked()
}

// Close ends the session for good: it deactivates the engine and publishes
// a signed-out state, so observers see Unauthenticated even when the
// provider's own signed-out emission is dropped by the deactivation.
func (e *Engine) Close() {
	e.serial.Lock()
	defer e.serial.Unlock()
	e.deactivateLocked()
	if cur := e.State(); cur.User != nil || cur.IsLoading || cur.Err != nil {
		e.setState(State{})
	}
}

func (e *Engine) deactivateLocked() {
	if !e.active {
		return
	}
	e.active = false
	e.epoch++
	e.gen++
	e.disposeProfile()
	if e.authUnsub != nil {
		e.authUnsub()
		e.authUnsub = nil
	}
}

// Active reports whether the engine holds live subscriptions.
func (e *Engine) Active() bool {
	e.serial.Lock()
	defer e.serial.Unlock()
	return e.active
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Subscribe registers fn for every state change, starting with the current
// state. Calls arrive in order on a goroutine owned by the engine, so fn may
// call back into the engine (Logout included).
func (e *Engine) Subscribe(fn func(State)) docstore.Unsubscribe {
	o := &observer{fn: fn, d: docstore.NewDispatcher()}
	e.mu.Lock()
	e.observers[o] = struct{}{}
	cur := e.state
	o.d.Push(func() { o.fn(cur) })
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.observers, o)
			e.mu.Unlock()
			o.d.Stop()
		})
	}
}

// Wait blocks until the state is no longer loading or ctx is done, and
// returns the latest state either way.
func (e *Engine) Wait(ctx context.Context) State {
	for {
		e.mu.RLock()
		st, ch := e.state, e.changed
		e.mu.RUnlock()
		if !st.IsLoading {
			return st
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return e.State()
		}
	}
}

// Logout signs the session out. Success changes nothing here: the signed-out
// emission from the auth stream clears the user. Failure is recorded as a
// SignOutError and returned.
func (e *Engine) Logout(ctx context.Context) error {
	if e.client == nil {
		return nil
	}
	if err := e.client.SignOut(ctx); err != nil {
		e.log.Warn("sign out failed", zap.Error(err))
		e.serial.Lock()
		cur := e.State()
		cur.Err = &SignOutError{Err: err}
		e.setState(cur)
		e.serial.Unlock()
		return cur.Err
	}
	return nil
}

/*────────────────────────────────────────────────────────────────────────────*
| stream handlers (called with e.serial unlocked)
*────────────────────────────────────────────────────────────────────────────*/

func (e *Engine) onAuth(ep uint64, p *models.Principal) {
	e.serial.Lock()
	defer e.serial.Unlock()
	if !e.active || ep != e.epoch {
		return
	}

	e.gen++
	e.disposeProfile()

	if p == nil {
		e.setState(State{})
		return
	}

	principal := *p
	g := e.gen
	cur := e.State()
	next := State{IsLoading: true, Err: cur.Err}
	if cur.User != nil && cur.User.UID() == principal.UID {
		next.User = cur.User
	}
	e.setState(next)

	e.profileUnsub = e.store.SubscribeDocument(ProfilesCollection, principal.UID,
		func(doc docstore.Doc) { e.onProfile(ep, g, principal, doc) },
		func(err error) { e.onProfileError(ep, g, principal.UID, err) },
	)
}

func (e *Engine) onProfile(ep, g uint64, p models.Principal, doc docstore.Doc) {
	e.serial.Lock()
	defer e.serial.Unlock()
	if !e.current(ep, g) {
		return
	}
	e.setState(State{User: models.MergeUser(p, doc)})
}

func (e *Engine) onProfileError(ep, g uint64, uid string, err error) {
	e.serial.Lock()
	defer e.serial.Unlock()
	if !e.current(ep, g) {
		return
	}
	e.log.Warn("profile subscription failed", zap.String("user_id", uid), zap.Error(err))
	cur := e.State()
	e.setState(State{User: cur.User, Err: &SessionReadError{UID: uid, Err: err}})
}

func (e *Engine) current(ep, g uint64) bool {
	return e.active && ep == e.epoch && g == e.gen
}

func (e *Engine) disposeProfile() {
	if e.profileUnsub != nil {
		e.profileUnsub()
		e.profileUnsub = nil
	}
}

// setState publishes next to Wait callers and observers. Callers hold
// e.serial, which keeps observer order equal to emission order.
func (e *Engine) setState(next State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = next
	close(e.changed)
	e.changed = make(chan struct{})
	for o := range e.observers {
		o := o
		o.d.Push(func() { o.fn(next) })
	}
}
