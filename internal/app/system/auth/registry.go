package auth

import (
	"sync"
	"time"

	"github.com/dalemusser/impacthub/internal/app/system/authstate"
	"github.com/dalemusser/impacthub/internal/app/system/docstore"
	"github.com/dalemusser/impacthub/internal/app/system/identity"
	"go.uber.org/zap"
)

// Registry keeps one active engine per browser session.
type Registry struct {
	provider identity.Provider
	store    docstore.Store
	log      *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	engines map[string]*entry
}

type entry struct {
	engine   *authstate.Engine
	lastSeen time.Time
}

// NewRegistry creates an empty registry. A nil provider yields engines that
// resolve straight to signed out.
func NewRegistry(provider identity.Provider, store docstore.Store, logger *zap.Logger) *Registry {
	return &Registry{
		provider: provider,
		store:    store,
		log:      logger,
		now:      time.Now,
		engines:  make(map[string]*entry),
	}
}

// Acquire returns the active engine for sid, creating and activating it on
// first use.
func (r *Registry) Acquire(sid string) *authstate.Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.engines[sid]; ok {
		e.lastSeen = r.now()
		return e.engine
	}

	var client identity.Client
	if r.provider != nil {
		client = r.provider.Client(sid)
	}
	eng := authstate.New(client, r.store, r.log.With(zap.String("sid", sid)))
	eng.Activate()
	r.engines[sid] = &entry{engine: eng, lastSeen: r.now()}
	return eng
}

// Provider returns the identity provider engines are created against.
func (r *Registry) Provider() identity.Provider { return r.provider }

// Touch marks sid as in use.
func (r *Registry) Touch(sid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.engines[sid]; ok {
		e.lastSeen = r.now()
	}
}

// Release closes and forgets sid's engine. Observers still attached, such
// as a live stream, see the session end as signed out.
func (r *Registry) Release(sid string) {
	r.mu.Lock()
	e, ok := r.engines[sid]
	delete(r.engines, sid)
	r.mu.Unlock()
	if ok {
		e.engine.Close()
	}
}

// SweepIdle releases engines not touched within idle and returns how many
// were released.
func (r *Registry) SweepIdle(idle time.Duration) int {
	cutoff := r.now().Add(-idle)
	var stale []*authstate.Engine

	r.mu.Lock()
	for sid, e := range r.engines {
		if e.lastSeen.Before(cutoff) {
			stale = append(stale, e.engine)
			delete(r.engines, sid)
		}
	}
	r.mu.Unlock()

	for _, eng := range stale {
		eng.Deactivate()
	}
	return len(stale)
}

// Len returns the number of active engines.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.engines)
}

// Close deactivates every engine.
func (r *Registry) Close() {
	r.mu.Lock()
	all := r.engines
	r.engines = make(map[string]*entry)
	r.mu.Unlock()
	for _, e := range all {
		e.engine.Deactivate()
	}
	r.log.Info("session engines released", zap.Int("count", len(all)))
}
