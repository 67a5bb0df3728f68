package identity

import (
	"context"
	"sync"

	"github.com/dalemusser/impacthub/internal/app/system/docstore"
	"github.com/dalemusser/impacthub/internal/domain/models"
)

// Memory is a single-process Provider. Sign-ins are lost on restart; use
// Redis when more than one node serves the same sessions.
type Memory struct {
	mu         sync.Mutex
	sessions   map[string]models.Principal
	subs       map[string]map[*memSub]struct{}
	signOutErr error
}

type memSub struct {
	onChange func(*models.Principal)
	d        *docstore.Dispatcher
}

var _ Provider = (*Memory)(nil)

// NewMemory returns a provider with no signed-in sessions.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]models.Principal),
		subs:     make(map[string]map[*memSub]struct{}),
	}
}

// FailSignOut makes every SignOut return err until called with nil.
func (m *Memory) FailSignOut(err error) {
	m.mu.Lock()
	m.signOutErr = err
	m.mu.Unlock()
}

// Client returns the view of session sid.
func (m *Memory) Client(sid string) Client {
	return &memClient{m: m, sid: sid}
}

// SignIn records p for sid and notifies the session's subscribers.
func (m *Memory) SignIn(ctx context.Context, sid string, p models.Principal) error {
	if sid == "" {
		return ErrNoSession
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sid] = p
	m.publishLocked(sid, &p)
	return nil
}

// SignOutAll ends sid from outside the session (admin action, expiry on
// another node).
func (m *Memory) SignOutAll(sid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sid)
	m.publishLocked(sid, nil)
}

// Current returns the principal signed in to sid, if any.
func (m *Memory) Current(sid string) (models.Principal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.sessions[sid]
	return p, ok
}

func (m *Memory) publishLocked(sid string, p *models.Principal) {
	for s := range m.subs[sid] {
		s := s
		var cp *models.Principal
		if p != nil {
			v := *p
			cp = &v
		}
		s.d.Push(func() { s.onChange(cp) })
	}
}

type memClient struct {
	m   *Memory
	sid string
}

func (c *memClient) SubscribeAuthState(onChange func(*models.Principal)) docstore.Unsubscribe {
	s := &memSub{onChange: onChange, d: docstore.NewDispatcher()}

	m := c.m
	m.mu.Lock()
	if m.subs[c.sid] == nil {
		m.subs[c.sid] = make(map[*memSub]struct{})
	}
	m.subs[c.sid][s] = struct{}{}
	var cur *models.Principal
	if p, ok := m.sessions[c.sid]; ok {
		cur = &p
	}
	s.d.Push(func() { s.onChange(cur) })
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs[c.sid], s)
			if len(m.subs[c.sid]) == 0 {
				delete(m.subs, c.sid)
			}
			m.mu.Unlock()
			s.d.Stop()
		})
	}
}

func (c *memClient) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if c.m.signOutErr != nil {
		return c.m.signOutErr
	}
	delete(c.m.sessions, c.sid)
	c.m.publishLocked(c.sid, nil)
	return nil
}
