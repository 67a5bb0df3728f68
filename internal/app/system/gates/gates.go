// Package gates decides what a session may see.
//
// Decide maps an auth state to one of three outcomes. A Gate follows a live
// session and asks its Navigator to go to the sign-in page once each time
// the session becomes unauthenticated; between that call and the navigation
// completing, callers keep showing the placeholder rather than protected
// content.
//
// The HTTP middleware built on this lives in package auth (RequireSignedIn).
package gates

import (
	"sync"

	"github.com/dalemusser/impacthub/internal/app/system/authstate"
	"github.com/dalemusser/impacthub/internal/app/system/docstore"
	"github.com/dalemusser/impacthub/internal/domain/models"
)

// Kind is the outcome of a gate decision.
type Kind int

const (
	Loading Kind = iota
	Authenticated
	Unauthenticated
)

func (k Kind) String() string {
	switch k {
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Decision is a gate outcome. User is set only for Authenticated.
type Decision struct {
	Kind Kind
	User *models.MergedUser
}

// ShowProtected reports whether gated content may be rendered.
func (d Decision) ShowProtected() bool { return d.Kind == Authenticated }

// Decide classifies s.
func Decide(s authstate.State) Decision {
	switch {
	case s.IsLoading:
		return Decision{Kind: Loading}
	case s.User == nil:
		return Decision{Kind: Unauthenticated}
	default:
		return Decision{Kind: Authenticated, User: s.User}
	}
}

// Navigator performs the redirect side effect.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// Source is anything that streams auth states, starting with the current one.
type Source interface {
	Subscribe(fn func(authstate.State)) docstore.Unsubscribe
}

// DefaultSignInPath is where unauthenticated sessions are sent.
const DefaultSignInPath = "/login"

// Gate follows one session for its lifetime.
type Gate struct {
	nav  Navigator
	path string

	mu       sync.Mutex
	decision Decision
	closed   bool
	unsub    docstore.Unsubscribe
	onChange func(Decision)
}

// NewGate starts following src. signInPath defaults to DefaultSignInPath.
// onChange, when non-nil, receives every decision in order.
func NewGate(src Source, nav Navigator, signInPath string, onChange func(Decision)) *Gate {
	if signInPath == "" {
		signInPath = DefaultSignInPath
	}
	g := &Gate{
		nav:      nav,
		path:     signInPath,
		decision: Decision{Kind: Loading},
		onChange: onChange,
	}
	unsub := src.Subscribe(g.observe)
	g.mu.Lock()
	g.unsub = unsub
	closed := g.closed
	g.mu.Unlock()
	if closed {
		unsub()
	}
	return g
}

// Decision returns the latest decision.
func (g *Gate) Decision() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decision
}

// Close stops following the session. It is safe to call more than once.
func (g *Gate) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	unsub := g.unsub
	g.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (g *Gate) observe(s authstate.State) {
	d := Decide(s)

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	prev := g.decision.Kind
	g.decision = d
	g.mu.Unlock()

	if d.Kind == Unauthenticated && prev != Unauthenticated {
		g.nav.Navigate(g.path)
	}
	if g.onChange != nil {
		g.onChange(d)
	}
}
