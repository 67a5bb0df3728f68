package gates_test

import (
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/impacthub/internal/app/system/authstate"
	"github.com/dalemusser/impacthub/internal/app/system/docstore"
	"github.com/dalemusser/impacthub/internal/app/system/gates"
	"github.com/dalemusser/impacthub/internal/domain/models"
	"go.uber.org/zap"
)

func user(uid string) *models.MergedUser {
	return models.MergeUser(models.Principal{UID: uid}, nil)
}

func TestDecide(t *testing.T) {
	u := user("u1")
	tests := []struct {
		name  string
		state authstate.State
		want  gates.Kind
	}{
		{"initial", authstate.State{IsLoading: true}, gates.Loading},
		{"loading with stale user", authstate.State{IsLoading: true, User: u}, gates.Loading},
		{"signed out", authstate.State{}, gates.Unauthenticated},
		{"signed in", authstate.State{User: u}, gates.Authenticated},
		{"signed in with read error", authstate.State{User: u, Err: &authstate.SessionReadError{UID: "u1"}}, gates.Authenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := gates.Decide(tt.state)
			if d.Kind != tt.want {
				t.Errorf("Kind: got %v, want %v", d.Kind, tt.want)
			}
			if d.ShowProtected() != (tt.want == gates.Authenticated) {
				t.Errorf("ShowProtected: got %v for %v", d.ShowProtected(), d.Kind)
			}
			if tt.want != gates.Authenticated && d.User != nil {
				t.Errorf("User: got %+v, want nil outside Authenticated", d.User)
			}
		})
	}
}

// fakeSource replays states synchronously to its single subscriber.
type fakeSource struct {
	mu       sync.Mutex
	fn       func(authstate.State)
	disposed int
}

func (s *fakeSource) Subscribe(fn func(authstate.State)) docstore.Unsubscribe {
	s.mu.Lock()
	s.fn = fn
	s.mu.Unlock()
	fn(authstate.State{IsLoading: true})
	return func() {
		s.mu.Lock()
		s.disposed++
		s.fn = nil
		s.mu.Unlock()
	}
}

func (s *fakeSource) emit(st authstate.State) {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

type recordingNav struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNav) Navigate(path string) {
	n.mu.Lock()
	n.paths = append(n.paths, path)
	n.mu.Unlock()
}

func (n *recordingNav) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.paths)
}

func TestGate_NavigatesOncePerTransition(t *testing.T) {
	src := &fakeSource{}
	nav := &recordingNav{}
	g := gates.NewGate(src, nav, "", nil)
	defer g.Close()

	if got := g.Decision().Kind; got != gates.Loading {
		t.Fatalf("initial decision: got %v, want loading", got)
	}
	if nav.count() != 0 {
		t.Fatal("navigated while loading")
	}

	src.emit(authstate.State{})
	src.emit(authstate.State{})
	src.emit(authstate.State{Err: &authstate.SignOutError{}})
	if n := nav.count(); n != 1 {
		t.Errorf("navigations after repeated unauthenticated states: got %d, want 1", n)
	}
	if nav.paths[0] != gates.DefaultSignInPath {
		t.Errorf("path: got %q, want %q", nav.paths[0], gates.DefaultSignInPath)
	}
	if g.Decision().ShowProtected() {
		t.Error("protected content shown while unauthenticated")
	}

	src.emit(authstate.State{User: user("u1")})
	if !g.Decision().ShowProtected() {
		t.Error("protected content hidden while authenticated")
	}

	// Remote sign-out re-triggers.
	src.emit(authstate.State{})
	if n := nav.count(); n != 2 {
		t.Errorf("navigations after second transition: got %d, want 2", n)
	}
}

func TestGate_LoadingBetweenUnauthenticatedStatesRetriggers(t *testing.T) {
	src := &fakeSource{}
	nav := &recordingNav{}
	g := gates.NewGate(src, nav, "/signin", nil)
	defer g.Close()

	src.emit(authstate.State{})
	src.emit(authstate.State{IsLoading: true})
	src.emit(authstate.State{})
	if n := nav.count(); n != 2 {
		t.Errorf("navigations: got %d, want 2", n)
	}
}

func TestGate_CloseStopsObserving(t *testing.T) {
	src := &fakeSource{}
	nav := &recordingNav{}
	var decisions []gates.Kind
	g := gates.NewGate(src, nav, "", func(d gates.Decision) { decisions = append(decisions, d.Kind) })

	g.Close()
	g.Close()
	if src.disposed != 1 {
		t.Errorf("unsubscribe calls: got %d, want 1", src.disposed)
	}
	src.emit(authstate.State{})
	if nav.count() != 0 {
		t.Error("closed gate navigated")
	}
	if len(decisions) != 1 || decisions[0] != gates.Loading {
		t.Errorf("decisions: got %v, want [loading]", decisions)
	}
}

func TestGate_WithEngine(t *testing.T) {
	e := authstate.New(nil, docstore.NewMemory(), zap.NewNop())
	done := make(chan string, 1)
	g := gates.NewGate(e, gates.NavigatorFunc(func(p string) { done <- p }), "", nil)
	defer g.Close()

	e.Activate()
	select {
	case p := <-done:
		if p != gates.DefaultSignInPath {
			t.Errorf("path: got %q, want %q", p, gates.DefaultSignInPath)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("gate never navigated for an engine without identity backend")
	}
}
