package auth

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dalemusser/impacthub/internal/app/system/docstore"
	"github.com/dalemusser/impacthub/internal/app/system/gates"
	"github.com/dalemusser/impacthub/internal/app/system/identity"
	"github.com/dalemusser/impacthub/internal/domain/models"
	"go.uber.org/zap"
)

func TestRegistry_AcquireReusesEngine(t *testing.T) {
	r := NewRegistry(identity.NewMemory(), docstore.NewMemory(), zap.NewNop())
	defer r.Close()

	a := r.Acquire("s1")
	b := r.Acquire("s1")
	if a != b {
		t.Error("Acquire returned different engines for the same sid")
	}
	if !a.Active() {
		t.Error("acquired engine should be active")
	}
	if r.Acquire("s2") == a {
		t.Error("different sids must not share an engine")
	}
	if n := r.Len(); n != 2 {
		t.Errorf("Len: got %d, want 2", n)
	}
}

func TestRegistry_SweepIdle(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := NewRegistry(identity.NewMemory(), docstore.NewMemory(), zap.NewNop())
	r.now = func() time.Time { return now }
	defer r.Close()

	old := r.Acquire("old")
	now = now.Add(20 * time.Minute)
	fresh := r.Acquire("fresh")

	if n := r.SweepIdle(10 * time.Minute); n != 1 {
		t.Errorf("SweepIdle: got %d released, want 1", n)
	}
	if old.Active() {
		t.Error("idle engine still active after sweep")
	}
	if !fresh.Active() {
		t.Error("fresh engine deactivated by sweep")
	}

	now = now.Add(20 * time.Minute)
	r.Touch("fresh")
	if n := r.SweepIdle(10 * time.Minute); n != 0 {
		t.Errorf("SweepIdle after Touch: got %d released, want 0", n)
	}
}

func TestRegistry_NilProviderResolvesSignedOut(t *testing.T) {
	r := NewRegistry(nil, docstore.NewMemory(), zap.NewNop())
	defer r.Close()

	st := r.Acquire("s1").State()
	if st.IsLoading || st.User != nil {
		t.Errorf("state: got %+v, want settled and signed out", st)
	}
}

func TestRegistry_CloseDeactivatesAll(t *testing.T) {
	r := NewRegistry(identity.NewMemory(), docstore.NewMemory(), zap.NewNop())
	a := r.Acquire("a")
	b := r.Acquire("b")
	r.Close()
	if a.Active() || b.Active() {
		t.Error("Close left engines active")
	}
	if r.Len() != 0 {
		t.Errorf("Len after Close: got %d, want 0", r.Len())
	}
}

func TestRegistry_ReleaseAfterLogoutRedirectsGate(t *testing.T) {
	ids := identity.NewMemory()
	r := NewRegistry(ids, docstore.NewMemory(), zap.NewNop())
	defer r.Close()
	ctx := context.Background()

	eng := r.Acquire("sid")
	if err := ids.SignIn(ctx, "sid", models.Principal{UID: "u1"}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	for eng.Wait(wctx).User == nil {
		if wctx.Err() != nil {
			t.Fatal("engine never signed in")
		}
		time.Sleep(5 * time.Millisecond)
	}

	var navigations atomic.Int32
	redirected := make(chan struct{}, 1)
	g := gates.NewGate(eng.Handle(), gates.NavigatorFunc(func(string) {
		navigations.Add(1)
		select {
		case redirected <- struct{}{}:
		default:
		}
	}), "", nil)
	defer g.Close()

	if err := eng.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	r.Release("sid")

	select {
	case <-redirected:
	case <-time.After(2 * time.Second):
		t.Fatalf("gate never redirected; engine state %+v", eng.State())
	}
	time.Sleep(20 * time.Millisecond)
	if n := navigations.Load(); n != 1 {
		t.Errorf("navigations: got %d, want 1", n)
	}
	if eng.State().User != nil {
		t.Error("released engine still reports a user")
	}
}

func TestRegistry_SweepKeepsState(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ids := identity.NewMemory()
	r := NewRegistry(ids, docstore.NewMemory(), zap.NewNop())
	r.now = func() time.Time { return now }
	defer r.Close()

	eng := r.Acquire("sid")
	_ = ids.SignIn(context.Background(), "sid", models.Principal{UID: "u1"})
	deadline := time.Now().Add(2 * time.Second)
	for eng.State().User == nil || eng.State().IsLoading {
		if time.Now().After(deadline) {
			t.Fatal("engine never signed in")
		}
		time.Sleep(5 * time.Millisecond)
	}

	now = now.Add(time.Hour)
	r.SweepIdle(time.Minute)
	if eng.State().User == nil {
		t.Error("idle sweep must not sign the session out")
	}
}
