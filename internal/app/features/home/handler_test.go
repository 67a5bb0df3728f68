package home

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/impacthub/internal/app/system/docstore"
	"github.com/dalemusser/impacthub/internal/app/system/notify"
	"github.com/dalemusser/impacthub/internal/domain/models"
	"github.com/dalemusser/impacthub/internal/testutil"
)

func newTestHandler(t *testing.T) (*Handler, *testutil.Env, *notify.Service) {
	t.Helper()
	env := testutil.NewEnv(t)
	svc := notify.NewService(env.Store, nil, env.Logger)
	return NewHandler(env.Sessions, svc, env.Logger), env, svc
}

func TestViewModel_Anonymous(t *testing.T) {
	h, env, _ := newTestHandler(t)

	vm := h.viewModel(httptest.NewRequest("GET", "/", nil))
	if vm.IsLoggedIn {
		t.Error("anonymous visitor should not be logged in")
	}
	if vm.Unread != 0 {
		t.Errorf("unread: got %d, want 0", vm.Unread)
	}
	if n := env.Sessions.Engines().Len(); n != 0 {
		t.Errorf("engines after anonymous visit: got %d, want 0", n)
	}
}

func TestViewModel_SignedIn(t *testing.T) {
	h, env, svc := newTestHandler(t)
	s := env.SignIn(t, testutil.AdminUser("u-1"))
	ctx := context.Background()
	if err := env.Store.Update(ctx, "profiles", "u-1", docstore.Doc{"total_contributions": 40.5}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := svc.Create(ctx, notify.New{UserID: "u-1", Type: models.NotificationSystem, Title: "t", Message: "m"}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	vm := h.viewModel(s.Request("GET", "/", nil))
	if !vm.IsLoggedIn || !vm.IsAdmin {
		t.Errorf("flags: got %+v", vm)
	}
	if vm.FirstName != "Ada" {
		t.Errorf("first name: got %q, want %q", vm.FirstName, "Ada")
	}
	if vm.Total != 40.5 {
		t.Errorf("total: got %v, want 40.5", vm.Total)
	}
	if vm.Unread != 2 {
		t.Errorf("unread: got %d, want 2", vm.Unread)
	}
}
