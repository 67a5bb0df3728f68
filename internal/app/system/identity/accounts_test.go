package identity_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dalemusser/impacthub/internal/app/system/docstore"
	"github.com/dalemusser/impacthub/internal/app/system/identity"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func newAccounts() *identity.Accounts {
	return identity.NewAccounts(docstore.NewMemory(), zap.NewNop()).WithCost(bcrypt.MinCost)
}

func TestAccounts_RegisterAndAuthenticate(t *testing.T) {
	a := newAccounts()
	ctx := context.Background()

	acct, err := a.Register(ctx, "Ada@Example.org", "s3cret", "Ada")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if acct.ID == "" {
		t.Fatal("Register: empty ID")
	}

	p, err := a.Authenticate(ctx, "ada@example.org", "s3cret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.UID != acct.ID {
		t.Errorf("UID: got %q, want %q", p.UID, acct.ID)
	}
	if p.Provider != "password" {
		t.Errorf("Provider: got %q, want password", p.Provider)
	}
}

func TestAccounts_AuthenticateFailures(t *testing.T) {
	a := newAccounts()
	ctx := context.Background()
	if _, err := a.Register(ctx, "ada@example.org", "s3cret", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}

	tests := []struct {
		name, email, password string
	}{
		{"wrong password", "ada@example.org", "nope"},
		{"unknown email", "bob@example.org", "s3cret"},
		{"empty password", "ada@example.org", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.Authenticate(ctx, tt.email, tt.password); !errors.Is(err, identity.ErrInvalidCredentials) {
				t.Errorf("got %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestAccounts_RegisterDuplicateEmail(t *testing.T) {
	a := newAccounts()
	ctx := context.Background()
	if _, err := a.Register(ctx, "ada@example.org", "x", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := a.Register(ctx, "ADA@example.org", "y", ""); !errors.Is(err, identity.ErrEmailTaken) {
		t.Errorf("duplicate Register: got %v, want ErrEmailTaken", err)
	}
}

func TestAccounts_RegisterRejectsBadEmail(t *testing.T) {
	if _, err := newAccounts().Register(context.Background(), "not-an-email", "x", ""); err == nil {
		t.Error("Register with invalid email: expected error")
	}
}

func TestAccounts_UpsertExternal(t *testing.T) {
	a := newAccounts()
	ctx := context.Background()

	first, err := a.UpsertExternal(ctx, "grace@example.org", "Grace", "google")
	if err != nil {
		t.Fatalf("UpsertExternal: %v", err)
	}
	if !first.EmailVerified {
		t.Error("external principal should be email-verified")
	}
	again, err := a.UpsertExternal(ctx, "Grace@example.org", "Grace H", "google")
	if err != nil {
		t.Fatalf("UpsertExternal again: %v", err)
	}
	if again.UID != first.UID {
		t.Errorf("UID: got %q, want %q (same account)", again.UID, first.UID)
	}

	// External accounts have no password.
	if _, err := a.Authenticate(ctx, "grace@example.org", ""); !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Errorf("Authenticate external account: got %v, want ErrInvalidCredentials", err)
	}

	email, err := a.LookupEmail(ctx, first.UID)
	if err != nil {
		t.Fatalf("LookupEmail: %v", err)
	}
	if email != "grace@example.org" {
		t.Errorf("LookupEmail: got %q, want grace@example.org", email)
	}
}

func TestAccounts_LookupEmailUnknown(t *testing.T) {
	if _, err := newAccounts().LookupEmail(context.Background(), "missing"); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("LookupEmail: got %v, want ErrNotFound", err)
	}
}

func TestAccounts_ChangePassword(t *testing.T) {
	a := newAccounts()
	ctx := context.Background()
	acct, err := a.Register(ctx, "ada@example.org", "old-password", "Ada")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	tests := []struct {
		name          string
		current, next string
		want          error
	}{
		{"wrong current", "nope", "new-password", identity.ErrInvalidCredentials},
		{"too short", "old-password", "short", identity.ErrWeakPassword},
		{"unchanged", "old-password", "old-password", identity.ErrSamePassword},
	}
	for _, tt := range tests {
		if err := a.ChangePassword(ctx, acct.ID, tt.current, tt.next); !errors.Is(err, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, err, tt.want)
		}
	}

	if err := a.ChangePassword(ctx, acct.ID, "old-password", "new-password"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := a.Authenticate(ctx, "ada@example.org", "new-password"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
	if _, err := a.Authenticate(ctx, "ada@example.org", "old-password"); !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Errorf("old password: got %v, want ErrInvalidCredentials", err)
	}
}

func TestAccounts_ChangePasswordExternalAccount(t *testing.T) {
	a := newAccounts()
	ctx := context.Background()
	p, err := a.UpsertExternal(ctx, "g@example.org", "G", "google")
	if err != nil {
		t.Fatalf("UpsertExternal: %v", err)
	}
	if err := a.ChangePassword(ctx, p.UID, "", "new-password"); !errors.Is(err, identity.ErrNoPassword) {
		t.Errorf("got %v, want ErrNoPassword", err)
	}
}

func TestAccounts_ByEmail(t *testing.T) {
	a := newAccounts()
	ctx := context.Background()
	acct, err := a.Register(ctx, "Ada@Example.org", "s3cret-pw", "Ada")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := a.ByEmail(ctx, "  ada@example.ORG ")
	if err != nil {
		t.Fatalf("ByEmail: %v", err)
	}
	if got.ID != acct.ID {
		t.Errorf("ID: got %q, want %q", got.ID, acct.ID)
	}
	if _, err := a.ByEmail(ctx, "nobody@example.org"); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("unknown: got %v, want ErrNotFound", err)
	}
}
