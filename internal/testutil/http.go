package testutil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/impacthub/internal/app/system/auth"
	"github.com/dalemusser/impacthub/internal/app/system/authstate"
	"github.com/dalemusser/impacthub/internal/app/system/docstore"
	"github.com/dalemusser/impacthub/internal/app/system/identity"
	"github.com/dalemusser/impacthub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// SessionKey is a fixed cookie key for handler tests.
const SessionKey = "test-session-key-must-be-32-chars-long"

// Env wires the in-memory document store and identity provider behind a
// real SessionManager, so handler tests run the same gate as production.
type Env struct {
	Store    *docstore.Memory
	IDs      *identity.Memory
	Engines  *auth.Registry
	Sessions *auth.SessionManager
	Logger   *zap.Logger
}

// NewEnv builds an Env and releases its engines when the test ends.
func NewEnv(t *testing.T) *Env {
	t.Helper()
	logger := zap.NewNop()
	store := docstore.NewMemory()
	ids := identity.NewMemory()
	reg := auth.NewRegistry(ids, store, logger)
	t.Cleanup(reg.Close)

	sm, err := auth.NewSessionManager(reg, SessionKey, "test-session", "", 24*time.Hour, false, logger)
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}
	return &Env{Store: store, IDs: ids, Engines: reg, Sessions: sm, Logger: logger}
}

// TestUser describes a signed-in user and the profile written for it.
type TestUser struct {
	UID       string
	Email     string
	FirstName string
	LastName  string
	Role      string
}

// PartnerUser returns a TestUser with the partner role.
func PartnerUser(uid string) TestUser {
	return TestUser{UID: uid, Email: uid + "@example.org", FirstName: "Pat", LastName: "Partner", Role: "partner"}
}

// AdminUser returns a TestUser with the admin role.
func AdminUser(uid string) TestUser {
	return TestUser{UID: uid, Email: uid + "@example.org", FirstName: "Ada", LastName: "Admin", Role: "admin"}
}

// Session is a browser session: the cookies a client would send back.
type Session struct {
	SID     string
	Cookies []*http.Cookie
}

// NewSession issues a session cookie without signing anyone in, as a
// sign-in would before the provider call.
func (env *Env) NewSession(t *testing.T) Session {
	t.Helper()
	rec := httptest.NewRecorder()
	sid, err := env.Sessions.RotateSessionID(rec, httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("RotateSessionID: %v", err)
	}
	return Session{SID: sid, Cookies: rec.Result().Cookies()}
}

// SignIn writes u's profile and signs u in on a fresh session.
func (env *Env) SignIn(t *testing.T, u TestUser) Session {
	t.Helper()
	ctx := context.Background()
	s := env.NewSession(t)
	profile := docstore.Doc{"first_name": u.FirstName, "last_name": u.LastName}
	if u.Role != "" {
		profile["role"] = u.Role
	}
	if _, err := env.Store.Write(ctx, authstate.ProfilesCollection, u.UID, profile); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	if err := env.IDs.SignIn(ctx, s.SID, models.Principal{UID: u.UID, Email: u.Email, Provider: "password"}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	return s
}

// Request builds a request carrying the session's cookies.
func (s Session) Request(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	for _, c := range s.Cookies {
		req.AddCookie(c)
	}
	return req
}

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// ResponseRecorder wraps httptest.ResponseRecorder with helper methods.
type ResponseRecorder struct {
	*httptest.ResponseRecorder
}

// NewRecorder creates a new ResponseRecorder.
func NewRecorder() *ResponseRecorder {
	return &ResponseRecorder{httptest.NewRecorder()}
}

// AssertStatus checks the response status code.
func (r *ResponseRecorder) AssertStatus(t interface{ Errorf(string, ...any) }, expected int) {
	if r.Code != expected {
		t.Errorf("status code: got %d, want %d", r.Code, expected)
	}
}

// AssertRedirect checks for a redirect to the expected location.
func (r *ResponseRecorder) AssertRedirect(t interface{ Errorf(string, ...any) }, expectedLocation string) {
	if r.Code != http.StatusSeeOther && r.Code != http.StatusFound && r.Code != http.StatusMovedPermanently {
		t.Errorf("expected redirect status, got %d", r.Code)
	}
	location := r.Header().Get("Location")
	if location != expectedLocation {
		t.Errorf("redirect location: got %q, want %q", location, expectedLocation)
	}
}

// AssertContains checks if the response body contains the expected string.
func (r *ResponseRecorder) AssertContains(t interface{ Errorf(string, ...any) }, expected string) {
	if !strings.Contains(r.Body.String(), expected) {
		t.Errorf("response body does not contain %q", expected)
	}
}
