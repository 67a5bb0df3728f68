// Package auth ties browser sessions to session merge engines and guards
// routes with them.
//
// The session cookie carries only an opaque session ID (sid) and transient
// OAuth state. Who is signed in to a sid is the identity provider's
// business; the Registry keeps one authstate.Engine per active sid.
package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dalemusser/impacthub/internal/app/system/authstate"
	"github.com/dalemusser/impacthub/internal/app/system/gates"
	"github.com/dalemusser/impacthub/internal/app/system/timeouts"
	"github.com/dalemusser/impacthub/internal/domain/models"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

/*─────────────────────────────────────────────────────────────────────────────*
| Session constants                                                          |
*─────────────────────────────────────────────────────────────────────────────*/

const (
	DefaultSessionName = "impacthub-session"

	sidKey         = "sid"
	oauthStateKey  = "oauth_state"
	oauthReturnKey = "oauth_return"
)

// SessionManager owns the session cookie and the engine registry.
type SessionManager struct {
	store   *sessions.CookieStore
	name    string
	engines *Registry
	log     *zap.Logger
}

// NewSessionManager creates the cookie store. In production (secure=true)
// cookies are Secure + SameSite=None; in local dev over http use
// secure=false so the browser accepts them.
func NewSessionManager(engines *Registry, sessionKey, name, domain string, maxAge time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if sessionKey == "" {
		return nil, fmt.Errorf("session key is empty; provide ≥32 random chars")
	}
	if len(sessionKey) < 32 {
		logger.Warn("session key is short; 32+ chars recommended",
			zap.Int("length", len(sessionKey)))
	}
	if name == "" {
		name = DefaultSessionName
	}

	store := sessions.NewCookieStore([]byte(sessionKey))
	opts := &sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
	}
	if secure {
		opts.SameSite = http.SameSiteNoneMode
	} else {
		opts.SameSite = http.SameSiteLaxMode
	}
	store.Options = opts

	logger.Info("session store initialized",
		zap.String("name", name),
		zap.Bool("secure", secure),
		zap.String("domain", domain))

	return &SessionManager{store: store, name: name, engines: engines, log: logger}, nil
}

// Engines returns the registry behind this manager.
func (m *SessionManager) Engines() *Registry { return m.engines }

// PeekSessionID returns the request's sid without issuing one.
func (m *SessionManager) PeekSessionID(r *http.Request) string {
	sess, err := m.store.Get(r, m.name)
	if err != nil {
		return ""
	}
	sid, _ := sess.Values[sidKey].(string)
	return sid
}

// RotateSessionID replaces the request's sid before a sign-in so a sid
// planted before authentication is never promoted. The old sid's engine is
// released.
func (m *SessionManager) RotateSessionID(w http.ResponseWriter, r *http.Request) (string, error) {
	sess, _ := m.store.Get(r, m.name)
	if old, ok := sess.Values[sidKey].(string); ok && old != "" && m.engines != nil {
		m.engines.Release(old)
	}
	sid := uuid.NewString()
	sess.Values[sidKey] = sid
	if err := sess.Save(r, w); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	return sid, nil
}

// ClearSession releases the session's engine and expires the cookie.
func (m *SessionManager) ClearSession(w http.ResponseWriter, r *http.Request) {
	sess, err := m.store.Get(r, m.name)
	if err != nil {
		// Decode failed. We still overwrite the cookie below.
		m.log.Warn("session decode failed during clear", zap.Error(err))
	}
	if sid, ok := sess.Values[sidKey].(string); ok && sid != "" && m.engines != nil {
		m.engines.Release(sid)
	}

	// The deletion cookie must match the original store settings.
	opts := *m.store.Options
	opts.MaxAge = -1
	sess.Options = &opts
	sess.Values = map[any]any{}
	if err := sess.Save(r, w); err != nil {
		m.log.Error("clear session: save", zap.Error(err))
	}
}

// PutOAuthState stores a fresh random OAuth state value, plus the local
// URL to return to after the callback, and returns the state.
func (m *SessionManager) PutOAuthState(w http.ResponseWriter, r *http.Request, returnURL string) (string, error) {
	key := securecookie.GenerateRandomKey(32)
	if key == nil {
		return "", fmt.Errorf("generate oauth state: no randomness")
	}
	state := base64.RawURLEncoding.EncodeToString(key)
	sess, _ := m.store.Get(r, m.name)
	sess.Values[oauthStateKey] = state
	sess.Values[oauthReturnKey] = returnURL
	if err := sess.Save(r, w); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	return state, nil
}

// TakeOAuthState returns and clears the stored OAuth state and return URL.
func (m *SessionManager) TakeOAuthState(w http.ResponseWriter, r *http.Request) (state, returnURL string) {
	sess, err := m.store.Get(r, m.name)
	if err != nil {
		return "", ""
	}
	state, _ = sess.Values[oauthStateKey].(string)
	if state == "" {
		return "", ""
	}
	returnURL, _ = sess.Values[oauthReturnKey].(string)
	delete(sess.Values, oauthStateKey)
	delete(sess.Values, oauthReturnKey)
	if err := sess.Save(r, w); err != nil {
		m.log.Warn("failed to clear oauth state", zap.Error(err))
	}
	return state, returnURL
}

// Engine returns the active engine for the request's session, or nil when
// the browser carries no sid. Only SignIn issues a sid, so anonymous
// traffic never creates engines.
func (m *SessionManager) Engine(r *http.Request) (*authstate.Engine, string) {
	sid := m.PeekSessionID(r)
	if sid == "" {
		return nil, ""
	}
	return m.engines.Acquire(sid), sid
}

// SignIn rotates the session ID and signs p in on the fresh session, then
// warms its engine so the next gated request finds it resolving.
func (m *SessionManager) SignIn(ctx context.Context, w http.ResponseWriter, r *http.Request, p models.Principal) error {
	provider := m.engines.Provider()
	if provider == nil {
		return errors.New("sign-in unavailable: no identity provider")
	}
	sid, err := m.RotateSessionID(w, r)
	if err != nil {
		return err
	}
	if err := provider.SignIn(ctx, sid, p); err != nil {
		return fmt.Errorf("identity sign-in: %w", err)
	}
	m.engines.Acquire(sid)
	m.log.Info("signed in",
		zap.String("user_id", p.UID),
		zap.String("provider", p.Provider))
	return nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Current-User helper                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

// CurrentUser returns the signed-in user of a gated request.
func CurrentUser(r *http.Request) (*models.MergedUser, bool) {
	h, err := authstate.FromContext(r.Context())
	if err != nil {
		return nil, false
	}
	u := h.State().User
	return u, u != nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Middleware                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

// RequireSignedIn resolves the session's auth state, waiting up to
// timeouts.Gate() for it to settle.
//
//   - Authenticated: serves next with the authstate.Handle in the context.
//   - Unauthenticated: HTMX gets HX-Redirect, HTML a 303, API callers a 401,
//     all pointing at /login?return=...
//   - Still loading: 503 with Retry-After and a self-refreshing placeholder.
func (m *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		eng, sid := m.Engine(r)
		if eng == nil {
			redirectToLogin(w, r)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeouts.Gate())
		st := eng.Wait(ctx)
		cancel()

		switch d := gates.Decide(st); d.Kind {
		case gates.Authenticated:
			next.ServeHTTP(w, r.WithContext(authstate.WithHandle(r.Context(), eng.Handle())))
		case gates.Unauthenticated:
			redirectToLogin(w, r)
		default:
			m.log.Debug("session still loading", zap.String("sid", sid))
			renderLoading(w, r)
		}
	})
}

// RequireRole must sit behind RequireSignedIn. Roles compare
// case-insensitively against the merged user's role field.
func (m *SessionManager) RequireRole(allowed ...string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		set[strings.ToLower(strings.TrimSpace(role))] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := CurrentUser(r)
			if !ok {
				redirectToLogin(w, r)
				return
			}

			if _, has := set[strings.ToLower(u.Role())]; !has {
				if r.Header.Get("HX-Request") == "true" {
					w.Header().Set("HX-Redirect", "/forbidden")
					w.WriteHeader(http.StatusForbidden)
					return
				}
				if wantsHTML(r) {
					http.Redirect(w, r, "/forbidden", http.StatusSeeOther)
					return
				}
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// helpers

func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	dest := gates.DefaultSignInPath + "?return=" + url.QueryEscape(currentURI(r))

	// HTMX: full-page client redirect (no partial swap)
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", dest)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if wantsHTML(r) {
		http.Redirect(w, r, dest, http.StatusSeeOther)
		return
	}
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

const loadingPage = `<!doctype html><html><head><meta charset="utf-8">` +
	`<meta http-equiv="refresh" content="1"><title>Loading</title></head>` +
	`<body><p role="status">Loading…</p></body></html>`

func renderLoading(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "1")
	w.Header().Set("Cache-Control", "no-store")
	if wantsHTML(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(loadingPage))
		return
	}
	http.Error(w, "session loading", http.StatusServiceUnavailable)
}

func wantsHTML(r *http.Request) bool {
	if r.Header.Get("HX-Request") == "true" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func currentURI(r *http.Request) string {
	u := *r.URL
	return u.RequestURI()
}
