// internal/app/features/login/handler.go
package login

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dalemusser/impacthub/internal/app/system/auth"
	"github.com/dalemusser/impacthub/internal/app/system/identity"
	"github.com/dalemusser/impacthub/internal/app/system/metrics"
	"github.com/dalemusser/impacthub/internal/app/system/ratelimit"
	"github.com/dalemusser/impacthub/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/dalemusser/waffle/pantry/templates"
	"github.com/dalemusser/waffle/pantry/urlutil"
	"go.uber.org/zap"
)

// DefaultLanding is where a sign-in without a return URL lands.
const DefaultLanding = "/"

type Handler struct {
	Accounts      *identity.Accounts
	SessionMgr    *auth.SessionManager
	Limiter       *ratelimit.LoginLimiter
	GoogleEnabled bool
	Log           *zap.Logger
}

func NewHandler(accounts *identity.Accounts, sessionMgr *auth.SessionManager, limiter *ratelimit.LoginLimiter, googleEnabled bool, logger *zap.Logger) *Handler {
	return &Handler{
		Accounts:      accounts,
		SessionMgr:    sessionMgr,
		Limiter:       limiter,
		GoogleEnabled: googleEnabled,
		Log:           logger,
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Template-data                                                               |
*─────────────────────────────────────────────────────────────────────────────*/

type loginFormData struct {
	Title         string
	IsLoggedIn    bool
	UserName      string
	Error         string
	Email         string
	ReturnURL     string
	GoogleEnabled bool
}

// errorMessages maps the ?error= codes used by redirects (including the
// Google callback) to display text.
var errorMessages = map[string]string{
	"google_not_configured": "Google sign-in is not available.",
	"google_denied":         "Google sign-in was cancelled.",
	"invalid_state":         "Your sign-in link expired. Please try again.",
	"token_exchange":        "Google sign-in failed. Please try again.",
	"user_info":             "We couldn't read your Google profile. Please try again.",
	"internal":              "Something went wrong. Please try again.",
}

func (h *Handler) formData(r *http.Request) loginFormData {
	return loginFormData{
		Title:         "Sign in",
		ReturnURL:     query.Get(r, "return"),
		GoogleEnabled: h.GoogleEnabled,
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /login                                                                  |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	data := h.formData(r)
	if code := query.Get(r, "error"); code != "" {
		data.Error = errorMessages[code]
		if data.Error == "" {
			data.Error = errorMessages["internal"]
		}
	}
	templates.Render(w, r, "login_form", data)
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /login                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleLoginPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.fail(w, r, http.StatusBadRequest, loginFormData{Error: "Invalid form submission."})
		return
	}

	email := strings.TrimSpace(r.PostForm.Get("email"))
	password := r.PostForm.Get("password")
	data := h.formData(r)
	data.Email = email
	if ret := r.PostForm.Get("return"); ret != "" {
		data.ReturnURL = ret
	}

	if h.Limiter != nil {
		if ok, reason := h.Limiter.Check(r, email); !ok {
			metrics.LoginAttempts.WithLabelValues("password", "rate_limited").Inc()
			h.Log.Warn("login rate limited",
				zap.String("ip", ratelimit.ClientIP(r)),
				zap.String("email", email))
			data.Error = reason
			h.fail(w, r, http.StatusTooManyRequests, data)
			return
		}
	}

	if email == "" || password == "" {
		data.Error = "Email and password are required."
		h.fail(w, r, http.StatusBadRequest, data)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	p, err := h.Accounts.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			metrics.LoginAttempts.WithLabelValues("password", "invalid").Inc()
			data.Error = "Invalid email or password."
			h.fail(w, r, http.StatusUnauthorized, data)
			return
		}
		metrics.LoginAttempts.WithLabelValues("password", "error").Inc()
		h.Log.Error("authenticate failed", zap.Error(err))
		data.Error = errorMessages["internal"]
		h.fail(w, r, http.StatusInternalServerError, data)
		return
	}

	if err := h.SessionMgr.SignIn(ctx, w, r, p); err != nil {
		metrics.LoginAttempts.WithLabelValues("password", "error").Inc()
		h.Log.Error("sign-in failed", zap.String("user_id", p.UID), zap.Error(err))
		data.Error = errorMessages["internal"]
		h.fail(w, r, http.StatusInternalServerError, data)
		return
	}
	if h.Limiter != nil {
		h.Limiter.ResetEmail(email)
	}
	metrics.LoginAttempts.WithLabelValues("password", "success").Inc()

	Redirect(w, r, urlutil.SafeReturn(data.ReturnURL, "", DefaultLanding))
}

// Redirect sends the browser to dest after a successful sign-in. HTMX gets
// HX-Redirect so the whole page reloads.
func Redirect(w http.ResponseWriter, r *http.Request, dest string) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", dest)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, dest, http.StatusSeeOther)
}

// fail re-renders the form, or answers JSON for API clients.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, data loginFormData) {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": data.Error})
		return
	}
	data.Title = "Sign in"
	data.GoogleEnabled = h.GoogleEnabled
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	templates.Render(w, r, "login_form", data)
}
