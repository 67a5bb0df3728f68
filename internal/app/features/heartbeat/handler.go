// internal/app/features/heartbeat/handler.go
package heartbeat

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dalemusser/impacthub/internal/app/system/auth"
	"github.com/dalemusser/impacthub/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Renewer extends a session's server-side lifetime. The Redis identity
// provider implements it; the in-memory one does not need to.
type Renewer interface {
	Renew(ctx context.Context, sid string) error
}

// Handler keeps an open page's session alive.
type Handler struct {
	SessionMgr *auth.SessionManager
	Log        *zap.Logger
}

// NewHandler creates a new heartbeat handler.
func NewHandler(sessionMgr *auth.SessionManager, logger *zap.Logger) *Handler {
	return &Handler{SessionMgr: sessionMgr, Log: logger}
}

// heartbeatRequest is the JSON body for the heartbeat endpoint.
type heartbeatRequest struct {
	Page string `json:"page"`
}

// ServeHeartbeat handles POST /api/heartbeat.
// Marks the session's engine as in use so the idle sweep keeps it, and
// renews the identity session when the provider supports it. Failures are
// logged, never surfaced: the page keeps beating either way.
func (h *Handler) ServeHeartbeat(w http.ResponseWriter, r *http.Request) {
	sid := h.SessionMgr.PeekSessionID(r)
	if sid == "" {
		w.WriteHeader(http.StatusOK) // Silent fail - no session
		return
	}

	var req heartbeatRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // page is optional
	}

	engines := h.SessionMgr.Engines()
	engines.Touch(sid)

	if rn, ok := engines.Provider().(Renewer); ok {
		ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
		defer cancel()
		if err := rn.Renew(ctx, sid); err != nil {
			h.Log.Warn("failed to renew session",
				zap.Error(err),
				zap.String("page", req.Page))
		}
	}

	w.WriteHeader(http.StatusOK)
}
