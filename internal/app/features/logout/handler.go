// internal/app/features/logout/handler.go
package logout

import (
	"context"
	"net/http"

	uierrors "github.com/dalemusser/impacthub/internal/app/features/errors"
	"github.com/dalemusser/impacthub/internal/app/system/auth"
	"github.com/dalemusser/impacthub/internal/app/system/authstate"
	"github.com/dalemusser/impacthub/internal/app/system/timeouts"
	"go.uber.org/zap"
)

type Handler struct {
	Log        *zap.Logger
	SessionMgr *auth.SessionManager
}

func NewHandler(sessionMgr *auth.SessionManager, logger *zap.Logger) *Handler {
	return &Handler{
		Log:        logger,
		SessionMgr: sessionMgr,
	}
}

// ServeLogout handles GET and POST /logout. It must sit behind
// RequireSignedIn.
func (h *Handler) ServeLogout(w http.ResponseWriter, r *http.Request) {
	handle, err := authstate.FromContext(r.Context())
	if err != nil {
		h.Log.Error("logout outside a signed-in scope", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	uid := handle.State().User.UID()

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if err := handle.Logout(ctx); err != nil {
		// The engine keeps the user and carries the error; show its text.
		h.Log.Warn("sign-out failed", zap.String("user_id", uid), zap.Error(err))
		uierrors.Render(w, r, http.StatusBadGateway, "Sign out failed", handle.State().Message(), "/")
		return
	}

	h.SessionMgr.ClearSession(w, r)
	h.Log.Info("signed out", zap.String("user_id", uid))

	// HTMX handling: use HX-Redirect to force a client-side navigation to "/".
	if r.Header.Get("HX-Request") != "" {
		w.Header().Set("HX-Redirect", "/")
		w.WriteHeader(http.StatusOK)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}
