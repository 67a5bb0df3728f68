// internal/app/features/userinfo/handler.go
package userinfo

import (
	"encoding/json"
	"net/http"

	"github.com/dalemusser/impacthub/internal/app/system/auth"
	"github.com/dalemusser/impacthub/internal/app/system/authstate"
	"go.uber.org/zap"
)

// Handler serves the merged user of the current session.
type Handler struct {
	SessionMgr *auth.SessionManager
	Log        *zap.Logger
}

// NewHandler creates a new userinfo handler.
func NewHandler(sessionMgr *auth.SessionManager, logger *zap.Logger) *Handler {
	return &Handler{SessionMgr: sessionMgr, Log: logger}
}

// stateResponse is the JSON form of an authstate.State.
type stateResponse struct {
	IsAuthenticated bool   `json:"isAuthenticated"`
	IsLoading       bool   `json:"isLoading"`
	User            any    `json:"user"`
	Error           string `json:"error,omitempty"`
}

func encodeState(w http.ResponseWriter, st authstate.State) {
	resp := stateResponse{
		IsAuthenticated: st.IsLoggedIn(),
		IsLoading:       st.IsLoading,
		Error:           st.Message(),
	}
	if st.User != nil {
		resp.User = st.User
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(resp)
}

// ServeMe handles GET /me behind RequireSignedIn: the settled merged user.
//
//	{ "isAuthenticated": true, "isLoading": false, "user": {...}, "error": "..." }
//
// "error" is present when the profile could not be refreshed; the user is
// then the last one merged.
func (h *Handler) ServeMe(w http.ResponseWriter, r *http.Request) {
	handle, err := authstate.FromContext(r.Context())
	if err != nil {
		h.Log.Error("me outside a signed-in scope", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	encodeState(w, handle.State())
}

// ServeUserInfo handles GET /api/user without gating: it reports whatever
// the session's engine knows right now, including a loading state.
func (h *Handler) ServeUserInfo(w http.ResponseWriter, r *http.Request) {
	eng, _ := h.SessionMgr.Engine(r)
	if eng == nil {
		encodeState(w, authstate.State{})
		return
	}
	encodeState(w, eng.State())
}
