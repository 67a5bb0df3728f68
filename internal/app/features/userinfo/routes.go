// internal/app/features/userinfo/routes.go
package userinfo

import (
	"github.com/dalemusser/impacthub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers GET /me (gated) and GET /api/user (ungated) on the
// supplied router.
func MountRoutes(r chi.Router, h *Handler, sm *auth.SessionManager) {
	r.With(sm.RequireSignedIn).Get("/me", h.ServeMe)
	r.Get("/api/user", h.ServeUserInfo)
}
