// internal/app/features/contributions/routes.go
package contributions

import (
	"github.com/dalemusser/impacthub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the admin contribution endpoints under /admin/contributions.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)
	r.Use(sm.RequireRole("admin"))

	r.Post("/{id}/decision", h.HandleDecision)
	return r
}
