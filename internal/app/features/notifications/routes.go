// internal/app/features/notifications/routes.go
package notifications

import (
	"github.com/dalemusser/impacthub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the notification center. Every route requires a signed-in
// user.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/", h.ServeList)
	r.Get("/unread-count", h.ServeUnreadCount)
	r.Get("/stream", h.ServeStream)
	r.Post("/read-all", h.HandleMarkAllRead)
	r.Post("/{id}/read", h.HandleMarkRead)
	r.Delete("/{id}", h.HandleDelete)
	return r
}
