// internal/app/features/notifications/handler.go
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dalemusser/impacthub/internal/app/system/auth"
	"github.com/dalemusser/impacthub/internal/app/system/authstate"
	"github.com/dalemusser/impacthub/internal/app/system/docstore"
	"github.com/dalemusser/impacthub/internal/app/system/notify"
	"github.com/dalemusser/impacthub/internal/app/system/paging"
	"github.com/dalemusser/impacthub/internal/app/system/timeouts"
	"github.com/dalemusser/impacthub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/templates"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler serves the signed-in user's notification center.
type Handler struct {
	Notify     *notify.Service
	SessionMgr *auth.SessionManager
	Log        *zap.Logger
}

func NewHandler(svc *notify.Service, sessionMgr *auth.SessionManager, logger *zap.Logger) *Handler {
	return &Handler{Notify: svc, SessionMgr: sessionMgr, Log: logger}
}

type listResponse struct {
	Notifications []models.Notification `json:"notifications"`
	Unread        int                   `json:"unread"`
	Total         int                   `json:"total"`
	HasPrev       bool                  `json:"has_prev"`
	HasNext       bool                  `json:"has_next"`
	Range         paging.Range          `json:"range"`
}

// userID returns the UID of the gated request's user.
func userID(r *http.Request) (string, bool) {
	u, ok := auth.CurrentUser(r)
	if !ok || u.UID() == "" {
		return "", false
	}
	return u.UID(), true
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /notifications                                                           |
*─────────────────────────────────────────────────────────────────────────────*/

// ServeList returns one page of the user's notifications, newest first.
// Paging: ?start=1&limit=50.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	all, err := h.Notify.List(ctx, uid)
	if err != nil {
		h.Log.Error("list notifications failed", zap.String("user_id", uid), zap.Error(err))
		http.Error(w, "failed to load notifications", http.StatusInternalServerError)
		return
	}

	unread := 0
	for _, n := range all {
		if !n.Read {
			unread++
		}
	}

	start, limit := paging.ParseStart(r), paging.ParseLimit(r)
	page, res := paging.Window(all, start, limit)
	if page == nil {
		page = []models.Notification{}
	}

	resp := listResponse{
		Notifications: page,
		Unread:        unread,
		Total:         len(all),
		HasPrev:       res.HasPrev,
		HasNext:       res.HasNext,
		Range:         paging.ComputeRange(start, len(page), limit),
	}
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		u, _ := auth.CurrentUser(r)
		templates.Render(w, r, "notifications_page", pageData{
			listResponse: resp,
			Title:        "Notifications",
			IsLoggedIn:   true,
			UserName:     u.FullName(),
		})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// pageData is the HTML view of a list page.
type pageData struct {
	listResponse
	Title      string
	IsLoggedIn bool
	UserName   string
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /notifications/unread-count                                              |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeUnreadCount(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	n, err := h.Notify.UnreadCount(ctx, uid)
	if err != nil {
		h.Log.Error("unread count failed", zap.String("user_id", uid), zap.Error(err))
		http.Error(w, "failed to count notifications", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /notifications/{id}/read                                                |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if _, err := h.Notify.Owned(ctx, uid, id); err != nil {
		h.writeErr(w, "mark_read", uid, id, err)
		return
	}
	if err := h.Notify.MarkAsRead(ctx, id); err != nil {
		h.writeErr(w, "mark_read", uid, id, err)
		return
	}
	if backToList(w, r) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /notifications/read-all                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	n, err := h.Notify.MarkAllAsRead(ctx, uid)
	if err != nil {
		h.writeErr(w, "mark_all_read", uid, "", err)
		return
	}
	if backToList(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": n})
}

// backToList sends browser form posts back to the list page.
func backToList(w http.ResponseWriter, r *http.Request) bool {
	if !strings.Contains(r.Header.Get("Accept"), "text/html") {
		return false
	}
	http.Redirect(w, r, "/notifications", http.StatusSeeOther)
	return true
}

/*─────────────────────────────────────────────────────────────────────────────*
| DELETE /notifications/{id}                                                   |
*─────────────────────────────────────────────────────────────────────────────*/

// HandleDelete is idempotent: a missing notification, or one that belongs
// to someone else, answers 204 without touching the store.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if _, err := h.Notify.Owned(ctx, uid, id); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.writeErr(w, "delete", uid, id, err)
		return
	}
	if err := h.Notify.Delete(ctx, id); err != nil {
		h.writeErr(w, "delete", uid, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeErr maps service errors to statuses. Not-found (including a
// notification owned by someone else) is 404.
func (h *Handler) writeErr(w http.ResponseWriter, op, uid, id string, err error) {
	if errors.Is(err, docstore.ErrNotFound) {
		http.Error(w, "notification not found", http.StatusNotFound)
		return
	}
	var we *notify.WriteError
	if errors.As(err, &we) {
		h.Log.Error("notification write failed",
			zap.String("op", op), zap.String("user_id", uid), zap.String("id", id), zap.Error(err))
		http.Error(w, "failed to update notifications", http.StatusInternalServerError)
		return
	}
	h.Log.Error("notification request failed",
		zap.String("op", op), zap.String("user_id", uid), zap.String("id", id), zap.Error(err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleOf is the authstate handle of a gated request.
func handleOf(r *http.Request) (*authstate.Handle, error) {
	return authstate.FromContext(r.Context())
}
