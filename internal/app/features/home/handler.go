// internal/app/features/home/handler.go
package home

import (
	"context"
	"net/http"

	"github.com/dalemusser/impacthub/internal/app/system/auth"
	"github.com/dalemusser/impacthub/internal/app/system/notify"
	"github.com/dalemusser/impacthub/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/pantry/templates"
	"go.uber.org/zap"
)

// Handler holds dependencies needed to serve the home page.
type Handler struct {
	SessionMgr *auth.SessionManager
	Notify     *notify.Service
	Log        *zap.Logger
}

func NewHandler(sessionMgr *auth.SessionManager, svc *notify.Service, logger *zap.Logger) *Handler {
	return &Handler{
		SessionMgr: sessionMgr,
		Notify:     svc,
		Log:        logger,
	}
}

type homeVM struct {
	Title      string
	IsLoggedIn bool
	IsLoading  bool
	IsAdmin    bool
	UserName   string
	FirstName  string
	Unread     int
	Total      float64
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET / – landing                                                             |
*─────────────────────────────────────────────────────────────────────────────*/

// ServeRoot is public. A signed-in visitor sees a greeting and their unread
// count; a session still resolving gets a self-refreshing placeholder.
func (h *Handler) ServeRoot(w http.ResponseWriter, r *http.Request) {
	templates.Render(w, r, "home", h.viewModel(r))
}

func (h *Handler) viewModel(r *http.Request) homeVM {
	vm := homeVM{Title: "Welcome"}

	eng, _ := h.SessionMgr.Engine(r)
	if eng == nil {
		return vm
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Gate())
	st := eng.Wait(ctx)
	cancel()

	switch {
	case st.IsLoading:
		vm.IsLoading = true
	case st.User != nil:
		vm.IsLoggedIn = true
		vm.IsAdmin = st.User.Role() == "admin"
		vm.UserName = st.User.FullName()
		vm.Total = st.User.TotalContributions()
		vm.FirstName = st.User.FirstName()
		if vm.FirstName == "" {
			vm.FirstName = vm.UserName
		}

		cctx, ccancel := context.WithTimeout(r.Context(), timeouts.Short())
		n, err := h.Notify.UnreadCount(cctx, st.User.UID())
		ccancel()
		if err != nil {
			// the page still renders without the count
			h.Log.Warn("home: unread count failed", zap.String("user_id", st.User.UID()), zap.Error(err))
		}
		vm.Unread = n
	}
	return vm
}
