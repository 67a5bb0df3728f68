// internal/app/features/notifications/stream.go
package notifications

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dalemusser/impacthub/internal/app/system/gates"
	"github.com/dalemusser/impacthub/internal/domain/models"
	"go.uber.org/zap"
)

// HeartbeatInterval is how often an idle stream writes a comment line. Each
// beat also marks the session's engine as in use.
var HeartbeatInterval = 25 * time.Second

type event struct {
	name string
	data any
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /notifications/stream                                                    |
*─────────────────────────────────────────────────────────────────────────────*/

// ServeStream pushes the live notification list and unread count as
// server-sent events:
//
//	notifications  full list, newest first, on every change
//	unread         unread count on every change
//	error          a subscription failed; the last values stand
//	redirect       the session signed out; the stream ends
func (h *Handler) ServeStream(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	handle, err := handleOf(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ctx := r.Context()
	events := make(chan event, 16)
	send := func(e event) {
		select {
		case events <- e:
		case <-ctx.Done():
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	gate := gates.NewGate(handle, gates.NavigatorFunc(func(path string) {
		send(event{name: "redirect", data: map[string]string{"location": path}})
	}), "", nil)
	defer gate.Close()

	unsubList := h.Notify.Subscribe(uid,
		func(list []models.Notification) { send(event{name: "notifications", data: list}) },
		func(err error) { send(event{name: "error", data: map[string]string{"op": "notifications"}}) },
	)
	defer unsubList()

	unsubCount := h.Notify.SubscribeUnreadCount(uid,
		func(n int) { send(event{name: "unread", data: map[string]int{"count": n}}) },
		func(err error) { send(event{name: "error", data: map[string]string{"op": "unread"}}) },
	)
	defer unsubCount()

	sid := h.SessionMgr.PeekSessionID(r)
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	h.Log.Debug("notification stream opened", zap.String("user_id", uid))
	defer h.Log.Debug("notification stream closed", zap.String("user_id", uid))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if sid != "" {
				h.SessionMgr.Engines().Touch(sid)
			}
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case e := <-events:
			if err := writeEvent(w, e); err != nil {
				h.Log.Debug("notification stream write failed", zap.Error(err))
				return
			}
			flusher.Flush()
			if e.name == "redirect" {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, e event) error {
	b, err := json.Marshal(e.data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.name, b)
	return err
}
