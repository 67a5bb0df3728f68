// internal/app/features/contributions/handler.go
package contributions

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/dalemusser/impacthub/internal/app/system/auth"
	"github.com/dalemusser/impacthub/internal/app/system/notify"
	"github.com/dalemusser/impacthub/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

// Handler records an admin's decision on a contribution by notifying the
// contributor. The contribution ledger lives elsewhere; the request carries
// what the notification needs.
type Handler struct {
	Notify *notify.Service
	Log    *zap.Logger
}

func NewHandler(svc *notify.Service, logger *zap.Logger) *Handler {
	return &Handler{Notify: svc, Log: logger}
}

type decisionRequest struct {
	UserID      string  `json:"user_id"`
	ProjectID   string  `json:"project_id"`
	ProjectName string  `json:"project_name"`
	Amount      float64 `json:"amount"`
	Decision    string  `json:"decision"`
	Reason      string  `json:"reason"`
}

var errNotFinite = errors.New("amount must be a finite number")

// parseDecision reads a JSON body or form fields.
func parseDecision(w http.ResponseWriter, r *http.Request) (decisionRequest, error) {
	var req decisionRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req)
		return req, err
	}
	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.UserID = r.PostFormValue("user_id")
	req.ProjectID = r.PostFormValue("project_id")
	req.ProjectName = r.PostFormValue("project_name")
	req.Decision = r.PostFormValue("decision")
	req.Reason = r.PostFormValue("reason")
	if a := strings.TrimSpace(r.PostFormValue("amount")); a != "" {
		amt, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return req, err
		}
		if math.IsNaN(amt) || math.IsInf(amt, 0) {
			return req, errNotFinite
		}
		req.Amount = amt
	}
	return req, nil
}

// HandleDecision handles POST /admin/contributions/{id}/decision.
func (h *Handler) HandleDecision(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, err := parseDecision(w, r)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	req.Decision = strings.ToLower(strings.TrimSpace(req.Decision))
	req.UserID = strings.TrimSpace(req.UserID)
	if id == "" || req.UserID == "" || strings.TrimSpace(req.ProjectName) == "" {
		http.Error(w, "user_id and project_name are required", http.StatusBadRequest)
		return
	}

	if req.Decision == DecisionApproved && req.Amount <= 0 {
		http.Error(w, "approved contributions need a positive amount", http.StatusBadRequest)
		return
	}

	c := notify.Contribution{
		ID:          id,
		UserID:      req.UserID,
		ProjectID:   req.ProjectID,
		ProjectName: req.ProjectName,
		Amount:      req.Amount,
	}

	// Long covers the write plus the awaited delivery attempt.
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	var notificationID string
	switch req.Decision {
	case DecisionApproved:
		notificationID, err = h.Notify.ContributionApproved(ctx, c)
	case DecisionRejected:
		notificationID, err = h.Notify.ContributionRejected(ctx, c, strings.TrimSpace(req.Reason))
	default:
		http.Error(w, "decision must be approved or rejected", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.Log.Error("contribution decision notification failed",
			zap.String("contribution_id", id),
			zap.String("decision", req.Decision),
			zap.Error(err))
		http.Error(w, "failed to record decision", http.StatusInternalServerError)
		return
	}

	actor := ""
	if u, ok := auth.CurrentUser(r); ok {
		actor = u.UID()
	}
	h.Log.Info("contribution decided",
		zap.String("contribution_id", id),
		zap.String("decision", req.Decision),
		zap.String("user_id", req.UserID),
		zap.String("actor", actor))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"notification_id": notificationID,
		"decision":        req.Decision,
	})
}
