package notify

import (
	"context"
	"fmt"

	"github.com/dalemusser/impacthub/internal/app/system/metrics"
	"github.com/dalemusser/impacthub/internal/app/system/timeouts"
	"github.com/dalemusser/impacthub/internal/domain/models"
	"go.uber.org/zap"
)

// SendNotificationFunction is the callable that emails a notification.
const SendNotificationFunction = "sendNotification"

// DeliveryPayload is the sendNotification request body.
type DeliveryPayload struct {
	UserID         string                  `json:"user_id"`
	NotificationID string                  `json:"notification_id"`
	Type           models.NotificationType `json:"type"`
	Title          string                  `json:"title"`
	Message        string                  `json:"message"`
	Link           string                  `json:"link,omitempty"`
}

// Contribution identifies the contribution a decision was made on.
type Contribution struct {
	ID          string
	UserID      string
	ProjectID   string
	ProjectName string
	Amount      float64
}

// ContributionApproved notifies the contributor and attempts delivery.
// Delivery failure never fails the call.
func (s *Service) ContributionApproved(ctx context.Context, c Contribution) (string, error) {
	n := New{
		UserID:  c.UserID,
		Type:    models.NotificationContributionApproved,
		Title:   "Contribution approved",
		Message: fmt.Sprintf("Your contribution of $%.2f to %s has been approved. Thank you for making an impact!", c.Amount, c.ProjectName),
		Link:    "/contributions/" + c.ID,
		Metadata: map[string]any{
			"contribution_id": c.ID,
			"project_id":      c.ProjectID,
			"amount":          c.Amount,
		},
	}
	return s.createAndDeliver(ctx, n)
}

// ContributionRejected notifies the contributor with the reason given and
// attempts delivery.
func (s *Service) ContributionRejected(ctx context.Context, c Contribution, reason string) (string, error) {
	msg := fmt.Sprintf("Your contribution to %s was not approved.", c.ProjectName)
	if reason != "" {
		msg += " Reason: " + reason
	}
	n := New{
		UserID:  c.UserID,
		Type:    models.NotificationContributionRejected,
		Title:   "Contribution not approved",
		Message: msg,
		Link:    "/contributions/" + c.ID,
		Metadata: map[string]any{
			"contribution_id": c.ID,
			"project_id":      c.ProjectID,
			"reason":          reason,
		},
	}
	return s.createAndDeliver(ctx, n)
}

// NewProject tells each user about a newly published project. In-app only.
// It stops at the first failed write and returns the ids created so far.
func (s *Service) NewProject(ctx context.Context, userIDs []string, projectID, projectName string) ([]string, error) {
	ids := make([]string, 0, len(userIDs))
	for _, uid := range userIDs {
		id, err := s.Create(ctx, New{
			UserID:   uid,
			Type:     models.NotificationNewProject,
			Title:    "New project",
			Message:  fmt.Sprintf("%s is now accepting contributions.", projectName),
			Link:     "/projects/" + projectID,
			Metadata: map[string]any{"project_id": projectID},
		})
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// BadgeEarned records a badge award. In-app only.
func (s *Service) BadgeEarned(ctx context.Context, userID, badge, description string) (string, error) {
	return s.Create(ctx, New{
		UserID:   userID,
		Type:     models.NotificationBadgeEarned,
		Title:    "Badge earned: " + badge,
		Message:  description,
		Metadata: map[string]any{"badge": badge},
	})
}

// System posts an operator message. In-app only.
func (s *Service) System(ctx context.Context, userID, title, message, link string) (string, error) {
	return s.Create(ctx, New{
		UserID:  userID,
		Type:    models.NotificationSystem,
		Title:   title,
		Message: message,
		Link:    link,
	})
}

func (s *Service) createAndDeliver(ctx context.Context, n New) (string, error) {
	id, err := s.Create(ctx, n)
	if err != nil {
		return "", err
	}
	if derr := s.deliverNow(ctx, id, n); derr != nil {
		metrics.NotificationDeliveries.WithLabelValues("failed").Inc()
		s.log.Warn("notification delivery failed",
			zap.String("notification_id", id),
			zap.String("user_id", n.UserID),
			zap.Error(derr))
	}
	return id, nil
}

// deliverNow awaits the sendNotification call for at most
// timeouts.Delivery(), independent of ctx's cancellation.
func (s *Service) deliverNow(ctx context.Context, id string, n New) error {
	if s.deliver == nil {
		return nil
	}
	dctx, cancel := timeouts.WithTimeout(context.WithoutCancel(ctx), timeouts.Delivery(), s.log, SendNotificationFunction)
	defer cancel()

	_, err := s.deliver.Invoke(dctx, SendNotificationFunction, DeliveryPayload{
		UserID:         n.UserID,
		NotificationID: id,
		Type:           n.Type,
		Title:          n.Title,
		Message:        n.Message,
		Link:           n.Link,
	})
	if err != nil {
		return &DeliveryError{NotificationID: id, Err: err}
	}
	metrics.NotificationDeliveries.WithLabelValues("sent").Inc()
	return nil
}
