// internal/domain/models/notification.go
package models

import "time"

// NotificationType classifies a notification for display and delivery.
type NotificationType string

const (
	NotificationContributionApproved NotificationType = "contribution_approved"
	NotificationContributionRejected NotificationType = "contribution_rejected"
	NotificationNewProject           NotificationType = "new_project"
	NotificationBadgeEarned          NotificationType = "badge_earned"
	NotificationSystem               NotificationType = "system"
)

// AllNotificationTypes lists every valid type in display order.
var AllNotificationTypes = []NotificationType{
	NotificationContributionApproved,
	NotificationContributionRejected,
	NotificationNewProject,
	NotificationBadgeEarned,
	NotificationSystem,
}

// IsValidNotificationType reports whether t is one of AllNotificationTypes.
func IsValidNotificationType(t NotificationType) bool {
	for _, v := range AllNotificationTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Notification is an in-app message for one user. Content never changes
// after creation; only Read flips.
type Notification struct {
	ID        string           `bson:"_id" json:"id"`
	UserID    string           `bson:"user_id" json:"user_id"`
	Type      NotificationType `bson:"type" json:"type"`
	Title     string           `bson:"title" json:"title"`
	Message   string           `bson:"message" json:"message"`
	Read      bool             `bson:"read" json:"read"`
	CreatedAt time.Time        `bson:"created_at" json:"created_at"`
	Link      string           `bson:"link,omitempty" json:"link,omitempty"`
	Metadata  map[string]any   `bson:"metadata,omitempty" json:"metadata,omitempty"`
}
