package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/dalemusser/impacthub/internal/app/system/docstore"
	"github.com/dalemusser/impacthub/internal/app/system/functions"
	"github.com/dalemusser/impacthub/internal/app/system/mailer"
	"go.uber.org/zap"
)

// EmailLookup resolves a user's email address.
type EmailLookup interface {
	LookupEmail(ctx context.Context, uid string) (string, error)
}

// EmailSender delivers one email.
type EmailSender interface {
	Send(ctx context.Context, e mailer.Email) error
}

// DeliveryResult is what sendNotification returns per channel:
// "sent" or "skipped".
type DeliveryResult struct {
	Email string `json:"email"`
	Push  string `json:"push"`
}

// SendNotificationHandler serves the sendNotification callable. Push is
// always skipped: there is no device-token registry.
func SendNotificationHandler(lookup EmailLookup, sender EmailSender, siteName, baseURL string, logger *zap.Logger) functions.Handler {
	baseURL = strings.TrimRight(baseURL, "/")

	return func(ctx context.Context, data json.RawMessage) (any, error) {
		var p DeliveryPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, functions.Errorf(functions.StatusInvalidArgument, "payload must be an object")
		}
		if p.UserID == "" || p.NotificationID == "" {
			return nil, functions.Errorf(functions.StatusInvalidArgument, "user_id and notification_id are required")
		}

		to, err := lookup.LookupEmail(ctx, p.UserID)
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, functions.Errorf(functions.StatusNotFound, "no account for user %s", p.UserID)
		}
		if err != nil {
			return nil, err
		}

		link := p.Link
		if strings.HasPrefix(link, "/") {
			link = baseURL + link
		}
		email := mailer.BuildNotificationEmail(mailer.NotificationEmailData{
			SiteName: siteName,
			Title:    p.Title,
			Message:  p.Message,
			Link:     link,
		})
		email.To = to

		res := DeliveryResult{Email: "sent", Push: "skipped"}
		switch err := sender.Send(ctx, email); {
		case errors.Is(err, mailer.ErrNotConfigured):
			res.Email = "skipped"
		case err != nil:
			return nil, err
		}

		logger.Info("notification delivered",
			zap.String("notification_id", p.NotificationID),
			zap.String("user_id", p.UserID),
			zap.String("email", res.Email))
		return res, nil
	}
}
