// Package notify is the notification subsystem: in-app notification
// records, their live list and unread count, read/delete mutations, and
// best-effort email delivery through the sendNotification callable.
package notify

import (
	"context"
	"strings"
	"time"

	"github.com/dalemusser/impacthub/internal/app/system/docstore"
	"github.com/dalemusser/impacthub/internal/app/system/functions"
	"github.com/dalemusser/impacthub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/impacthub/internal/app/system/metrics"
	"github.com/dalemusser/impacthub/internal/domain/models"
	"go.uber.org/zap"
)

// Collection holds one document per notification.
const Collection = "notifications"

// New describes a notification to create. Link and Metadata are optional.
type New struct {
	UserID   string
	Type     models.NotificationType
	Title    string
	Message  string
	Link     string
	Metadata map[string]any
}

// Service implements the notification operations on a document store.
type Service struct {
	store   docstore.Store
	deliver functions.Invoker
	log     *zap.Logger
	now     func() time.Time
}

// NewService creates the service. A nil invoker disables delivery.
func NewService(store docstore.Store, invoker functions.Invoker, logger *zap.Logger) *Service {
	return &Service{store: store, deliver: invoker, log: logger, now: time.Now}
}

// Create writes a notification and returns its id once the write is durable.
// Title and message are reduced to plain text and unsafe links dropped.
func (s *Service) Create(ctx context.Context, n New) (string, error) {
	if strings.TrimSpace(n.UserID) == "" || !models.IsValidNotificationType(n.Type) {
		return "", ErrInvalid
	}

	doc := docstore.Doc{
		"user_id":    n.UserID,
		"type":       string(n.Type),
		"title":      htmlsanitize.PlainText(n.Title),
		"message":    htmlsanitize.PlainText(n.Message),
		"read":       false,
		"created_at": s.now().UTC(),
	}
	if link := htmlsanitize.Link(n.Link); link != "" {
		doc["link"] = link
	}
	if len(n.Metadata) > 0 {
		doc["metadata"] = n.Metadata
	}

	id, err := s.store.Write(ctx, Collection, "", doc)
	if err != nil {
		metrics.NotificationWriteErrors.WithLabelValues("create").Inc()
		return "", &WriteError{Op: "create", Err: err}
	}
	metrics.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()
	return id, nil
}

// Get returns one notification.
func (s *Service) Get(ctx context.Context, id string) (models.Notification, error) {
	d, err := s.store.Get(ctx, Collection, id)
	if err != nil {
		return models.Notification{}, err
	}
	return fromDoc(d), nil
}

// Owned returns notification id if it belongs to userID, and
// docstore.ErrNotFound otherwise.
func (s *Service) Owned(ctx context.Context, userID, id string) (models.Notification, error) {
	n, err := s.Get(ctx, id)
	if err != nil {
		return models.Notification{}, err
	}
	if n.UserID != userID {
		return models.Notification{}, docstore.ErrNotFound
	}
	return n, nil
}

func byUser(userID string) []docstore.Filter {
	return []docstore.Filter{docstore.Where("user_id", userID)}
}

func unreadFor(userID string) []docstore.Filter {
	return []docstore.Filter{docstore.Where("user_id", userID), docstore.Where("read", false)}
}

var newestFirst = docstore.Order{Field: "created_at", Desc: true}

// List returns the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]models.Notification, error) {
	docs, err := s.store.Query(ctx, Collection, byUser(userID), newestFirst)
	if err != nil {
		return nil, err
	}
	return fromDocs(docs), nil
}

// UnreadCount returns how many of the user's notifications are unread.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	docs, err := s.store.Query(ctx, Collection, unreadFor(userID), docstore.Order{})
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// Subscribe streams the user's full notification list, newest first, on
// every change. An empty result is an empty slice, not an error.
func (s *Service) Subscribe(userID string, onChange func([]models.Notification), onError func(error)) docstore.Unsubscribe {
	return s.store.SubscribeQuery(Collection, byUser(userID), newestFirst,
		func(docs []docstore.Doc) { onChange(fromDocs(docs)) },
		s.logged("subscribe", userID, onError),
	)
}

// SubscribeUnreadCount streams the user's unread count on every change.
func (s *Service) SubscribeUnreadCount(userID string, onChange func(int), onError func(error)) docstore.Unsubscribe {
	return s.store.SubscribeQuery(Collection, unreadFor(userID), docstore.Order{},
		func(docs []docstore.Doc) { onChange(len(docs)) },
		s.logged("subscribe_unread_count", userID, onError),
	)
}

func (s *Service) logged(op, userID string, onError func(error)) func(error) {
	return func(err error) {
		s.log.Warn("notification subscription failed",
			zap.String("op", op), zap.String("user_id", userID), zap.Error(err))
		if onError != nil {
			onError(err)
		}
	}
}

// MarkAsRead sets read on one notification. A missing notification is a
// WriteError wrapping docstore.ErrNotFound.
func (s *Service) MarkAsRead(ctx context.Context, id string) error {
	if err := s.store.Update(ctx, Collection, id, docstore.Doc{"read": true}); err != nil {
		metrics.NotificationWriteErrors.WithLabelValues("mark_read").Inc()
		return &WriteError{Op: "mark_read", ID: id, Err: err}
	}
	return nil
}

// MarkAllAsRead snapshots the user's unread notifications and flips them in
// one atomic batch, returning how many were marked. Notifications created
// after the snapshot stay unread.
func (s *Service) MarkAllAsRead(ctx context.Context, userID string) (int, error) {
	docs, err := s.store.Query(ctx, Collection, unreadFor(userID), docstore.Order{})
	if err != nil {
		return 0, &WriteError{Op: "mark_all_read", ID: userID, Err: err}
	}
	if len(docs) == 0 {
		return 0, nil
	}

	ops := make([]docstore.Op, 0, len(docs))
	for _, d := range docs {
		ops = append(ops, docstore.Op{
			Kind:       docstore.OpUpdate,
			Collection: Collection,
			ID:         d.ID(),
			Data:       docstore.Doc{"read": true},
		})
	}
	if err := s.store.Batch(ctx, ops); err != nil {
		metrics.NotificationWriteErrors.WithLabelValues("mark_all_read").Inc()
		return 0, &WriteError{Op: "mark_all_read", ID: userID, Err: err}
	}
	return len(ops), nil
}

// Delete removes a notification. Deleting a missing one succeeds.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, Collection, id); err != nil {
		metrics.NotificationWriteErrors.WithLabelValues("delete").Inc()
		return &WriteError{Op: "delete", ID: id, Err: err}
	}
	return nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| document mapping                                                           |
*─────────────────────────────────────────────────────────────────────────────*/

func fromDocs(docs []docstore.Doc) []models.Notification {
	out := make([]models.Notification, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromDoc(d))
	}
	return out
}

func fromDoc(d docstore.Doc) models.Notification {
	str := func(k string) string {
		v, _ := d[k].(string)
		return v
	}
	n := models.Notification{
		ID:      d.ID(),
		UserID:  str("user_id"),
		Type:    models.NotificationType(str("type")),
		Title:   str("title"),
		Message: str("message"),
		Link:    str("link"),
	}
	n.Read, _ = d["read"].(bool)
	n.CreatedAt, _ = d["created_at"].(time.Time)
	switch md := d["metadata"].(type) {
	case map[string]any:
		n.Metadata = md
	case docstore.Doc:
		n.Metadata = md
	}
	return n
}
