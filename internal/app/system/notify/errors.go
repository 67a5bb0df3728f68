package notify

import (
	"errors"
	"fmt"
)

// ErrInvalid is returned for a notification missing its user or carrying an
// unknown type. Nothing is written.
var ErrInvalid = errors.New("notify: invalid notification")

// WriteError is a rejected notification write. It unwraps to the store
// error, so errors.Is(err, docstore.ErrNotFound) works for MarkAsRead.
type WriteError struct {
	Op  string // create, mark_read, mark_all_read, delete
	ID  string // notification id or user id for mark_all_read; "" for create
	Err error
}

func (e *WriteError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("notification %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("notification %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// DeliveryError is a failed out-of-band delivery. The helpers log and count
// it; they never return it.
type DeliveryError struct {
	NotificationID string
	Err            error
}

func (e *DeliveryError) Error() string {
	return "deliver notification " + e.NotificationID + ": " + e.Err.Error()
}

func (e *DeliveryError) Unwrap() error { return e.Err }
