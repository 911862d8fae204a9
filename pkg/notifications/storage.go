package notifications

import (
	"context"
	"time"
)

// Storage persists notifications. Failures caused by an unreachable or
// overloaded backend must be reported as TransientError so callers can tell
// them apart from ErrNotificationNotFound.
type Storage interface {
	Create(ctx context.Context, n Notification) error
	Get(ctx context.Context, userID, id string) (*Notification, error)

	// ListUnread returns notifications that are unread at now, newest first.
	ListUnread(ctx context.Context, userID string, now time.Time, limit int) ([]Notification, error)
	CountUnread(ctx context.Context, userID string, now time.Time) (int, error)

	// MarkRead is idempotent; an already-read notification keeps its ReadAt.
	MarkRead(ctx context.Context, userID, id string, at time.Time) error
	// MarkAllRead marks every notification that was unread at snapshot as
	// read, atomically, and returns how many changed. Notifications delivered
	// after snapshot are left alone.
	MarkAllRead(ctx context.Context, userID string, snapshot time.Time) (int, error)
	Snooze(ctx context.Context, userID, id string, until time.Time) error

	// MarkDelivered sets DeliveredAt only if it is still unset and reports
	// whether this call won.
	MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error)
	// ListDue returns pending notifications whose snooze has expired at now,
	// oldest snooze first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]Notification, error)
}
