package pgstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/notifyengine/pkg/notifications"
	"github.com/dmitrymomot/notifyengine/pkg/pg"
)

const notificationColumns = `id, user_id, organization_id, type, title, body, priority,
	ai_score, ai_reason, action_url, action_label, entity_type, entity_id, metadata,
	is_read, read_at, delivered_at, snoozed_until, created_at`

// unreadPredicate matches rows that count as unread at $2.
const unreadPredicate = `user_id = $1 AND NOT is_read
	AND delivered_at IS NOT NULL
	AND (snoozed_until IS NULL OR snoozed_until <= $2)`

// Storage is a notifications.Storage backed by PostgreSQL.
type Storage struct {
	db DB
}

func New(db DB) *Storage {
	return &Storage{db: db}
}

func (s *Storage) Create(ctx context.Context, n notifications.Notification) error {
	var metadata []byte
	if len(n.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(n.Metadata); err != nil {
			return wrapErr("encode metadata", err)
		}
	}

	var actionURL, actionLabel, entityType, entityID *string
	if n.Action != nil {
		actionURL, actionLabel = &n.Action.URL, &n.Action.Label
	}
	if n.Entity != nil {
		entityType, entityID = &n.Entity.Type, &n.Entity.ID
	}

	_, err := s.db.Exec(ctx, `INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		n.ID, n.UserID, n.OrganizationID, string(n.Type), n.Title, n.Body, string(n.Priority),
		n.AIScore, n.AIReason, actionURL, actionLabel, entityType, entityID, metadata,
		n.Read, n.ReadAt, n.DeliveredAt, n.SnoozedUntil, n.CreatedAt,
	)
	if err != nil {
		return wrapErr("create notification", err)
	}
	return nil
}

func (s *Storage) Get(ctx context.Context, userID, id string) (*notifications.Notification, error) {
	rows, err := s.db.Query(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return nil, wrapErr("get notification", err)
	}
	n, err := pgx.CollectExactlyOneRow(rows, scanNotification)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, notifications.ErrNotificationNotFound
		}
		return nil, wrapErr("get notification", err)
	}
	return &n, nil
}

func (s *Storage) ListUnread(ctx context.Context, userID string, now time.Time, limit int) ([]notifications.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE ` + unreadPredicate +
		` ORDER BY created_at DESC, id DESC`
	args := []any{userID, now}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list unread", err)
	}
	list, err := pgx.CollectRows(rows, scanNotification)
	if err != nil {
		return nil, wrapErr("list unread", err)
	}
	return list, nil
}

func (s *Storage) CountUnread(ctx context.Context, userID string, now time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM notifications WHERE `+unreadPredicate, userID, now).Scan(&count)
	if err != nil {
		return 0, wrapErr("count unread", err)
	}
	return count, nil
}

func (s *Storage) MarkRead(ctx context.Context, userID, id string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE notifications
		SET is_read = TRUE, read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND user_id = $2`, id, userID, at)
	if err != nil {
		return wrapErr("mark read", err)
	}
	if tag.RowsAffected() == 0 {
		return notifications.ErrNotificationNotFound
	}
	return nil
}

// MarkAllRead runs as a single statement, so the set it touches is exactly
// the rows unread and delivered no later than snapshot.
func (s *Storage) MarkAllRead(ctx context.Context, userID string, snapshot time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, `UPDATE notifications
		SET is_read = TRUE, read_at = $2
		WHERE `+unreadPredicate+` AND delivered_at <= $2`, userID, snapshot)
	if err != nil {
		return 0, wrapErr("mark all read", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Storage) Snooze(ctx context.Context, userID, id string, until time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE notifications SET snoozed_until = $3 WHERE id = $1 AND user_id = $2`, id, userID, until)
	if err != nil {
		return wrapErr("snooze", err)
	}
	if tag.RowsAffected() == 0 {
		return notifications.ErrNotificationNotFound
	}
	return nil
}

func (s *Storage) MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE notifications SET delivered_at = $2 WHERE id = $1 AND delivered_at IS NULL`, id, at)
	if err != nil {
		return false, wrapErr("mark delivered", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Storage) ListDue(ctx context.Context, now time.Time, limit int) ([]notifications.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
		WHERE delivered_at IS NULL AND snoozed_until <= $1
		ORDER BY snoozed_until, id`
	args := []any{now}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list due", err)
	}
	list, err := pgx.CollectRows(rows, scanNotification)
	if err != nil {
		return nil, wrapErr("list due", err)
	}
	return list, nil
}

func scanNotification(row pgx.CollectableRow) (notifications.Notification, error) {
	var (
		n                                            notifications.Notification
		typ, priority                                string
		actionURL, actionLabel, entityType, entityID *string
		metadata                                     []byte
	)
	err := row.Scan(
		&n.ID, &n.UserID, &n.OrganizationID, &typ, &n.Title, &n.Body, &priority,
		&n.AIScore, &n.AIReason, &actionURL, &actionLabel, &entityType, &entityID, &metadata,
		&n.Read, &n.ReadAt, &n.DeliveredAt, &n.SnoozedUntil, &n.CreatedAt,
	)
	if err != nil {
		return n, err
	}

	n.Type = notifications.Type(typ)
	n.Priority = notifications.ParsePriority(priority)
	if actionURL != nil {
		n.Action = &notifications.Action{URL: *actionURL}
		if actionLabel != nil {
			n.Action.Label = *actionLabel
		}
	}
	if entityType != nil && entityID != nil {
		n.Entity = &notifications.EntityRef{Type: *entityType, ID: *entityID}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
			return n, err
		}
	}
	return n, nil
}
