package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/notifyengine/pkg/notifications"
	"github.com/dmitrymomot/notifyengine/pkg/pg"
)

const preferenceColumns = `user_id, types, channels, ai_prioritization, quiet_start, quiet_end,
	digest_enabled, digest_frequency, digest_at, email, timezone, updated_at`

// PreferenceStore is a notifications.PreferenceStore backed by PostgreSQL.
type PreferenceStore struct {
	db  DB
	now func() time.Time
}

func NewPreferenceStore(db DB) *PreferenceStore {
	return &PreferenceStore{db: db, now: time.Now}
}

func (s *PreferenceStore) GetPreferences(ctx context.Context, userID string) (*notifications.Preferences, error) {
	return getPreferences(ctx, s.db, userID, "")
}

// SetPreferences locks the user's row, applies patch and writes it back in
// one transaction so concurrent patches don't overwrite each other's fields.
func (s *PreferenceStore) SetPreferences(ctx context.Context, userID string, patch notifications.PreferencesPatch) (*notifications.Preferences, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, wrapErr("begin preferences update", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p, err := getPreferences(ctx, tx, userID, " FOR UPDATE")
	switch {
	case errors.Is(err, notifications.ErrPreferencesNotFound):
		p = notifications.DefaultPreferences(userID)
	case err != nil:
		return nil, err
	}

	if err := p.Apply(patch); err != nil {
		return nil, err
	}
	p.UserID = userID
	p.UpdatedAt = s.now()

	types, err := json.Marshal(p.Types)
	if err != nil {
		return nil, wrapErr("encode type toggles", err)
	}
	channels, err := json.Marshal(p.Channels)
	if err != nil {
		return nil, wrapErr("encode channel toggles", err)
	}

	_, err = tx.Exec(ctx, `INSERT INTO notification_preferences (`+preferenceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id) DO UPDATE SET
			types = EXCLUDED.types,
			channels = EXCLUDED.channels,
			ai_prioritization = EXCLUDED.ai_prioritization,
			quiet_start = EXCLUDED.quiet_start,
			quiet_end = EXCLUDED.quiet_end,
			digest_enabled = EXCLUDED.digest_enabled,
			digest_frequency = EXCLUDED.digest_frequency,
			digest_at = EXCLUDED.digest_at,
			email = EXCLUDED.email,
			timezone = EXCLUDED.timezone,
			updated_at = EXCLUDED.updated_at`,
		userID, types, channels, p.AIPrioritization,
		minutesOrNil(p.QuietHours.Start), minutesOrNil(p.QuietHours.End),
		p.Digest.Enabled, string(p.Digest.Frequency), int32(p.Digest.DeliverAt),
		p.Email, p.Timezone, p.UpdatedAt,
	)
	if err != nil {
		return nil, wrapErr("save preferences", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, wrapErr("commit preferences", err)
	}
	return p, nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getPreferences(ctx context.Context, q rowQuerier, userID, suffix string) (*notifications.Preferences, error) {
	var (
		p                    notifications.Preferences
		types, channels      []byte
		quietStart, quietEnd *int32
		frequency            string
		digestAt             int32
	)
	err := q.QueryRow(ctx, `SELECT `+preferenceColumns+` FROM notification_preferences WHERE user_id = $1`+suffix, userID).Scan(
		&p.UserID, &types, &channels, &p.AIPrioritization, &quietStart, &quietEnd,
		&p.Digest.Enabled, &frequency, &digestAt, &p.Email, &p.Timezone, &p.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, notifications.ErrPreferencesNotFound
		}
		return nil, wrapErr("get preferences", err)
	}

	if err := json.Unmarshal(types, &p.Types); err != nil {
		return nil, wrapErr("decode type toggles", err)
	}
	if err := json.Unmarshal(channels, &p.Channels); err != nil {
		return nil, wrapErr("decode channel toggles", err)
	}
	if quietStart != nil && quietEnd != nil {
		start, end := notifications.TimeOfDay(*quietStart), notifications.TimeOfDay(*quietEnd)
		p.QuietHours = notifications.QuietHours{Start: &start, End: &end}
	}
	p.Digest.Frequency = notifications.DigestFrequency(frequency)
	p.Digest.DeliverAt = notifications.TimeOfDay(digestAt)
	return &p, nil
}

func minutesOrNil(t *notifications.TimeOfDay) *int32 {
	if t == nil {
		return nil
	}
	v := int32(*t)
	return &v
}
