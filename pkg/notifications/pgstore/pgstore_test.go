package pgstore_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyengine/pkg/logger"
	"github.com/dmitrymomot/notifyengine/pkg/notifications"
	"github.com/dmitrymomot/notifyengine/pkg/notifications/pgstore"
	"github.com/dmitrymomot/notifyengine/pkg/pg"
)

// Integration tests run against a real database when NOTIFY_TEST_PG_URL is set.
func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("NOTIFY_TEST_PG_URL")
	if url == "" {
		t.Skip("NOTIFY_TEST_PG_URL not set")
	}

	ctx := context.Background()
	cfg := pg.Config{
		ConnectionString: url,
		RetryAttempts:    1,
		MigrationsTable:  "notify_schema_migrations",
	}
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pg.Migrate(ctx, pool, cfg, pgstore.Migrations, pgstore.MigrationsDir, logger.Discard()))
	return pool
}

func newNotification(userID string, created time.Time) notifications.Notification {
	score := 0.8
	return notifications.Notification{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        notifications.TypeTaskDue,
		Title:       "Ship it",
		Body:        "Release train leaves at noon",
		Priority:    notifications.PriorityHigh,
		AIScore:     &score,
		AIReason:    "deadline",
		Action:      &notifications.Action{URL: "https://app.example.com/t/1", Label: "Open"},
		Entity:      &notifications.EntityRef{Type: "task", ID: "t1"},
		Metadata:    map[string]any{"source": "scheduler"},
		CreatedAt:   created,
		DeliveredAt: &created,
	}
}

func TestStorage_RoundTrip(t *testing.T) {
	pool := setupPool(t)
	store := pgstore.New(pool)
	ctx := context.Background()
	userID := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)

	n := newNotification(userID, now)
	require.NoError(t, store.Create(ctx, n))

	got, err := store.Get(ctx, userID, n.ID)
	require.NoError(t, err)
	assert.Equal(t, n.Title, got.Title)
	assert.Equal(t, n.Priority, got.Priority)
	assert.Equal(t, n.Action, got.Action)
	assert.Equal(t, n.Entity, got.Entity)
	assert.Equal(t, "scheduler", got.Metadata["source"])
	require.NotNil(t, got.AIScore)
	assert.InDelta(t, 0.8, *got.AIScore, 1e-9)
	assert.True(t, got.CreatedAt.Equal(now))

	_, err = store.Get(ctx, "someone_else", n.ID)
	assert.ErrorIs(t, err, notifications.ErrNotificationNotFound)
}

func TestStorage_UnreadLifecycle(t *testing.T) {
	pool := setupPool(t)
	store := pgstore.New(pool)
	ctx := context.Background()
	userID := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)

	first := newNotification(userID, now.Add(-2*time.Minute))
	second := newNotification(userID, now.Add(-time.Minute))
	deferred := newNotification(userID, now)
	deferred.DeliveredAt = nil
	until := now.Add(time.Hour)
	deferred.SnoozedUntil = &until
	for _, n := range []notifications.Notification{first, second, deferred} {
		require.NoError(t, store.Create(ctx, n))
	}

	list, err := store.ListUnread(ctx, userID, now, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	require.NoError(t, store.Snooze(ctx, userID, second.ID, now.Add(time.Hour)))
	count, err := store.CountUnread(ctx, userID, now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, store.MarkRead(ctx, userID, first.ID, now))
	assert.ErrorIs(t, store.MarkRead(ctx, userID, uuid.NewString(), now), notifications.ErrNotificationNotFound)

	later := now.Add(2 * time.Hour)
	marked, err := store.MarkAllRead(ctx, userID, later)
	require.NoError(t, err)
	assert.Equal(t, 1, marked, "only the expired snooze is still unread and delivered")
}

func TestStorage_MarkDeliveredOnce(t *testing.T) {
	pool := setupPool(t)
	store := pgstore.New(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	n := newNotification(uuid.NewString(), now)
	n.DeliveredAt = nil
	past := now.Add(-time.Minute)
	n.SnoozedUntil = &past
	require.NoError(t, store.Create(ctx, n))

	due, err := store.ListDue(ctx, now, 0)
	require.NoError(t, err)
	assert.Contains(t, ids(due), n.ID)

	won, err := store.MarkDelivered(ctx, n.ID, now)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = store.MarkDelivered(ctx, n.ID, now)
	require.NoError(t, err)
	assert.False(t, won)

	due, err = store.ListDue(ctx, now, 0)
	require.NoError(t, err)
	assert.NotContains(t, ids(due), n.ID)
}

func TestPreferenceStore(t *testing.T) {
	pool := setupPool(t)
	store := pgstore.NewPreferenceStore(pool)
	ctx := context.Background()
	userID := uuid.NewString()

	_, err := store.GetPreferences(ctx, userID)
	assert.ErrorIs(t, err, notifications.ErrPreferencesNotFound)

	start, end := notifications.MustTimeOfDay(22, 0), notifications.MustTimeOfDay(8, 0)
	saved, err := store.SetPreferences(ctx, userID, notifications.PreferencesPatch{
		Types:      map[notifications.Type]bool{notifications.TypeAIInsight: false},
		QuietHours: &notifications.QuietHours{Start: &start, End: &end},
		Email:      ptr("user@example.com"),
	})
	require.NoError(t, err)
	assert.False(t, saved.TypeEnabled(notifications.TypeAIInsight))

	got, err := store.GetPreferences(ctx, userID)
	require.NoError(t, err)
	assert.False(t, got.TypeEnabled(notifications.TypeAIInsight))
	assert.True(t, got.TypeEnabled(notifications.TypeTaskDue))
	assert.Equal(t, "22:00", got.QuietHours.Start.String())
	assert.Equal(t, "08:00", got.QuietHours.End.String())
	assert.Equal(t, "user@example.com", got.Email)
	assert.Equal(t, "09:00", got.Digest.DeliverAt.String())

	_, err = store.SetPreferences(ctx, userID, notifications.PreferencesPatch{QuietHours: &notifications.QuietHours{}})
	require.NoError(t, err)
	got, err = store.GetPreferences(ctx, userID)
	require.NoError(t, err)
	assert.False(t, got.QuietHours.Enabled())

	_, err = store.SetPreferences(ctx, userID, notifications.PreferencesPatch{Timezone: ptr("Not/AZone")})
	assert.True(t, errors.Is(err, notifications.ErrInvalidPreferences))
}

func TestStorage_CanceledContextIsTransient(t *testing.T) {
	pool := setupPool(t)
	store := pgstore.New(pool)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.CountUnread(ctx, uuid.NewString(), time.Now())
	require.Error(t, err)
	assert.True(t, notifications.IsTransient(err))
}

func ids(list []notifications.Notification) []string {
	out := make([]string, 0, len(list))
	for _, n := range list {
		out = append(out, n.ID)
	}
	return out
}

func ptr[T any](v T) *T { return &v }
