package notifications_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyengine/pkg/email"
	"github.com/dmitrymomot/notifyengine/pkg/notifications"
)

const userID = "user_1"

var lateEvening = time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC)

func quietNights() notifications.PreferencesPatch {
	return notifications.PreferencesPatch{
		QuietHours: &notifications.QuietHours{Start: tod(22, 0), End: tod(8, 0)},
	}
}

func TestEngine_QuietHoursDeferAndRedeliver(t *testing.T) {
	t.Parallel()

	classifier := &countingClassifier{result: notifications.Classification{Score: 0.4, Reason: "routine", Priority: notifications.PriorityMedium}}
	env := newTestEnv(t, lateEvening, notifications.WithClassifier(classifier))
	env.setPrefs(t, userID, quietNights())
	ctx := context.Background()

	outcome, err := env.engine.CreateNotification(ctx, notifications.Request{
		UserID: userID,
		Type:   notifications.TypeTaskAssigned,
		Title:  "New task: write report",
	})
	require.NoError(t, err)

	morning := time.Date(2024, 3, 11, 8, 0, 0, 0, time.UTC)
	require.Equal(t, notifications.OutcomeSnoozed, outcome.Kind)
	assert.True(t, outcome.Until.Equal(morning))
	require.NotNil(t, outcome.Notification)
	assert.Nil(t, outcome.Notification.DeliveredAt)
	assert.Equal(t, notifications.PriorityMedium, outcome.Notification.Priority)

	count, err := env.engine.CountUnread(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, count, "deferred notifications are not visible")

	n, err := env.engine.Redeliver(ctx, morning.Add(-time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = env.engine.Redeliver(ctx, morning)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	env.clock.Set(morning)
	unread, err := env.engine.ListUnread(ctx, userID)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	require.NotNil(t, unread[0].DeliveredAt)
	assert.True(t, unread[0].DeliveredAt.Equal(morning))

	n, err = env.engine.Redeliver(ctx, morning.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n, "already delivered")
}

func TestEngine_UrgentBypassesQuietHours(t *testing.T) {
	t.Parallel()

	classifier := &countingClassifier{result: notifications.Classification{Score: 0.97, Reason: "production outage", Priority: notifications.PriorityUrgent}}
	env := newTestEnv(t, lateEvening, notifications.WithClassifier(classifier))
	patch := quietNights()
	patch.Email = ptr("user@example.com")
	env.setPrefs(t, userID, patch)
	ctx := context.Background()

	outcome, err := env.engine.CreateNotification(ctx, notifications.Request{
		UserID: userID,
		Type:   notifications.TypeEmailImportant,
		Title:  "Production is down",
	})
	require.NoError(t, err)
	require.Equal(t, notifications.OutcomeDelivered, outcome.Kind)
	require.NotNil(t, outcome.Notification.DeliveredAt)
	assert.True(t, outcome.Notification.DeliveredAt.Equal(lateEvening))
	assert.Nil(t, outcome.Notification.SnoozedUntil)
	require.NotNil(t, outcome.Notification.AIScore)
	assert.InDelta(t, 0.97, *outcome.Notification.AIScore, 1e-9)
	assert.Equal(t, "production outage", outcome.Notification.AIReason)

	env.dispatcher.Wait()
	sent := env.sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "user@example.com", sent[0].To)
	assert.Equal(t, "[Urgent] Production is down", sent[0].Subject)

	count, err := env.engine.CountUnread(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEngine_DisabledTypeIsSuppressed(t *testing.T) {
	t.Parallel()

	classifier := &countingClassifier{result: notifications.FallbackClassification()}
	env := newTestEnv(t, lateEvening, notifications.WithClassifier(classifier))
	env.setPrefs(t, userID, notifications.PreferencesPatch{
		Types: map[notifications.Type]bool{notifications.TypeTaskDue: false},
	})
	ctx := context.Background()

	outcome, err := env.engine.NotifyTaskDue(ctx, userID, "org_1", notifications.Task{
		ID:    "task_1",
		Title: "Quarterly review",
		DueAt: lateEvening.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, notifications.OutcomeSuppressed, outcome.Kind)
	assert.Equal(t, notifications.SuppressedDisabled, outcome.Reason)
	assert.Nil(t, outcome.Notification)
	assert.Zero(t, classifier.calls.Load(), "classifier must not run for suppressed requests")

	unread, err := env.store.ListUnread(ctx, userID, lateEvening.Add(365*24*time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, unread)
	due, err := env.store.ListDue(ctx, lateEvening.Add(365*24*time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestEngine_UnknownTypeFailsOpen(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, lateEvening)
	env.setPrefs(t, userID, notifications.PreferencesPatch{
		Types: map[notifications.Type]bool{notifications.TypeTaskDue: false},
	})

	outcome, err := env.engine.CreateNotification(context.Background(), notifications.Request{
		UserID: userID,
		Type:   "team_kudos",
		Title:  "Your team said thanks",
	})
	require.NoError(t, err)
	assert.Equal(t, notifications.OutcomeDelivered, outcome.Kind)
}

func TestEngine_Prioritization(t *testing.T) {
	t.Parallel()

	t.Run("ai off uses hint without calling classifier", func(t *testing.T) {
		t.Parallel()
		classifier := &countingClassifier{result: notifications.FallbackClassification()}
		env := newTestEnv(t, lateEvening, notifications.WithClassifier(classifier))
		env.setPrefs(t, userID, notifications.PreferencesPatch{AIPrioritization: ptr(false)})

		outcome, err := env.engine.CreateNotification(context.Background(), notifications.Request{
			UserID:       userID,
			Type:         notifications.TypeTaskAssigned,
			Title:        "Review PR",
			PriorityHint: ptr(notifications.PriorityHigh),
		})
		require.NoError(t, err)
		assert.Equal(t, notifications.PriorityHigh, outcome.Notification.Priority)
		assert.Nil(t, outcome.Notification.AIScore)
		assert.Zero(t, classifier.calls.Load())
	})

	t.Run("ai off without hint uses catalog default", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, lateEvening)
		env.setPrefs(t, userID, notifications.PreferencesPatch{AIPrioritization: ptr(false)})

		outcome, err := env.engine.CreateNotification(context.Background(), notifications.Request{
			UserID: userID,
			Type:   notifications.TypeAIInsight,
			Title:  "Meetings doubled this week",
		})
		require.NoError(t, err)
		assert.Equal(t, notifications.PriorityLow, outcome.Notification.Priority)
	})

	t.Run("ai on without classifier falls back to catalog", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t, lateEvening)

		outcome, err := env.engine.CreateNotification(context.Background(), notifications.Request{
			UserID: userID,
			Type:   notifications.TypeUsageLimit,
			Title:  "Storage almost full",
		})
		require.NoError(t, err)
		assert.Equal(t, notifications.PriorityHigh, outcome.Notification.Priority)
	})
}

func TestEngine_InvalidRequest(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, lateEvening)
	_, err := env.engine.CreateNotification(context.Background(), notifications.Request{UserID: userID, Type: notifications.TypeTaskDue})
	assert.ErrorIs(t, err, notifications.ErrInvalidRequest)
}

func TestEngine_PersistFailure(t *testing.T) {
	t.Parallel()

	store := &failingStorage{MemoryStorage: notifications.NewMemoryStorage(), err: errBackendDown}
	resolver := notifications.NewResolver(notifications.NewMemoryPreferenceStore(), nil)
	publisher := &recordingPublisher{}
	engine := notifications.NewEngine(store, resolver, notifications.NewDispatcher(notifications.WithRealtimePublisher(publisher)))

	outcome, err := engine.CreateNotification(context.Background(), notifications.Request{
		UserID: userID,
		Type:   notifications.TypeTaskDue,
		Title:  "Pay invoice",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, notifications.ErrPersistFailed)
	assert.ErrorIs(t, err, errBackendDown)
	assert.Nil(t, outcome.Notification)
	assert.Zero(t, publisher.Count())
}

func TestEngine_PreferenceOutageUsesDefaults(t *testing.T) {
	t.Parallel()

	prefStore := &MockPreferenceStore{}
	prefStore.On("GetPreferences", context.Background(), userID).Return(nil, errBackendDown)

	store := notifications.NewMemoryStorage()
	engine := notifications.NewEngine(store, notifications.NewResolver(prefStore, nil), nil,
		notifications.WithClock(newClock(lateEvening).Now),
	)

	outcome, err := engine.CreateNotification(context.Background(), notifications.Request{
		UserID: userID,
		Type:   notifications.TypeCalendarReminder,
		Title:  "Standup in 10 minutes",
	})
	require.NoError(t, err)
	assert.Equal(t, notifications.OutcomeDelivered, outcome.Kind)
	prefStore.AssertExpectations(t)

	_, err = engine.Preferences(context.Background(), userID)
	assert.ErrorIs(t, err, notifications.ErrTransient)
}

func TestEngine_EmailFailureDoesNotAffectDelivery(t *testing.T) {
	t.Parallel()

	classifier := &countingClassifier{result: notifications.Classification{Score: 1, Reason: "breach", Priority: notifications.PriorityUrgent}}
	env := newTestEnv(t, lateEvening, notifications.WithClassifier(classifier))
	env.sender.result = email.Result{Err: errors.New("provider unavailable")}
	env.setPrefs(t, userID, notifications.PreferencesPatch{
		Email:    ptr("user@example.com"),
		Channels: map[notifications.Channel]bool{notifications.ChannelRealtime: true},
	})
	env.publisher.err = errors.New("redis down")
	ctx := context.Background()

	outcome, err := env.engine.CreateNotification(ctx, notifications.Request{
		UserID: userID,
		Type:   notifications.TypeEmailImportant,
		Title:  "Security alert",
	})
	require.NoError(t, err)
	assert.Equal(t, notifications.OutcomeDelivered, outcome.Kind)

	env.dispatcher.Wait()
	assert.Len(t, env.sender.Sent(), 1)
	assert.Equal(t, 1, env.publisher.Count())

	count, err := env.engine.CountUnread(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEngine_EmailOnlyForUrgent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		priority notifications.Priority
		patch    notifications.PreferencesPatch
		want     int
	}{
		{
			name:     "urgent with address",
			priority: notifications.PriorityUrgent,
			patch:    notifications.PreferencesPatch{Email: ptr("a@example.com")},
			want:     1,
		},
		{
			name:     "high priority",
			priority: notifications.PriorityHigh,
			patch:    notifications.PreferencesPatch{Email: ptr("a@example.com")},
			want:     0,
		},
		{
			name:     "email channel off",
			priority: notifications.PriorityUrgent,
			patch: notifications.PreferencesPatch{
				Email:    ptr("a@example.com"),
				Channels: map[notifications.Channel]bool{notifications.ChannelEmail: false},
			},
			want: 0,
		},
		{
			name:     "no address",
			priority: notifications.PriorityUrgent,
			patch:    notifications.PreferencesPatch{},
			want:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			classifier := &countingClassifier{result: notifications.Classification{Score: 0.5, Reason: "test", Priority: tt.priority}}
			env := newTestEnv(t, lateEvening, notifications.WithClassifier(classifier))
			env.setPrefs(t, userID, tt.patch)

			_, err := env.engine.CreateNotification(context.Background(), notifications.Request{
				UserID: userID,
				Type:   notifications.TypeTaskDue,
				Title:  "Deadline",
			})
			require.NoError(t, err)
			env.dispatcher.Wait()
			assert.Len(t, env.sender.Sent(), tt.want)
		})
	}
}

func TestEngine_RealtimeFollowsChannelToggle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, lateEvening)
	ctx := context.Background()
	req := notifications.Request{UserID: userID, Type: notifications.TypeTaskAssigned, Title: "Pick up ticket"}

	_, err := env.engine.CreateNotification(ctx, req)
	require.NoError(t, err)
	assert.Zero(t, env.publisher.Count(), "realtime is off by default")

	env.setPrefs(t, userID, notifications.PreferencesPatch{
		Channels: map[notifications.Channel]bool{notifications.ChannelRealtime: true},
	})
	_, err = env.engine.CreateNotification(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, env.publisher.Count())
}

func TestEngine_Snooze(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, lateEvening)
	ctx := context.Background()

	outcome, err := env.engine.CreateNotification(ctx, notifications.Request{UserID: userID, Type: notifications.TypeTaskDue, Title: "Renew domain"})
	require.NoError(t, err)
	id := outcome.Notification.ID

	until, err := env.engine.Snooze(ctx, id, userID, notifications.Snooze1Hour)
	require.NoError(t, err)
	assert.True(t, until.Equal(lateEvening.Add(time.Hour)))

	count, err := env.engine.CountUnread(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, count)

	env.clock.Set(lateEvening.Add(time.Hour))
	count, err = env.engine.CountUnread(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stored, err := env.store.Get(ctx, userID, id)
	require.NoError(t, err)
	require.NotNil(t, stored.DeliveredAt, "snoozing keeps the delivery timestamp")
	assert.True(t, stored.DeliveredAt.Equal(lateEvening))

	_, err = env.engine.Snooze(ctx, id, userID, "2h")
	assert.ErrorIs(t, err, notifications.ErrInvalidSnoozeDuration)

	_, err = env.engine.Snooze(ctx, id, "someone_else", notifications.Snooze1Day)
	assert.ErrorIs(t, err, notifications.ErrNotificationNotFound)
}

func TestEngine_DeliveryTimeTakenAfterClassification(t *testing.T) {
	t.Parallel()

	afterClassify := lateEvening.Add(4 * time.Second)
	var env *testEnv
	slow := notifications.ClassifierFunc(func(context.Context, notifications.Request) notifications.Classification {
		env.clock.Set(afterClassify)
		return notifications.FallbackClassification()
	})
	env = newTestEnv(t, lateEvening, notifications.WithClassifier(slow))
	ctx := context.Background()

	outcome, err := env.engine.CreateNotification(ctx, notifications.Request{UserID: userID, Type: notifications.TypeTaskAssigned, Title: "Pair on migration"})
	require.NoError(t, err)
	require.NotNil(t, outcome.Notification.DeliveredAt)
	assert.True(t, outcome.Notification.DeliveredAt.Equal(afterClassify))
	assert.True(t, outcome.Notification.CreatedAt.Equal(afterClassify))

	// A mark-all-read snapshot taken while the classifier was running must
	// not cover a row delivered after it.
	stored, err := env.store.Get(ctx, userID, outcome.Notification.ID)
	require.NoError(t, err)
	assert.True(t, stored.DeliveredAt.After(lateEvening))
}

func TestEngine_SnoozeComputedFromNow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		duration notifications.SnoozeDuration
		want     time.Duration
	}{
		{notifications.Snooze1Hour, time.Hour},
		{notifications.Snooze3Hours, 3 * time.Hour},
		{notifications.Snooze1Day, 24 * time.Hour},
		{notifications.Snooze3Days, 72 * time.Hour},
		{notifications.Snooze1Week, 7 * 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(string(tt.duration), func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t, lateEvening)
			ctx := context.Background()

			outcome, err := env.engine.CreateNotification(ctx, notifications.Request{UserID: userID, Type: notifications.TypeTaskDue, Title: "Review contract"})
			require.NoError(t, err)

			later := lateEvening.Add(5 * time.Hour)
			env.clock.Set(later)

			until, err := env.engine.Snooze(ctx, outcome.Notification.ID, userID, tt.duration)
			require.NoError(t, err)
			assert.True(t, until.Equal(later.Add(tt.want)), "got %s", until)

			stored, err := env.store.Get(ctx, userID, outcome.Notification.ID)
			require.NoError(t, err)
			require.NotNil(t, stored.SnoozedUntil)
			assert.True(t, stored.SnoozedUntil.Equal(until))
		})
	}
}

func TestEngine_MarkRead(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, lateEvening)
	ctx := context.Background()

	outcome, err := env.engine.CreateNotification(ctx, notifications.Request{UserID: userID, Type: notifications.TypeTaskDue, Title: "File taxes"})
	require.NoError(t, err)
	id := outcome.Notification.ID

	require.NoError(t, env.engine.MarkRead(ctx, id, userID))
	require.NoError(t, env.engine.MarkRead(ctx, id, userID), "idempotent")
	assert.ErrorIs(t, env.engine.MarkRead(ctx, id, "someone_else"), notifications.ErrNotificationNotFound)
	assert.ErrorIs(t, env.engine.MarkRead(ctx, "missing", userID), notifications.ErrNotificationNotFound)

	count, err := env.engine.CountUnread(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestEngine_ListUnreadLimit(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, lateEvening, notifications.WithUnreadLimit(3))
	ctx := context.Background()

	for i := range 5 {
		env.clock.Set(lateEvening.Add(time.Duration(i) * time.Minute))
		_, err := env.engine.CreateNotification(ctx, notifications.Request{
			UserID: userID,
			Type:   notifications.TypeTaskAssigned,
			Title:  fmt.Sprintf("Task %d", i),
		})
		require.NoError(t, err)
	}

	unread, err := env.engine.ListUnread(ctx, userID)
	require.NoError(t, err)
	require.Len(t, unread, 3)
	assert.Equal(t, "Task 4", unread[0].Title)
	assert.Equal(t, "Task 2", unread[2].Title)

	count, err := env.engine.CountUnread(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestEngine_MarkAllReadConcurrentWithCreates(t *testing.T) {
	t.Parallel()

	store := notifications.NewMemoryStorage()
	engine := notifications.NewEngine(store, notifications.NewResolver(notifications.NewMemoryPreferenceStore(), nil), nil)
	ctx := context.Background()

	const creates = 50
	ids := make(chan string, creates)

	var wg sync.WaitGroup
	for i := range creates {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := engine.CreateNotification(ctx, notifications.Request{
				UserID: userID,
				Type:   notifications.TypeTaskAssigned,
				Title:  fmt.Sprintf("Task %d", i),
			})
			if err == nil {
				ids <- outcome.Notification.ID
			}
		}()
	}
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = engine.MarkAllRead(ctx, userID)
		}()
	}
	wg.Wait()
	close(ids)

	read := 0
	total := 0
	for id := range ids {
		total++
		n, err := store.Get(ctx, userID, id)
		require.NoError(t, err)
		if n.Read {
			read++
		}
	}
	require.Equal(t, creates, total)

	count, err := engine.CountUnread(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, creates, read+count, "every notification is either read or counted as unread")

	marked, err := engine.MarkAllRead(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, count, marked)

	count, err = engine.CountUnread(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestEngine_ConcurrentRedeliverDispatchesOnce(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, lateEvening)
	patch := quietNights()
	patch.Channels = map[notifications.Channel]bool{notifications.ChannelRealtime: true}
	env.setPrefs(t, userID, patch)
	ctx := context.Background()

	const pending = 20
	for i := range pending {
		outcome, err := env.engine.CreateNotification(ctx, notifications.Request{
			UserID: userID,
			Type:   notifications.TypeTaskAssigned,
			Title:  fmt.Sprintf("Task %d", i),
		})
		require.NoError(t, err)
		require.Equal(t, notifications.OutcomeSnoozed, outcome.Kind)
	}
	require.Zero(t, env.publisher.Count())

	morning := time.Date(2024, 3, 11, 8, 0, 0, 0, time.UTC)
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := env.engine.Redeliver(ctx, morning)
			assert.NoError(t, err)
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, pending, total)
	assert.Equal(t, pending, env.publisher.Count())
}

func TestEngine_QuietHoursUseUserTimezone(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, lateEvening)
	patch := quietNights()
	patch.Timezone = ptr("America/New_York")
	env.setPrefs(t, userID, patch)

	// 23:00 UTC is 19:00 in New York (EDT on 2024-03-10), outside quiet hours.
	outcome, err := env.engine.CreateNotification(context.Background(), notifications.Request{
		UserID: userID,
		Type:   notifications.TypeTaskAssigned,
		Title:  "Sync",
	})
	require.NoError(t, err)
	assert.Equal(t, notifications.OutcomeDelivered, outcome.Kind)

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	env.clock.Set(time.Date(2024, 3, 11, 3, 0, 0, 0, time.UTC)) // 23:00 in New York

	outcome, err = env.engine.CreateNotification(context.Background(), notifications.Request{
		UserID: userID,
		Type:   notifications.TypeTaskAssigned,
		Title:  "Sync again",
	})
	require.NoError(t, err)
	require.Equal(t, notifications.OutcomeSnoozed, outcome.Kind)
	assert.True(t, outcome.Until.Equal(time.Date(2024, 3, 11, 8, 0, 0, 0, ny)))
}
