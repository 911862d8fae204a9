package notifications_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifyengine/pkg/email"
	"github.com/dmitrymomot/notifyengine/pkg/notifications"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type countingClassifier struct {
	calls  atomic.Int32
	result notifications.Classification
}

func (c *countingClassifier) Classify(context.Context, notifications.Request) notifications.Classification {
	c.calls.Add(1)
	return c.result
}

type sentEmail struct {
	To, Subject, HTML string
}

type recordingSender struct {
	mu     sync.Mutex
	sent   []sentEmail
	result email.Result
}

func (s *recordingSender) Send(_ context.Context, to, subject, html string) email.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentEmail{To: to, Subject: subject, HTML: html})
	return s.result
}

func (s *recordingSender) Sent() []sentEmail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentEmail(nil), s.sent...)
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []notifications.Notification
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, n notifications.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, n)
	return p.err
}

func (p *recordingPublisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

// failingStorage fails every Create.
type failingStorage struct {
	*notifications.MemoryStorage
	err error
}

func (s *failingStorage) Create(context.Context, notifications.Notification) error {
	return s.err
}

type MockPreferenceStore struct {
	mock.Mock
}

func (m *MockPreferenceStore) GetPreferences(ctx context.Context, userID string) (*notifications.Preferences, error) {
	args := m.Called(ctx, userID)
	if p := args.Get(0); p != nil {
		return p.(*notifications.Preferences), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPreferenceStore) SetPreferences(ctx context.Context, userID string, patch notifications.PreferencesPatch) (*notifications.Preferences, error) {
	args := m.Called(ctx, userID, patch)
	if p := args.Get(0); p != nil {
		return p.(*notifications.Preferences), args.Error(1)
	}
	return nil, args.Error(1)
}

var errBackendDown = errors.New("connection refused")

type testEnv struct {
	engine     *notifications.Engine
	store      *notifications.MemoryStorage
	prefs      *notifications.MemoryPreferenceStore
	dispatcher *notifications.Dispatcher
	sender     *recordingSender
	publisher  *recordingPublisher
	clock      *fakeClock
}

func newTestEnv(t *testing.T, now time.Time, opts ...notifications.EngineOption) *testEnv {
	t.Helper()

	env := &testEnv{
		store:     notifications.NewMemoryStorage(),
		prefs:     notifications.NewMemoryPreferenceStore(),
		sender:    &recordingSender{result: email.Result{Success: true}},
		publisher: &recordingPublisher{},
		clock:     newClock(now),
	}
	env.dispatcher = notifications.NewDispatcher(
		notifications.WithEmailSender(env.sender),
		notifications.WithRealtimePublisher(env.publisher),
	)
	resolver := notifications.NewResolver(env.prefs, notifications.NewTTLCache(0, time.Minute))
	opts = append([]notifications.EngineOption{notifications.WithClock(env.clock.Now)}, opts...)
	env.engine = notifications.NewEngine(env.store, resolver, env.dispatcher, opts...)
	return env
}

func (env *testEnv) setPrefs(t *testing.T, userID string, patch notifications.PreferencesPatch) {
	t.Helper()
	_, err := env.engine.UpdatePreferences(context.Background(), userID, patch)
	require.NoError(t, err)
}

func tod(h, m int) *notifications.TimeOfDay {
	v := notifications.MustTimeOfDay(h, m)
	return &v
}

func ptr[T any](v T) *T { return &v }
