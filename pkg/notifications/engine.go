package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifyengine/pkg/logger"
)

const (
	DefaultUnreadLimit    = 50
	DefaultRedeliverBatch = 500
)

// Engine turns producer requests into persisted notifications, decides when
// they are delivered and exposes the inbox operations.
type Engine struct {
	store          Storage
	resolver       *Resolver
	dispatcher     *Dispatcher
	classifier     Classifier
	catalog        *TypeCatalog
	now            func() time.Time
	newID          func() string
	logger         *slog.Logger
	unreadLimit    int
	redeliverBatch int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClassifier sets the classifier used when a user has AI prioritization
// on. Without one, requests are prioritized from the hint or the catalog.
func WithClassifier(c Classifier) EngineOption {
	return func(e *Engine) { e.classifier = c }
}

// WithCatalog replaces the built-in type catalog used for gating, default
// priorities and default preferences. A nil catalog is ignored.
func WithCatalog(c *TypeCatalog) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.catalog = c
		}
	}
}

// WithClock sets the time source. Tests use it to pin "now".
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator sets how notification ids are generated. Defaults to UUIDv4.
func WithIDGenerator(fn func() string) EngineOption {
	return func(e *Engine) { e.newID = fn }
}

// WithLogger sets the logger for engine decisions and persistence failures.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithUnreadLimit caps ListUnread. Non-positive values are ignored.
func WithUnreadLimit(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.unreadLimit = n
		}
	}
}

// WithRedeliverBatch caps how many due notifications one Redeliver pass handles.
func WithRedeliverBatch(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.redeliverBatch = n
		}
	}
}

// NewEngine creates an Engine. A nil dispatcher means in-app delivery only.
func NewEngine(store Storage, resolver *Resolver, dispatcher *Dispatcher, opts ...EngineOption) *Engine {
	if dispatcher == nil {
		dispatcher = NewDispatcher()
	}
	e := &Engine{
		store:          store,
		resolver:       resolver,
		dispatcher:     dispatcher,
		catalog:        DefaultCatalog(),
		now:            time.Now,
		newID:          uuid.NewString,
		logger:         logger.Discard(),
		unreadLimit:    DefaultUnreadLimit,
		redeliverBatch: DefaultRedeliverBatch,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateNotification gates, prioritizes, persists and, unless quiet hours
// defer it, delivers a notification. The only error besides an invalid
// request is a persistence failure; preference and classifier problems
// degrade to defaults.
func (e *Engine) CreateNotification(ctx context.Context, req Request) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}

	prefs := e.preferences(ctx, req.UserID)

	if !e.typeEnabled(prefs, req.Type) {
		e.logger.DebugContext(ctx, "notification suppressed",
			logger.UserID(req.UserID),
			logger.NotificationType(string(req.Type)),
			logger.Outcome(string(OutcomeSuppressed)),
		)
		return Suppressed(SuppressedDisabled), nil
	}

	prio := e.prioritize(ctx, req, prefs)

	// Taken after classification so delivered_at reflects the persist, not
	// the start of a slow classifier call.
	now := e.now()
	n := newNotification(e.newID(), req, prio, now)

	if q := prefs.QuietHours; q.Enabled() && n.Priority != PriorityUrgent {
		local := now.In(prefs.Location())
		if IsQuiet(q.Start, q.End, local) {
			until := NextWindowEnd(*q.End, local)
			n.SnoozedUntil = &until
			if err := e.persist(ctx, n); err != nil {
				return Outcome{}, err
			}
			e.logger.DebugContext(ctx, "notification deferred by quiet hours",
				logger.NotificationID(n.ID),
				logger.UserID(n.UserID),
				logger.Outcome(string(OutcomeSnoozed)),
			)
			return Snoozed(n, until), nil
		}
	}

	n.DeliveredAt = &now
	if err := e.persist(ctx, n); err != nil {
		return Outcome{}, err
	}
	e.dispatcher.Dispatch(ctx, n, prefs)

	e.logger.DebugContext(ctx, "notification delivered",
		logger.NotificationID(n.ID),
		logger.UserID(n.UserID),
		logger.Priority(string(n.Priority)),
		logger.Outcome(string(OutcomeDelivered)),
	)
	return Delivered(n), nil
}

// Redeliver delivers every deferred notification whose snooze has expired at
// now. Each one is claimed with a compare-and-set so concurrent pollers never
// dispatch the same notification twice. It returns how many were delivered.
func (e *Engine) Redeliver(ctx context.Context, now time.Time) (int, error) {
	due, err := e.store.ListDue(ctx, now, e.redeliverBatch)
	if err != nil {
		return 0, err
	}

	var errs []error
	delivered := 0
	for _, n := range due {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		won, err := e.store.MarkDelivered(ctx, n.ID, now)
		if err != nil {
			e.logger.ErrorContext(ctx, "failed to mark notification delivered",
				logger.NotificationID(n.ID),
				logger.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		if !won {
			continue
		}

		at := now
		n.DeliveredAt = &at
		e.dispatcher.Dispatch(ctx, n, e.preferences(ctx, n.UserID))
		delivered++
	}
	return delivered, errors.Join(errs...)
}

// ListUnread returns up to the configured limit of the user's unread
// notifications, newest first.
func (e *Engine) ListUnread(ctx context.Context, userID string) ([]Notification, error) {
	return e.store.ListUnread(ctx, userID, e.now(), e.unreadLimit)
}

// CountUnread counts what ListUnread would return without the limit.
func (e *Engine) CountUnread(ctx context.Context, userID string) (int, error) {
	return e.store.CountUnread(ctx, userID, e.now())
}

// MarkRead marks one notification read. It returns ErrNotificationNotFound
// if the notification doesn't exist or belongs to another user.
func (e *Engine) MarkRead(ctx context.Context, id, userID string) error {
	return e.store.MarkRead(ctx, userID, id, e.now())
}

// MarkAllRead marks everything unread at the moment of the call as read.
// Notifications delivered concurrently either make it into that snapshot or
// stay unread.
func (e *Engine) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return e.store.MarkAllRead(ctx, userID, e.now())
}

// Snooze hides a notification until now plus d and returns that instant.
func (e *Engine) Snooze(ctx context.Context, id, userID string, d SnoozeDuration) (time.Time, error) {
	length, err := d.Duration()
	if err != nil {
		return time.Time{}, err
	}
	until := e.now().Add(length)
	if err := e.store.Snooze(ctx, userID, id, until); err != nil {
		return time.Time{}, err
	}
	return until, nil
}

// Preferences returns the user's stored preferences, or the defaults when
// there are none yet.
func (e *Engine) Preferences(ctx context.Context, userID string) (*Preferences, error) {
	p, err := e.resolver.Resolve(ctx, userID)
	if errors.Is(err, ErrPreferencesNotFound) {
		return e.catalog.DefaultPreferences(userID), nil
	}
	return p, err
}

// UpdatePreferences applies patch and returns the stored result. The next
// notification for the user sees the change.
func (e *Engine) UpdatePreferences(ctx context.Context, userID string, patch PreferencesPatch) (*Preferences, error) {
	return e.resolver.Update(ctx, userID, patch)
}

// preferences never fails: missing rows and store outages both fall back to
// the defaults so a notification is never lost to a preference lookup.
func (e *Engine) preferences(ctx context.Context, userID string) *Preferences {
	p, err := e.resolver.Resolve(ctx, userID)
	if err == nil {
		return p
	}
	if !errors.Is(err, ErrPreferencesNotFound) {
		e.logger.WarnContext(ctx, "preference lookup failed, using defaults",
			logger.UserID(userID),
			logger.Error(err),
		)
	}
	return e.catalog.DefaultPreferences(userID)
}

// typeEnabled fails open for types the catalog doesn't know.
func (e *Engine) typeEnabled(prefs *Preferences, t Type) bool {
	entry, ok := e.catalog.Lookup(t)
	if !ok {
		return true
	}
	return prefs.TypeEnabled(entry.Toggle)
}

type prioritization struct {
	priority Priority
	score    *float64
	reason   string
}

func (e *Engine) prioritize(ctx context.Context, req Request, prefs *Preferences) prioritization {
	if prefs.AIPrioritization && e.classifier != nil {
		cls := e.classifier.Classify(ctx, req)
		score := cls.Score
		return prioritization{priority: ParsePriority(string(cls.Priority)), score: &score, reason: cls.Reason}
	}
	if req.PriorityHint != nil && req.PriorityHint.Valid() {
		return prioritization{priority: *req.PriorityHint}
	}
	return prioritization{priority: e.catalog.DefaultPriority(req.Type)}
}

func (e *Engine) persist(ctx context.Context, n Notification) error {
	if err := e.store.Create(ctx, n); err != nil {
		e.logger.ErrorContext(ctx, "failed to persist notification",
			logger.NotificationID(n.ID),
			logger.UserID(n.UserID),
			logger.Error(err),
		)
		return errors.Join(ErrPersistFailed, err)
	}
	return nil
}
