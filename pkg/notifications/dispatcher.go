package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/notifyengine/pkg/email"
	"github.com/dmitrymomot/notifyengine/pkg/logger"
)

// RealtimePublisher pushes a delivered notification to live clients.
type RealtimePublisher interface {
	Publish(ctx context.Context, n Notification) error
}

const (
	DefaultEmailTimeout    = 10 * time.Second
	DefaultRealtimeTimeout = 2 * time.Second
)

// Dispatcher fans a delivered notification out to the enabled channels.
// In-app delivery is implicit: the persisted row is the in-app notification.
// A failing channel is logged and never affects the others.
type Dispatcher struct {
	email           email.Sender
	realtime        RealtimePublisher
	emailTimeout    time.Duration
	realtimeTimeout time.Duration
	logger          *slog.Logger
	wg              sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithEmailSender enables the email channel.
func WithEmailSender(s email.Sender) DispatcherOption {
	return func(d *Dispatcher) { d.email = s }
}

// WithRealtimePublisher enables the realtime channel.
func WithRealtimePublisher(p RealtimePublisher) DispatcherOption {
	return func(d *Dispatcher) { d.realtime = p }
}

// WithEmailTimeout bounds each background email send. Non-positive values are ignored.
func WithEmailTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if t > 0 {
			d.emailTimeout = t
		}
	}
}

// WithRealtimeTimeout bounds each realtime publish. Non-positive values are ignored.
func WithRealtimeTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if t > 0 {
			d.realtimeTimeout = t
		}
	}
}

// WithDispatcherLogger sets the logger for channel failures.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher creates a Dispatcher. Without options only in-app delivery
// happens, which needs no work beyond the persisted row.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		emailTimeout:    DefaultEmailTimeout,
		realtimeTimeout: DefaultRealtimeTimeout,
		logger:          logger.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends n over every channel prefs allow. Email is only sent for
// urgent notifications and runs in the background, so Dispatch never waits
// on the email provider.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification, prefs *Preferences) {
	if d.shouldEmail(n, prefs) {
		d.sendEmail(ctx, n, prefs.Email)
	}

	if d.realtime != nil && prefs.ChannelEnabled(ChannelRealtime) {
		d.publish(ctx, n)
	}
}

// Wait blocks until all background email sends have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) shouldEmail(n Notification, prefs *Preferences) bool {
	if d.email == nil || n.Priority != PriorityUrgent || !prefs.ChannelEnabled(ChannelEmail) {
		return false
	}
	if prefs.Email == "" {
		d.logger.DebugContext(context.Background(), "skipping email, no recipient address",
			logger.NotificationID(n.ID),
			logger.UserID(n.UserID),
		)
		return false
	}
	return true
}

func (d *Dispatcher) sendEmail(ctx context.Context, n Notification, to string) {
	// Detach from the caller so the send outlives the request that triggered it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.emailTimeout)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()

		subject, html, err := renderEmail(n)
		if err != nil {
			d.logger.ErrorContext(ctx, "failed to render notification email",
				logger.NotificationID(n.ID),
				logger.Error(err),
			)
			return
		}

		res := d.email.Send(ctx, to, subject, html)
		if !res.Success {
			d.logger.ErrorContext(ctx, "failed to send notification email",
				logger.NotificationID(n.ID),
				logger.UserID(n.UserID),
				logger.Channel(string(ChannelEmail)),
				logger.Error(res.Err),
			)
			return
		}
		d.logger.DebugContext(ctx, "notification email sent",
			logger.NotificationID(n.ID),
			logger.UserID(n.UserID),
		)
	}()
}

func (d *Dispatcher) publish(ctx context.Context, n Notification) {
	ctx, cancel := context.WithTimeout(ctx, d.realtimeTimeout)
	defer cancel()

	if err := d.realtime.Publish(ctx, n); err != nil {
		d.logger.WarnContext(ctx, "failed to publish realtime notification",
			logger.NotificationID(n.ID),
			logger.UserID(n.UserID),
			logger.Channel(string(ChannelRealtime)),
			logger.Error(err),
		)
	}
}
