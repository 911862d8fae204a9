package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifyengine/pkg/logger"
)

// Redeliverer performs one redelivery pass. *Engine implements it.
type Redeliverer interface {
	Redeliver(ctx context.Context, now time.Time) (int, error)
}

const DefaultPollInterval = 30 * time.Second

// Poller periodically delivers notifications deferred by quiet hours.
// Several pollers may run against the same storage.
type Poller struct {
	target   Redeliverer
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithPollInterval sets the time between passes. Non-positive values are ignored.
func WithPollInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithPollerClock sets the time passed to each Redeliver call.
func WithPollerClock(now func() time.Time) PollerOption {
	return func(p *Poller) { p.now = now }
}

// WithPollerLogger sets the logger for failed passes.
func WithPollerLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) { p.logger = l }
}

// NewPoller creates a Poller that redelivers through target every DefaultPollInterval.
func NewPoller(target Redeliverer, opts ...PollerOption) *Poller {
	p := &Poller{
		target:   target,
		interval: DefaultPollInterval,
		now:      time.Now,
		logger:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start runs a pass immediately and then on every tick until ctx is done.
// It returns ctx.Err().
func (p *Poller) Start(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "redelivery poller shutting down")
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	start := p.now()
	n, err := p.target.Redeliver(ctx, start)
	if err != nil && ctx.Err() == nil {
		p.logger.ErrorContext(ctx, "redelivery pass failed",
			logger.Count(n),
			logger.Error(err),
		)
		return
	}
	if n > 0 {
		p.logger.InfoContext(ctx, "redelivered deferred notifications",
			logger.Count(n),
			logger.Duration(time.Since(start)),
		)
	}
}
