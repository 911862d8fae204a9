// Package redisstore provides Redis-backed pieces for a multi-instance
// deployment: a shared preference cache and a pub/sub realtime publisher.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/notifyengine/pkg/logger"
	"github.com/dmitrymomot/notifyengine/pkg/notifications"
)

const (
	DefaultKeyPrefix     = "notify:prefs:"
	DefaultChannelPrefix = "notifications:"
)

// PreferenceCache is a notifications.PreferenceCache shared by every
// instance through Redis. Entries expire after the configured TTL.
type PreferenceCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

type CacheOption func(*PreferenceCache)

func WithKeyPrefix(prefix string) CacheOption {
	return func(c *PreferenceCache) { c.prefix = prefix }
}

func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(c *PreferenceCache) { c.logger = l }
}

func NewPreferenceCache(client redis.UniversalClient, ttl time.Duration, opts ...CacheOption) *PreferenceCache {
	if ttl <= 0 {
		ttl = notifications.DefaultCacheTTL
	}
	c := &PreferenceCache{
		client: client,
		prefix: DefaultKeyPrefix,
		ttl:    ttl,
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get treats every Redis failure as a miss; the resolver then reads the store.
func (c *PreferenceCache) Get(ctx context.Context, userID string) (*notifications.Preferences, bool) {
	data, err := c.client.Get(ctx, c.prefix+userID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "preference cache read failed", logger.UserID(userID), logger.Error(err))
		}
		return nil, false
	}

	var p notifications.Preferences
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.WarnContext(ctx, "corrupt cached preferences", logger.UserID(userID), logger.Error(err))
		return nil, false
	}
	return &p, true
}

func (c *PreferenceCache) Set(ctx context.Context, userID string, prefs *notifications.Preferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+userID, data, c.ttl).Err()
}

func (c *PreferenceCache) Invalidate(ctx context.Context, userID string) error {
	return c.client.Del(ctx, c.prefix+userID).Err()
}

// Publisher is a notifications.RealtimePublisher that publishes each
// delivered notification as JSON on the "notifications:<user_id>" channel.
type Publisher struct {
	client redis.UniversalClient
	prefix string
}

func NewPublisher(client redis.UniversalClient) *Publisher {
	return &Publisher{client: client, prefix: DefaultChannelPrefix}
}

// Channel returns the pub/sub channel for userID.
func (p *Publisher) Channel(userID string) string {
	return p.prefix + userID
}

func (p *Publisher) Publish(ctx context.Context, n notifications.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.Channel(n.UserID), data).Err()
}
