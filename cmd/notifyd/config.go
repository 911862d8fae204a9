package main

import (
	"time"

	"github.com/dmitrymomot/notifyengine/pkg/email"
	"github.com/dmitrymomot/notifyengine/pkg/httpserver"
	"github.com/dmitrymomot/notifyengine/pkg/llm"
	"github.com/dmitrymomot/notifyengine/pkg/pg"
	"github.com/dmitrymomot/notifyengine/pkg/redis"
)

const (
	cacheMemory = "memory"
	cacheRedis  = "redis"
)

type engineConfig struct {
	ClassifierTimeout  time.Duration `env:"CLASSIFIER_TIMEOUT" envDefault:"5s"`
	EmailTimeout       time.Duration `env:"EMAIL_TIMEOUT" envDefault:"10s"`
	PollInterval       time.Duration `env:"REDELIVERY_INTERVAL" envDefault:"30s"`
	RedeliverBatch     int           `env:"REDELIVERY_BATCH" envDefault:"500"`
	UnreadLimit        int           `env:"UNREAD_LIMIT" envDefault:"50"`
	PreferenceCache    string        `env:"PREFERENCE_CACHE" envDefault:"memory"` // memory or redis
	PreferenceCacheTTL time.Duration `env:"PREFERENCE_CACHE_TTL" envDefault:"1m"`
	PreferenceCacheCap int           `env:"PREFERENCE_CACHE_SIZE" envDefault:"10000"`
	RealtimeEnabled    bool          `env:"REALTIME_ENABLED" envDefault:"false"`
	RealtimeTimeout    time.Duration `env:"REALTIME_TIMEOUT" envDefault:"2s"`
	CatalogFile        string        `env:"NOTIFICATION_CATALOG_FILE"`
}

type appConfig struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"notifyd"`

	Engine engineConfig
	HTTP   httpserver.Config
	PG     pg.Config
	Redis  redis.Config
	Email  email.Config
	LLM    llm.Config
}

// needsRedis reports whether any component is configured to use Redis.
func (c appConfig) needsRedis() bool {
	return c.Engine.PreferenceCache == cacheRedis || c.Engine.RealtimeEnabled
}
