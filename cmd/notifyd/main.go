// Command notifyd runs the notification engine: the HTTP API used by
// producers and the inbox UI, and the poller that delivers notifications
// deferred by quiet hours.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/notifyengine/pkg/config"
	"github.com/dmitrymomot/notifyengine/pkg/email"
	"github.com/dmitrymomot/notifyengine/pkg/httpserver"
	"github.com/dmitrymomot/notifyengine/pkg/llm"
	"github.com/dmitrymomot/notifyengine/pkg/logger"
	"github.com/dmitrymomot/notifyengine/pkg/notifications"
	"github.com/dmitrymomot/notifyengine/pkg/notifications/api"
	"github.com/dmitrymomot/notifyengine/pkg/notifications/pgstore"
	"github.com/dmitrymomot/notifyengine/pkg/notifications/redisstore"
	"github.com/dmitrymomot/notifyengine/pkg/pg"
	"github.com/dmitrymomot/notifyengine/pkg/redis"
)

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.New(
		logger.WithEnvironment(cfg.Env, cfg.ServiceName),
		logger.WithContextExtractors(api.RequestIDExtractor()),
	)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, cfg, log)
	stop()
	if err != nil {
		log.Error("notifyd stopped with error", logger.Error(err))
		os.Exit(1)
	}
	log.Info("notifyd stopped")
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, cfg.PG, pgstore.Migrations, pgstore.MigrationsDir, log); err != nil {
		return err
	}

	var rdb *goredis.Client
	if cfg.needsRedis() {
		if rdb, err = redis.Connect(ctx, cfg.Redis); err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
	}

	engine, dispatcher, err := buildEngine(cfg, pool, rdb, log)
	if err != nil {
		return err
	}
	defer dispatcher.Wait()

	checks := []func(context.Context) error{pg.Healthcheck(pool)}
	if rdb != nil {
		checks = append(checks, redis.Healthcheck(rdb))
	}
	router := api.Router(engine,
		api.WithLogger(log.With(logger.Component("api"))),
		api.WithHealthCheck(httpserver.HealthCheckHandler(log, checks...)),
	)

	poller := notifications.NewPoller(engine,
		notifications.WithPollInterval(cfg.Engine.PollInterval),
		notifications.WithPollerLogger(log.With(logger.Component("poller"))),
	)
	server := httpserver.New(cfg.HTTP, httpserver.WithLogger(log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := poller.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return server.Run(gctx, router)
	})
	return g.Wait()
}

func buildEngine(cfg appConfig, pool pgstore.DB, rdb *goredis.Client, log *slog.Logger) (*notifications.Engine, *notifications.Dispatcher, error) {
	var cache notifications.PreferenceCache
	switch cfg.Engine.PreferenceCache {
	case cacheRedis:
		cache = redisstore.NewPreferenceCache(rdb, cfg.Engine.PreferenceCacheTTL,
			redisstore.WithCacheLogger(log.With(logger.Component("preference_cache"))),
		)
	case cacheMemory, "":
		cache = notifications.NewTTLCache(cfg.Engine.PreferenceCacheCap, cfg.Engine.PreferenceCacheTTL)
	default:
		return nil, nil, fmt.Errorf("unknown PREFERENCE_CACHE %q", cfg.Engine.PreferenceCache)
	}
	resolver := notifications.NewResolver(pgstore.NewPreferenceStore(pool), cache,
		notifications.WithResolverLogger(log),
	)

	sender, err := email.New(cfg.Email)
	if err != nil {
		return nil, nil, err
	}
	dispatcherOpts := []notifications.DispatcherOption{
		notifications.WithEmailSender(sender),
		notifications.WithEmailTimeout(cfg.Engine.EmailTimeout),
		notifications.WithDispatcherLogger(log.With(logger.Component("dispatcher"))),
	}
	if cfg.Engine.RealtimeEnabled {
		dispatcherOpts = append(dispatcherOpts,
			notifications.WithRealtimePublisher(redisstore.NewPublisher(rdb)),
			notifications.WithRealtimeTimeout(cfg.Engine.RealtimeTimeout),
		)
	}
	dispatcher := notifications.NewDispatcher(dispatcherOpts...)

	catalog := notifications.DefaultCatalog()
	if cfg.Engine.CatalogFile != "" {
		if catalog, err = loadCatalog(cfg.Engine.CatalogFile); err != nil {
			return nil, nil, err
		}
	}

	classifier, err := buildClassifier(cfg, catalog, log)
	if err != nil {
		return nil, nil, err
	}

	engine := notifications.NewEngine(pgstore.New(pool), resolver, dispatcher,
		notifications.WithCatalog(catalog),
		notifications.WithClassifier(classifier),
		notifications.WithUnreadLimit(cfg.Engine.UnreadLimit),
		notifications.WithRedeliverBatch(cfg.Engine.RedeliverBatch),
		notifications.WithLogger(log.With(logger.Component("engine"))),
	)
	return engine, dispatcher, nil
}

// buildClassifier uses the LLM when a provider is configured and the
// keyword rules otherwise.
func buildClassifier(cfg appConfig, catalog *notifications.TypeCatalog, log *slog.Logger) (notifications.Classifier, error) {
	completer, err := llm.New(cfg.LLM)
	switch {
	case errors.Is(err, llm.ErrDisabled):
		log.Info("llm provider disabled, using rule-based prioritization")
		return notifications.NewRuleClassifier(catalog), nil
	case err != nil:
		return nil, err
	}
	return notifications.NewLLMClassifier(completer,
		notifications.WithClassifierTimeout(cfg.Engine.ClassifierTimeout),
		notifications.WithClassifierLogger(log.With(logger.Component("classifier"))),
	), nil
}

func loadCatalog(path string) (*notifications.TypeCatalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open notification catalog: %w", err)
	}
	defer f.Close()
	return notifications.LoadCatalog(f)
}
