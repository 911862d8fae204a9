package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/notifyengine/pkg/logger"
	"github.com/dmitrymomot/notifyengine/pkg/notifications"
)

// Option configures the router.
type Option func(*options)

type options struct {
	logger *slog.Logger
	health http.Handler
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHealthCheck mounts h at GET /health.
func WithHealthCheck(h http.Handler) Option {
	return func(o *options) { o.health = h }
}

// Router exposes the engine over HTTP.
//
//	POST  /notifications
//	GET   /users/{userID}/notifications/unread
//	GET   /users/{userID}/notifications/unread/count
//	POST  /users/{userID}/notifications/read-all
//	POST  /users/{userID}/notifications/{id}/read
//	POST  /users/{userID}/notifications/{id}/snooze
//	GET   /users/{userID}/preferences
//	PATCH /users/{userID}/preferences
func Router(engine *notifications.Engine, opts ...Option) chi.Router {
	o := &options{logger: logger.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	h := &handlers{engine: engine, logger: o.logger}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(AccessLog(o.logger))
	r.Use(middleware.Recoverer)

	if o.health != nil {
		r.Method(http.MethodGet, "/health", o.health)
	}

	r.Post("/notifications", h.create)

	r.Route("/users/{userID}", func(u chi.Router) {
		u.Route("/notifications", func(n chi.Router) {
			n.Get("/unread", h.listUnread)
			n.Get("/unread/count", h.countUnread)
			n.Post("/read-all", h.markAllRead)
			n.Post("/{id}/read", h.markRead)
			n.Post("/{id}/snooze", h.snooze)
		})
		u.Get("/preferences", h.getPreferences)
		u.Patch("/preferences", h.updatePreferences)
	})

	return r
}
