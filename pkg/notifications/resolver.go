package notifications

import (
	"context"
	"errors"
	"hash/maphash"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/notifyengine/pkg/logger"
)

const resolverStripes = 64

// Resolver loads preferences through a cache and keeps the cache coherent
// with writes.
type Resolver struct {
	store  PreferenceStore
	cache  PreferenceCache
	logger *slog.Logger

	seed    maphash.Seed
	stripes [resolverStripes]generation
}

// generation counts the updates of every user hashed to the stripe. A read
// only fills the cache if no update happened while it was in flight.
type generation struct {
	mu sync.Mutex
	n  uint64
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverLogger sets the logger for cache failures.
func WithResolverLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a Resolver. A nil cache disables caching.
func NewResolver(store PreferenceStore, cache PreferenceCache, opts ...ResolverOption) *Resolver {
	if cache == nil {
		cache = NoOpCache{}
	}
	r := &Resolver{
		store:  store,
		cache:  cache,
		logger: logger.Discard(),
		seed:   maphash.MakeSeed(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the user's preferences. It returns ErrPreferencesNotFound
// when the user has none and a TransientError when the store failed.
func (r *Resolver) Resolve(ctx context.Context, userID string) (*Preferences, error) {
	if p, ok := r.cache.Get(ctx, userID); ok {
		return p, nil
	}

	g := r.stripe(userID)
	g.mu.Lock()
	started := g.n
	g.mu.Unlock()

	p, err := r.store.GetPreferences(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrPreferencesNotFound) {
			return nil, ErrPreferencesNotFound
		}
		return nil, Transient("get preferences", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.n != started {
		// An update landed during the read; p may predate it.
		return p, nil
	}
	if err := r.cache.Set(ctx, userID, p); err != nil {
		r.logger.WarnContext(ctx, "failed to cache preferences",
			logger.UserID(userID),
			logger.Error(err),
		)
	}
	return p, nil
}

// Update writes patch through the store and invalidates the cached entry
// before returning, so the next Resolve observes the write.
func (r *Resolver) Update(ctx context.Context, userID string, patch PreferencesPatch) (*Preferences, error) {
	p, err := r.store.SetPreferences(ctx, userID, patch)
	if err != nil {
		if errors.Is(err, ErrInvalidPreferences) {
			return nil, err
		}
		return nil, Transient("set preferences", err)
	}

	g := r.stripe(userID)
	g.mu.Lock()
	g.n++
	err = r.cache.Invalidate(ctx, userID)
	g.mu.Unlock()
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to invalidate cached preferences",
			logger.UserID(userID),
			logger.Error(err),
		)
		return p, errors.Join(ErrCacheInvalidation, err)
	}
	return p, nil
}

func (r *Resolver) stripe(userID string) *generation {
	return &r.stripes[maphash.String(r.seed, userID)%resolverStripes]
}
