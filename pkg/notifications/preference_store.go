package notifications

import (
	"context"
	"sync"
	"time"
)

// PreferenceStore persists per-user preferences.
type PreferenceStore interface {
	// GetPreferences returns ErrPreferencesNotFound when the user has no row.
	GetPreferences(ctx context.Context, userID string) (*Preferences, error)
	// SetPreferences applies patch on top of the stored row, or on top of
	// DefaultPreferences when there is none, and returns the result.
	SetPreferences(ctx context.Context, userID string, patch PreferencesPatch) (*Preferences, error)
}

// MemoryPreferenceStore is an in-memory PreferenceStore for tests and development.
type MemoryPreferenceStore struct {
	mu    sync.RWMutex
	prefs map[string]*Preferences
	now   func() time.Time
}

// NewMemoryPreferenceStore creates an empty MemoryPreferenceStore.
func NewMemoryPreferenceStore() *MemoryPreferenceStore {
	return &MemoryPreferenceStore{
		prefs: make(map[string]*Preferences),
		now:   time.Now,
	}
}

func (s *MemoryPreferenceStore) GetPreferences(ctx context.Context, userID string) (*Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prefs[userID]
	if !ok {
		return nil, ErrPreferencesNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryPreferenceStore) SetPreferences(ctx context.Context, userID string, patch PreferencesPatch) (*Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.prefs[userID]
	if !ok {
		current = DefaultPreferences(userID)
	}
	next := current.Clone()
	if err := next.Apply(patch); err != nil {
		return nil, err
	}
	next.UserID = userID
	next.UpdatedAt = s.now()
	s.prefs[userID] = next
	return next.Clone(), nil
}
