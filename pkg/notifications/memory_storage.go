package notifications

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// MemoryStorage is an in-memory Storage for tests and development.
type MemoryStorage struct {
	mu     sync.RWMutex
	byID   map[string]*Notification
	byUser map[string][]string
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		byID:   make(map[string]*Notification),
		byUser: make(map[string][]string),
	}
}

func (s *MemoryStorage) Create(ctx context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneNotification(n)
	s.byID[n.ID] = &stored
	s.byUser[n.UserID] = append(s.byUser[n.UserID], n.ID)
	return nil
}

func (s *MemoryStorage) Get(ctx context.Context, userID, id string) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.byID[id]
	if !ok || n.UserID != userID {
		return nil, ErrNotificationNotFound
	}
	out := cloneNotification(*n)
	return &out, nil
}

func (s *MemoryStorage) ListUnread(ctx context.Context, userID string, now time.Time, limit int) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Notification
	for _, id := range s.byUser[userID] {
		if n := s.byID[id]; n.IsUnread(now) {
			out = append(out, cloneNotification(*n))
		}
	}
	slices.SortFunc(out, newestFirst)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStorage) CountUnread(ctx context.Context, userID string, now time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, id := range s.byUser[userID] {
		if s.byID[id].IsUnread(now) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStorage) MarkRead(ctx context.Context, userID, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.byID[id]
	if !ok || n.UserID != userID {
		return ErrNotificationNotFound
	}
	n.markRead(at)
	return nil
}

func (s *MemoryStorage) MarkAllRead(ctx context.Context, userID string, snapshot time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, id := range s.byUser[userID] {
		n := s.byID[id]
		if n.IsUnread(snapshot) && !n.DeliveredAt.After(snapshot) {
			n.markRead(snapshot)
			count++
		}
	}
	return count, nil
}

func (s *MemoryStorage) Snooze(ctx context.Context, userID, id string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.byID[id]
	if !ok || n.UserID != userID {
		return ErrNotificationNotFound
	}
	n.SnoozedUntil = &until
	return nil
}

func (s *MemoryStorage) MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.byID[id]
	if !ok {
		return false, ErrNotificationNotFound
	}
	if n.DeliveredAt != nil {
		return false, nil
	}
	n.DeliveredAt = &at
	return true, nil
}

func (s *MemoryStorage) ListDue(ctx context.Context, now time.Time, limit int) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Notification
	for _, n := range s.byID {
		if n.IsDue(now) {
			out = append(out, cloneNotification(*n))
		}
	}
	slices.SortFunc(out, func(a, b Notification) int {
		return cmp.Or(a.SnoozedUntil.Compare(*b.SnoozedUntil), cmp.Compare(a.ID, b.ID))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newestFirst(a, b Notification) int {
	return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(b.ID, a.ID))
}

func cloneNotification(n Notification) Notification {
	n.Metadata = maps.Clone(n.Metadata)
	if n.Action != nil {
		a := *n.Action
		n.Action = &a
	}
	if n.Entity != nil {
		e := *n.Entity
		n.Entity = &e
	}
	n.AIScore = clonePtr(n.AIScore)
	n.ReadAt = clonePtr(n.ReadAt)
	n.DeliveredAt = clonePtr(n.DeliveredAt)
	n.SnoozedUntil = clonePtr(n.SnoozedUntil)
	return n
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
