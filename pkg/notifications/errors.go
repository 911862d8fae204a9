package notifications

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest        = errors.New("notifications: invalid request")
	ErrNotificationNotFound  = errors.New("notifications: notification not found")
	ErrPreferencesNotFound   = errors.New("notifications: preferences not found")
	ErrPersistFailed         = errors.New("notifications: failed to persist notification")
	ErrInvalidSnoozeDuration = errors.New("notifications: invalid snooze duration")
	ErrInvalidTimeOfDay      = errors.New("notifications: invalid time of day")
	ErrInvalidPreferences    = errors.New("notifications: invalid preferences")
	ErrCacheInvalidation     = errors.New("notifications: failed to invalidate preference cache")
	ErrInvalidCatalog        = errors.New("notifications: invalid type catalog")

	// ErrTransient marks storage failures that say nothing about whether the
	// data exists. Match it with errors.Is.
	ErrTransient = errors.New("notifications: storage temporarily unavailable")
)

// TransientError wraps a storage failure so callers can tell "storage is
// unreachable" apart from "no data yet" (ErrNotificationNotFound,
// ErrPreferencesNotFound).
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrTransient.Error(), e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func (e *TransientError) Is(target error) bool { return target == ErrTransient }

// Transient wraps err as a TransientError. Nil and already-transient errors
// are returned unchanged.
func Transient(op string, err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is a transient storage failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
