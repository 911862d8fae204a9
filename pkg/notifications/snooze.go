package notifications

import (
	"fmt"
	"time"
)

// SnoozeDuration is one of the fixed snooze choices offered to users.
type SnoozeDuration string

const (
	Snooze1Hour  SnoozeDuration = "1h"
	Snooze3Hours SnoozeDuration = "3h"
	Snooze1Day   SnoozeDuration = "1d"
	Snooze3Days  SnoozeDuration = "3d"
	Snooze1Week  SnoozeDuration = "1w"
)

var snoozeDurations = map[SnoozeDuration]time.Duration{
	Snooze1Hour:  time.Hour,
	Snooze3Hours: 3 * time.Hour,
	Snooze1Day:   24 * time.Hour,
	Snooze3Days:  3 * 24 * time.Hour,
	Snooze1Week:  7 * 24 * time.Hour,
}

// Duration returns the length of d, or ErrInvalidSnoozeDuration.
func (d SnoozeDuration) Duration() (time.Duration, error) {
	v, ok := snoozeDurations[d]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSnoozeDuration, d)
	}
	return v, nil
}
