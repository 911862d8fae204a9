package notifications

import "time"

// IsQuiet reports whether now falls inside the quiet window [start, end).
// The window is evaluated on now's wall clock, so callers convert now to the
// user's location first. A window with start > end wraps past midnight; one
// with start == end covers the whole day. Nil bounds mean no window.
func IsQuiet(start, end *TimeOfDay, now time.Time) bool {
	if start == nil || end == nil {
		return false
	}
	cur := ClockOf(now)
	if *start < *end {
		return cur >= *start && cur < *end
	}
	return cur >= *start || cur < *end
}

// NextWindowEnd returns the next instant at which the wall clock reads end:
// today's occurrence if it is still ahead of now, otherwise tomorrow's.
func NextWindowEnd(end TimeOfDay, now time.Time) time.Time {
	next := end.On(now)
	if !next.After(now) {
		next = end.On(now.AddDate(0, 0, 1))
	}
	return next
}
