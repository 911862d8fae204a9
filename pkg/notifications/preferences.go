package notifications

import (
	"fmt"
	"maps"
	"time"
)

// DigestFrequency controls how often a digest would be produced.
type DigestFrequency string

const (
	DigestDaily  DigestFrequency = "daily"
	DigestWeekly DigestFrequency = "weekly"
)

// QuietHours is a daily window during which non-urgent notifications are
// deferred. The window is disabled unless both bounds are set.
type QuietHours struct {
	Start *TimeOfDay `json:"start"`
	End   *TimeOfDay `json:"end"`
}

func (q QuietHours) Enabled() bool {
	return q.Start != nil && q.End != nil
}

// Digest settings are stored and returned but nothing in this package acts on them.
type Digest struct {
	Enabled   bool            `json:"enabled"`
	Frequency DigestFrequency `json:"frequency"`
	DeliverAt TimeOfDay       `json:"deliver_at"`
}

// Preferences is the per-user configuration that gates and shapes delivery.
type Preferences struct {
	UserID           string           `json:"user_id"`
	Types            map[Type]bool    `json:"types"`
	Channels         map[Channel]bool `json:"channels"`
	AIPrioritization bool             `json:"ai_prioritization"`
	QuietHours       QuietHours       `json:"quiet_hours"`
	Digest           Digest           `json:"digest"`
	Email            string           `json:"email,omitempty"`
	Timezone         string           `json:"timezone,omitempty"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// DefaultPreferences returns the safe defaults a new user starts with, with
// every toggle of the built-in catalog on.
func DefaultPreferences(userID string) *Preferences {
	return DefaultCatalog().DefaultPreferences(userID)
}

// DefaultPreferences returns the defaults with every toggle of c on.
func (c *TypeCatalog) DefaultPreferences(userID string) *Preferences {
	toggles := c.Toggles()
	types := make(map[Type]bool, len(toggles))
	for _, toggle := range toggles {
		types[toggle] = true
	}
	return &Preferences{
		UserID: userID,
		Types:  types,
		Channels: map[Channel]bool{
			ChannelInApp:    true,
			ChannelEmail:    true,
			ChannelRealtime: false,
		},
		AIPrioritization: true,
		Digest: Digest{
			Frequency: DigestDaily,
			DeliverAt: MustTimeOfDay(9, 0),
		},
	}
}

// TypeEnabled reports the toggle value. Toggles missing from the map are on.
func (p *Preferences) TypeEnabled(toggle Type) bool {
	enabled, ok := p.Types[toggle]
	return !ok || enabled
}

// ChannelEnabled reports whether ch is on. Missing entries fall back to the defaults.
func (p *Preferences) ChannelEnabled(ch Channel) bool {
	if enabled, ok := p.Channels[ch]; ok {
		return enabled
	}
	return ch == ChannelInApp || ch == ChannelEmail
}

// Location resolves Timezone, falling back to UTC for empty or unknown names.
func (p *Preferences) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Clone returns a deep copy so cached values can't be mutated by callers.
func (p *Preferences) Clone() *Preferences {
	if p == nil {
		return nil
	}
	c := *p
	c.Types = maps.Clone(p.Types)
	c.Channels = maps.Clone(p.Channels)
	if p.QuietHours.Start != nil {
		start := *p.QuietHours.Start
		c.QuietHours.Start = &start
	}
	if p.QuietHours.End != nil {
		end := *p.QuietHours.End
		c.QuietHours.End = &end
	}
	return &c
}

// PreferencesPatch is a partial update. Nil fields are left untouched; map
// entries are merged key by key.
type PreferencesPatch struct {
	Types            map[Type]bool    `json:"types,omitempty"`
	Channels         map[Channel]bool `json:"channels,omitempty"`
	AIPrioritization *bool            `json:"ai_prioritization,omitempty"`
	QuietHours       *QuietHours      `json:"quiet_hours,omitempty"`
	Digest           *Digest          `json:"digest,omitempty"`
	Email            *string          `json:"email,omitempty"`
	Timezone         *string          `json:"timezone,omitempty"`
}

// Apply validates patch and merges it into p. p is left unchanged on error.
func (p *Preferences) Apply(patch PreferencesPatch) error {
	if err := patch.validate(); err != nil {
		return err
	}

	if p.Types == nil {
		p.Types = make(map[Type]bool, len(patch.Types))
	}
	maps.Copy(p.Types, patch.Types)

	if p.Channels == nil {
		p.Channels = make(map[Channel]bool, len(patch.Channels))
	}
	maps.Copy(p.Channels, patch.Channels)

	if patch.AIPrioritization != nil {
		p.AIPrioritization = *patch.AIPrioritization
	}
	if patch.QuietHours != nil {
		p.QuietHours = *patch.QuietHours
	}
	if patch.Digest != nil {
		p.Digest = *patch.Digest
	}
	if patch.Email != nil {
		p.Email = *patch.Email
	}
	if patch.Timezone != nil {
		p.Timezone = *patch.Timezone
	}
	return nil
}

func (patch PreferencesPatch) validate() error {
	if q := patch.QuietHours; q != nil {
		if (q.Start == nil) != (q.End == nil) {
			return fmt.Errorf("%w: quiet hours need both start and end, or neither", ErrInvalidPreferences)
		}
		if q.Start != nil && (!q.Start.Valid() || !q.End.Valid()) {
			return fmt.Errorf("%w: quiet hours out of range", ErrInvalidPreferences)
		}
	}
	if d := patch.Digest; d != nil {
		if d.Frequency != DigestDaily && d.Frequency != DigestWeekly {
			return fmt.Errorf("%w: unknown digest frequency %q", ErrInvalidPreferences, d.Frequency)
		}
		if !d.DeliverAt.Valid() {
			return fmt.Errorf("%w: digest time out of range", ErrInvalidPreferences)
		}
	}
	for ch := range patch.Channels {
		switch ch {
		case ChannelInApp, ChannelEmail, ChannelRealtime:
		default:
			return fmt.Errorf("%w: unknown channel %q", ErrInvalidPreferences, ch)
		}
	}
	if patch.Timezone != nil && *patch.Timezone != "" {
		if _, err := time.LoadLocation(*patch.Timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", ErrInvalidPreferences, *patch.Timezone)
		}
	}
	return nil
}
