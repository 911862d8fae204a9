package notifications

import (
	"fmt"
	"strings"
	"time"
)

// Type tags what kind of event produced a notification. The set is open:
// producers may introduce new types without touching this package.
type Type string

const (
	TypeTaskDue          Type = "task_due"
	TypeTaskAssigned     Type = "task_assigned"
	TypeEmailImportant   Type = "email_important"
	TypeCalendarReminder Type = "calendar_reminder"
	TypeAIInsight        Type = "ai_insight"
	TypeUsageLimit       Type = "usage_limit"
)

// Priority is the discrete urgency level of a notification.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is one of the four known levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Rank orders priorities from 0 (low) to 3 (urgent). Unknown values rank as medium.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	default:
		return 1
	}
}

// ParsePriority normalizes s and clamps anything unrecognized to PriorityMedium.
func ParsePriority(s string) Priority {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return PriorityMedium
	}
	return p
}

// Channel is a delivery mechanism with its own enablement toggle.
type Channel string

const (
	ChannelInApp    Channel = "in_app"
	ChannelEmail    Channel = "email"
	ChannelRealtime Channel = "realtime"
)

// Action is a call-to-action link attached to a notification.
type Action struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

// EntityRef points at the external record a notification is about. It is
// advisory, used for deep-linking only.
type EntityRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Request is what producers hand to the engine. It is not persisted as such.
type Request struct {
	UserID         string         `json:"user_id"`
	OrganizationID string         `json:"organization_id,omitempty"`
	Type           Type           `json:"type"`
	Title          string         `json:"title"`
	Body           string         `json:"body,omitempty"`
	PriorityHint   *Priority      `json:"priority,omitempty"`
	Action         *Action        `json:"action,omitempty"`
	Entity         *EntityRef     `json:"entity,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Validate checks the fields every notification needs.
func (r Request) Validate() error {
	switch {
	case strings.TrimSpace(r.UserID) == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	case strings.TrimSpace(string(r.Type)) == "":
		return fmt.Errorf("%w: type is required", ErrInvalidRequest)
	case strings.TrimSpace(r.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalidRequest)
	case r.Action != nil && r.Action.URL == "":
		return fmt.Errorf("%w: action url is required when action is set", ErrInvalidRequest)
	case r.Entity != nil && (r.Entity.Type == "" || r.Entity.ID == ""):
		return fmt.Errorf("%w: entity type and id are required when entity is set", ErrInvalidRequest)
	}
	return nil
}

// Notification is the durable record. It is pending while DeliveredAt is nil
// and delivered once DeliveredAt is set; DeliveredAt is never cleared.
type Notification struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	OrganizationID string         `json:"organization_id,omitempty"`
	Type           Type           `json:"type"`
	Title          string         `json:"title"`
	Body           string         `json:"body,omitempty"`
	Priority       Priority       `json:"priority"`
	AIScore        *float64       `json:"ai_score,omitempty"`
	AIReason       string         `json:"ai_reason,omitempty"`
	Action         *Action        `json:"action,omitempty"`
	Entity         *EntityRef     `json:"entity,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Read           bool           `json:"read"`
	ReadAt         *time.Time     `json:"read_at,omitempty"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
	SnoozedUntil   *time.Time     `json:"snoozed_until,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (n *Notification) IsDelivered() bool {
	return n.DeliveredAt != nil
}

// IsDue reports whether a deferred notification should be delivered by the
// redelivery poller at now.
func (n *Notification) IsDue(now time.Time) bool {
	return n.DeliveredAt == nil && n.SnoozedUntil != nil && !n.SnoozedUntil.After(now)
}

// IsVisible reports whether the notification shows up in the user's inbox at
// now: delivered and not snoozed into the future.
func (n *Notification) IsVisible(now time.Time) bool {
	if n.DeliveredAt == nil {
		return false
	}
	return n.SnoozedUntil == nil || !n.SnoozedUntil.After(now)
}

// IsUnread reports whether the notification counts towards the unread badge at now.
func (n *Notification) IsUnread(now time.Time) bool {
	return !n.Read && n.IsVisible(now)
}

func (n *Notification) markRead(at time.Time) {
	if n.Read {
		return
	}
	n.Read = true
	n.ReadAt = &at
}

func newNotification(id string, req Request, p prioritization, now time.Time) Notification {
	return Notification{
		ID:             id,
		UserID:         req.UserID,
		OrganizationID: req.OrganizationID,
		Type:           req.Type,
		Title:          req.Title,
		Body:           req.Body,
		Priority:       p.priority,
		AIScore:        p.score,
		AIReason:       p.reason,
		Action:         req.Action,
		Entity:         req.Entity,
		Metadata:       req.Metadata,
		CreatedAt:      now,
	}
}
