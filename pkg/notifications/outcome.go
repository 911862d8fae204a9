package notifications

import (
	"encoding/json"
	"time"
)

// OutcomeKind is what the engine decided to do with a request.
type OutcomeKind string

const (
	OutcomeDelivered  OutcomeKind = "delivered"
	OutcomeSnoozed    OutcomeKind = "snoozed"
	OutcomeSuppressed OutcomeKind = "suppressed"
)

// SuppressedDisabled is the reason given when the user turned the type off.
const SuppressedDisabled = "disabled"

// Outcome is the result of CreateNotification. Notification is set for
// delivered and snoozed outcomes, Until only for snoozed ones and Reason only
// for suppressed ones.
type Outcome struct {
	Kind         OutcomeKind
	Notification *Notification
	Until        time.Time
	Reason       string
}

// Delivered reports that n was persisted and handed to the dispatcher.
func Delivered(n Notification) Outcome {
	return Outcome{Kind: OutcomeDelivered, Notification: &n}
}

// Snoozed reports that n was persisted but held back until until.
func Snoozed(n Notification, until time.Time) Outcome {
	return Outcome{Kind: OutcomeSnoozed, Notification: &n, Until: until}
}

// Suppressed reports that nothing was persisted, for reason.
func Suppressed(reason string) Outcome {
	return Outcome{Kind: OutcomeSuppressed, Reason: reason}
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	out := struct {
		Outcome      OutcomeKind   `json:"outcome"`
		Notification *Notification `json:"notification,omitempty"`
		Until        *time.Time    `json:"until,omitempty"`
		Reason       string        `json:"reason,omitempty"`
	}{
		Outcome:      o.Kind,
		Notification: o.Notification,
		Reason:       o.Reason,
	}
	if o.Kind == OutcomeSnoozed {
		out.Until = &o.Until
	}
	return json.Marshal(out)
}
