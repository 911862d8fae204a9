package notifications

import (
	"context"
	"fmt"
	"time"
)

// Task is the producer-side view of a task for task notifications.
type Task struct {
	ID    string
	Title string
	DueAt time.Time
	URL   string
}

// TaskDueRequest builds the request for a task that is due soon or overdue.
func TaskDueRequest(userID, orgID string, task Task, now time.Time) Request {
	hint := PriorityMedium
	body := fmt.Sprintf("%q is due %s.", task.Title, task.DueAt.Format("Jan 2 at 15:04"))
	switch {
	case !task.DueAt.After(now):
		hint = PriorityHigh
		body = fmt.Sprintf("%q was due %s and is now overdue.", task.Title, task.DueAt.Format("Jan 2 at 15:04"))
	case task.DueAt.Sub(now) <= time.Hour:
		hint = PriorityHigh
	}
	return Request{
		UserID:         userID,
		OrganizationID: orgID,
		Type:           TypeTaskDue,
		Title:          "Task due: " + task.Title,
		Body:           body,
		PriorityHint:   &hint,
		Action:         actionFor(task.URL, "View task"),
		Entity:         &EntityRef{Type: "task", ID: task.ID},
	}
}

// TaskAssignedRequest builds the request for a newly assigned task.
func TaskAssignedRequest(userID, orgID string, task Task, assignedBy string) Request {
	body := fmt.Sprintf("%s assigned you %q.", assignedBy, task.Title)
	if !task.DueAt.IsZero() {
		body = fmt.Sprintf("%s assigned you %q, due %s.", assignedBy, task.Title, task.DueAt.Format("Jan 2 at 15:04"))
	}
	return Request{
		UserID:         userID,
		OrganizationID: orgID,
		Type:           TypeTaskAssigned,
		Title:          "New task: " + task.Title,
		Body:           body,
		Action:         actionFor(task.URL, "View task"),
		Entity:         &EntityRef{Type: "task", ID: task.ID},
	}
}

// Email is an inbound message flagged as important by the mail integration.
type Email struct {
	ID      string
	From    string
	Subject string
	Snippet string
	URL     string
}

func ImportantEmailRequest(userID, orgID string, msg Email) Request {
	return Request{
		UserID:         userID,
		OrganizationID: orgID,
		Type:           TypeEmailImportant,
		Title:          fmt.Sprintf("Important email from %s", msg.From),
		Body:           msg.Subject + "\n" + msg.Snippet,
		Action:         actionFor(msg.URL, "Open email"),
		Entity:         &EntityRef{Type: "email", ID: msg.ID},
	}
}

// Event is a calendar event the user is about to attend.
type Event struct {
	ID       string
	Title    string
	StartsAt time.Time
	Location string
	URL      string
}

func CalendarReminderRequest(userID, orgID string, ev Event, now time.Time) Request {
	body := fmt.Sprintf("Starts in %s.", ev.StartsAt.Sub(now).Round(time.Minute))
	if ev.Location != "" {
		body = fmt.Sprintf("Starts in %s at %s.", ev.StartsAt.Sub(now).Round(time.Minute), ev.Location)
	}
	return Request{
		UserID:         userID,
		OrganizationID: orgID,
		Type:           TypeCalendarReminder,
		Title:          "Upcoming: " + ev.Title,
		Body:           body,
		Action:         actionFor(ev.URL, "View event"),
		Entity:         &EntityRef{Type: "event", ID: ev.ID},
	}
}

// Insight is a finding produced by the AI analysis pipeline.
type Insight struct {
	ID      string
	Title   string
	Summary string
	URL     string
}

func AIInsightRequest(userID, orgID string, in Insight) Request {
	return Request{
		UserID:         userID,
		OrganizationID: orgID,
		Type:           TypeAIInsight,
		Title:          in.Title,
		Body:           in.Summary,
		Action:         actionFor(in.URL, "See insight"),
		Entity:         &EntityRef{Type: "insight", ID: in.ID},
	}
}

// Usage is a metered resource of the user's plan.
type Usage struct {
	Resource string
	Used     int64
	Limit    int64
	URL      string
}

// UsageLimitRequest builds a usage warning. Exhausted quotas are hinted as
// urgent, 90% and above as high.
func UsageLimitRequest(userID, orgID string, u Usage) Request {
	var pct int64
	if u.Limit > 0 {
		pct = u.Used * 100 / u.Limit
	}
	hint := PriorityMedium
	title := fmt.Sprintf("You've used %d%% of your %s", pct, u.Resource)
	switch {
	case u.Limit > 0 && u.Used >= u.Limit:
		hint = PriorityUrgent
		title = fmt.Sprintf("You've reached your %s limit", u.Resource)
	case pct >= 90:
		hint = PriorityHigh
	}
	return Request{
		UserID:         userID,
		OrganizationID: orgID,
		Type:           TypeUsageLimit,
		Title:          title,
		Body:           fmt.Sprintf("%d of %d %s used.", u.Used, u.Limit, u.Resource),
		PriorityHint:   &hint,
		Action:         actionFor(u.URL, "Manage plan"),
		Metadata:       map[string]any{"resource": u.Resource, "used": u.Used, "limit": u.Limit},
	}
}

func actionFor(url, label string) *Action {
	if url == "" {
		return nil
	}
	return &Action{URL: url, Label: label}
}

func (e *Engine) NotifyTaskDue(ctx context.Context, userID, orgID string, task Task) (Outcome, error) {
	return e.CreateNotification(ctx, TaskDueRequest(userID, orgID, task, e.now()))
}

func (e *Engine) NotifyTaskAssigned(ctx context.Context, userID, orgID string, task Task, assignedBy string) (Outcome, error) {
	return e.CreateNotification(ctx, TaskAssignedRequest(userID, orgID, task, assignedBy))
}

func (e *Engine) NotifyImportantEmail(ctx context.Context, userID, orgID string, msg Email) (Outcome, error) {
	return e.CreateNotification(ctx, ImportantEmailRequest(userID, orgID, msg))
}

func (e *Engine) NotifyCalendarReminder(ctx context.Context, userID, orgID string, ev Event) (Outcome, error) {
	return e.CreateNotification(ctx, CalendarReminderRequest(userID, orgID, ev, e.now()))
}

func (e *Engine) NotifyAIInsight(ctx context.Context, userID, orgID string, in Insight) (Outcome, error) {
	return e.CreateNotification(ctx, AIInsightRequest(userID, orgID, in))
}

func (e *Engine) NotifyUsageLimit(ctx context.Context, userID, orgID string, u Usage) (Outcome, error) {
	return e.CreateNotification(ctx, UsageLimitRequest(userID, orgID, u))
}
