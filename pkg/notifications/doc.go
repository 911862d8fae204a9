// Package notifications decides whether, when and how a user is told about
// something that happened in the workspace.
//
// Producers (task scheduler, mail integration, calendar, AI insights, billing)
// hand a Request to Engine.CreateNotification. The engine then:
//
//  1. loads the user's Preferences through a Resolver and its PreferenceCache,
//  2. drops the request if the user disabled its type (the TypeCatalog maps
//     each type to one preference toggle; unknown types are always allowed),
//  3. assigns a Priority, either through a Classifier when the user has AI
//     prioritization on, or from the producer's hint and the catalog default,
//  4. persists the Notification, deferring it to the end of the user's quiet
//     hours unless it is urgent,
//  5. hands delivered notifications to the Dispatcher, which emails urgent ones
//     in the background and publishes to realtime subscribers.
//
// Deferred notifications are picked up by a Poller that calls Engine.Redeliver
// on a fixed interval.
//
// # Usage
//
//	store := notifications.NewMemoryStorage()
//	resolver := notifications.NewResolver(
//		notifications.NewMemoryPreferenceStore(),
//		notifications.NewTTLCache(0, time.Minute),
//	)
//	dispatcher := notifications.NewDispatcher(notifications.WithEmailSender(sender))
//	engine := notifications.NewEngine(store, resolver, dispatcher,
//		notifications.WithClassifier(notifications.NewLLMClassifier(completer)),
//	)
//
//	outcome, err := engine.NotifyTaskDue(ctx, userID, orgID, notifications.Task{
//		ID:    "task_1",
//		Title: "Ship release notes",
//		DueAt: time.Now().Add(30 * time.Minute),
//	})
//
// # Errors
//
// Storage failures are reported as *TransientError (match with errors.Is and
// ErrTransient) so callers can distinguish an unreachable backend from
// ErrNotificationNotFound or ErrPreferencesNotFound. CreateNotification only
// fails when the notification can't be persisted (ErrPersistFailed).
package notifications
