// Package logger builds *slog.Logger instances for the notification engine and
// keeps attribute naming consistent across packages.
//
// New accepts functional options selecting format, level, static attributes and
// context extractors. WithEnvironment applies the usual per-environment presets:
//
//	log := logger.New(logger.WithEnvironment("production", "notifyd"))
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "notification delivered",
//	    logger.UserID(n.UserID),
//	    logger.NotificationID(n.ID),
//	    logger.Priority(string(n.Priority)),
//	)
//
// Attribute helpers such as Error and UserID return an empty slog.Attr for zero
// values, so callers can pass them without nil checks.
package logger
