// Package logger builds *slog.Logger instances with functional options and
// keeps attribute naming consistent across the governance services.
//
// New picks a JSON or text handler from the environment preset, attaches
// static attributes and wraps the handler with NewContextHandler, which adds
// attributes found in each record's context (the acting user, for one)
// unless the call site already logged the same key.
//
//	log := logger.New(logger.WithEnvironment("production", "governor"))
//	log.InfoContext(ctx, "subscription expired",
//	    logger.TenantID(tenantID),
//	    logger.SubscriptionID(subID),
//	)
package logger
