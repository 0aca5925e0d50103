// Package logging defines the structured logger used across services and
// workers. Call sites pass the request context and key-value pairs:
//
//	log.Info(ctx, "arrival recorded", "visitor_id", id, "entry_type", t)
package logging

import "context"

// Logger is a context-aware, structured logger.
type Logger interface {
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key-value pairs.
	With(args ...any) Logger
}
