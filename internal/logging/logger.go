// Package logging is the structured-logging seam between the services and
// whatever backend the binary wires in. The server uses slog; tests swap in
// whatever they need.
package logging

import "context"

// Logger takes a message plus alternating key-value args, slog style:
//
//	log.Info(ctx, "starting server", "addr", addr)
type Logger interface {
	Info(ctx context.Context, msg string, args ...any)

	// Warn is for conditions worth noticing that do not fail the operation.
	Warn(ctx context.Context, msg string, args ...any)

	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger carrying the given key-value pairs on
	// every record.
	With(args ...any) Logger
}
