// Package log is the structured logger of the binaries and the HTTP layer.
// Services log through the global zerolog logger, which Install points at
// the same output.
package log

import (
	"context"

	"github.com/rs/zerolog"
)

// Fields are structured key/value pairs attached to an entry.
type Fields = map[string]any

// Logger defines a standard interface for logging.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Fields)
	Info(ctx context.Context, msg string, fields ...Fields)
	Warn(ctx context.Context, msg string, fields ...Fields)
	Error(ctx context.Context, msg string, err error, fields ...Fields)
	Fatal(ctx context.Context, msg string, err error, fields ...Fields)
	With(fields Fields) Logger

	// Zerolog exposes the underlying logger.
	Zerolog() zerolog.Logger
}
