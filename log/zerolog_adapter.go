package log

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

type zerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter creates a Logger writing to stderr. pretty switches to
// the human readable console format.
func NewZerologAdapter(level zerolog.Level, pretty bool) Logger {
	return NewZerologAdapterWithWriter(os.Stderr, level, pretty)
}

// NewZerologAdapterWithWriter is NewZerologAdapter with an explicit output.
func NewZerologAdapterWithWriter(out io.Writer, level zerolog.Level, pretty bool) Logger {
	if pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return &zerologAdapter{
		logger: zerolog.New(out).Level(level).With().Timestamp().Logger(),
	}
}

// ParseLevel parses a level name, falling back to info.
func ParseLevel(name string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}

	return level
}

// Install makes l the global zerolog logger used by the services.
func Install(l Logger) {
	zl := l.Zerolog()
	zlog.Logger = zl
	zerolog.SetGlobalLevel(zl.GetLevel())
}

// addTraceInfo adds the ids of the span in ctx, if any.
func addTraceInfo(ctx context.Context, event *zerolog.Event) *zerolog.Event {
	if ctx == nil {
		return event
	}

	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		event = event.Str("trace_id", sc.TraceID().String()).
			Str("span_id", sc.SpanID().String())
	}

	return event
}

func write(ctx context.Context, event *zerolog.Event, msg string, fields []Fields) {
	event = addTraceInfo(ctx, event)
	for _, f := range fields {
		event = event.Fields(f)
	}
	event.Msg(msg)
}

func (z *zerologAdapter) Debug(ctx context.Context, msg string, fields ...Fields) {
	write(ctx, z.logger.Debug(), msg, fields)
}

func (z *zerologAdapter) Info(ctx context.Context, msg string, fields ...Fields) {
	write(ctx, z.logger.Info(), msg, fields)
}

func (z *zerologAdapter) Warn(ctx context.Context, msg string, fields ...Fields) {
	write(ctx, z.logger.Warn(), msg, fields)
}

func (z *zerologAdapter) Error(ctx context.Context, msg string, err error, fields ...Fields) {
	write(ctx, z.logger.Error().Err(err), msg, fields)
}

// Fatal logs and exits the process.
func (z *zerologAdapter) Fatal(ctx context.Context, msg string, err error, fields ...Fields) {
	write(ctx, z.logger.Fatal().Err(err), msg, fields)
}

// With returns a logger carrying fields. Trace ids are added per entry.
func (z *zerologAdapter) With(fields Fields) Logger {
	return &zerologAdapter{logger: z.logger.With().Fields(fields).Logger()}
}

func (z *zerologAdapter) Zerolog() zerolog.Logger {
	return z.logger
}
