package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/levenlabs/go-llog"
)

var (
	defaultLogLevel slog.LevelVar
	defaultLogger   = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     &defaultLogLevel,
	}))
)

func init() {
	defaultLogLevel.Set(slog.LevelInfo)
}

type contextKey struct{}

var loggerKey = contextKey{}

// Ctx returns the logger from the context. If no logger is found, it returns the default logger.
func Ctx(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return defaultLogger
}

// With returns a new context with the given logger.
func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithAttrs returns a new context whose logger is the context logger with the
// given attributes added.
func WithAttrs(ctx context.Context, args ...any) context.Context {
	return With(ctx, Ctx(ctx).With(args...))
}

func SetDefaultLogLevel(level slog.Level) {
	defaultLogLevel.Set(level)
}

// Configure sets the default log level and installs the default logger as the
// slog default so packages logging through slog directly share the same output.
func Configure(level slog.Level) {
	defaultLogLevel.Set(level)
	slog.SetDefault(defaultLogger)
}

// LLogLevel returns the slog level matching the llog level lflag parsed from
// --log-level.
func LLogLevel() slog.Level {
	switch l := llog.GetLevel(); l {
	case llog.DebugLevel:
		return slog.LevelDebug
	case llog.InfoLevel:
		return slog.LevelInfo
	case llog.WarnLevel:
		return slog.LevelWarn
	case llog.ErrorLevel:
		return slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", l.String()))
	}
}
