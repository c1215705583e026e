package observability

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/entityconfig/internal/config"
	"github.com/pitabwire/entityconfig/model"
)

type loggerKey struct{}

// NewLogger builds the service logger writing to stdout. Every entry carries
// the service name, build version and commit.
//
// Levels:
//   - error: store or cache failures surfaced to the caller, 5xx responses
//   - warn:  4xx responses, cache unreachable, rejected import rows
//   - info:  request summary, import/export jobs, definition reload, cache reset
//   - debug: cache hits, stage execution, join optimization
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	return newLogger(cfg, zapcore.Lock(os.Stdout))
}

func newLogger(cfg config.ObservabilityConfig, out zapcore.WriteSyncer) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.LogLevel != "" {
		var err error
		if level, err = zapcore.ParseLevel(cfg.LogLevel); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}

	enc, err := logEncoder(cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(enc, out, zap.NewAtomicLevelAt(level))
	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.ErrorOutput(zapcore.Lock(os.Stderr)),
		zap.Fields(
			zap.String("service", "entityconfig"),
			zap.String("version", Version),
			zap.String("commit", Commit),
		),
	), nil
}

// logEncoder returns the JSON encoder used in deployments, or a
// human-readable console encoder for local runs.
func logEncoder(format string) (zapcore.Encoder, error) {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeDuration = zapcore.MillisDurationEncoder

	switch format {
	case "", "json":
		return zapcore.NewJSONEncoder(ec), nil
	case "console":
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(ec), nil
	default:
		return nil, fmt.Errorf("log format %q must be json or console", format)
	}
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the context logger, or fallback when none is stored.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// RequestLogger annotates the context logger with the caller identity and
// correlation IDs of the request. Empty values are omitted.
func RequestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := LoggerFrom(ctx, fallback)
	rctx := model.RequestContextFrom(ctx)
	if rctx == nil {
		return logger
	}

	var fields []zap.Field
	for _, f := range [...]struct{ key, value string }{
		{"tenant_id", rctx.TenantID},
		{"subject_id", rctx.SubjectID},
		{"correlation_id", rctx.CorrelationID},
		{"trace_id", rctx.TraceID},
	} {
		if f.value != "" {
			fields = append(fields, zap.String(f.key, f.value))
		}
	}
	return logger.With(fields...)
}

// ClassLogger scopes a logger to one entity class resolution.
func ClassLogger(ctx context.Context, fallback *zap.Logger, className string) *zap.Logger {
	return RequestLogger(ctx, fallback).With(zap.String("class", className))
}
