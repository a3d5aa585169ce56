package logger

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const EnvVar = "SIGNALFOLIO_ENV"

type contextKey struct{}

// New builds a development logger unless SIGNALFOLIO_ENV is "production".
func New(level zapcore.Level) *zap.SugaredLogger {
	var (
		cfg  zap.Config
		opts = []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
	)

	if strings.ToLower(os.Getenv(EnvVar)) == "production" {
		cfg = zap.NewProductionConfig()
		opts = append(opts, zap.Fields(zap.String(EnvVar, os.Getenv(EnvVar))))
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := cfg.Build(opts...)
	if err != nil {
		panic(fmt.Errorf("failed to initialize logger: %w", err))
	}
	return logger.Sugar()
}

// LevelFor maps the CLI verbosity flags onto a zap level.
func LevelFor(verbose, quiet bool) zapcore.Level {
	switch {
	case quiet:
		return zap.WarnLevel
	case verbose:
		return zap.DebugLevel
	}
	return zap.InfoLevel
}

func WithLogger(ctx context.Context, log *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, contextKey{}, log)
}

// FromContext returns the logger stored in ctx, or a no-op logger.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if ctx != nil {
		if log, ok := ctx.Value(contextKey{}).(*zap.SugaredLogger); ok && log != nil {
			return log
		}
	}
	return zap.NewNop().Sugar()
}
