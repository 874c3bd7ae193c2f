package utils

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	l *zap.SugaredLogger
}

func NewLogger() *Logger {
	lg, err := NewLoggerWithLevel("info")
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	return lg
}

// NewLoggerWithLevel builds a production zap logger at the given level
// ("debug", "info", "warn", "error").
func NewLoggerWithLevel(level string) (*Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{l: z.Sugar()}, nil
}

// NewLoggerFromCore is used by tests to capture entries with zaptest/observer.
func NewLoggerFromCore(core zapcore.Core) *Logger {
	return &Logger{l: zap.New(core).Sugar()}
}

func NewNopLogger() *Logger { return &Logger{l: zap.NewNop().Sugar()} }

func (lg *Logger) Debug(msg string, kv ...any) { lg.l.Debugw(msg, kv...) }
func (lg *Logger) Info(msg string, kv ...any)  { lg.l.Infow(msg, kv...) }
func (lg *Logger) Warn(msg string, kv ...any)  { lg.l.Warnw(msg, kv...) }
func (lg *Logger) Error(msg string, kv ...any) { lg.l.Errorw(msg, kv...) }

func (lg *Logger) With(kv ...any) *Logger { return &Logger{l: lg.l.With(kv...)} }

func (lg *Logger) Sync() error { return lg.l.Sync() }
