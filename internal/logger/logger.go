// Package logger provides structured logging for the repository manager
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu            sync.RWMutex
	defaultLogger = newProduction(zapcore.InfoLevel)
)

func newProduction(level zapcore.Level) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}

// SetLogger replaces the process-wide logger
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = l.Sugar()
}

// SetLevel rebuilds the default logger at the given level
func SetLevel(level zapcore.Level) {
	l := newProduction(level)
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// Debug logs a debug message with alternating key/value fields
func Debug(msg string, keysAndValues ...interface{}) {
	get().Debugw(msg, keysAndValues...)
}

// Info logs an info message with alternating key/value fields
func Info(msg string, keysAndValues ...interface{}) {
	get().Infow(msg, keysAndValues...)
}

// Warn logs a warning with alternating key/value fields
func Warn(msg string, keysAndValues ...interface{}) {
	get().Warnw(msg, keysAndValues...)
}

// Error logs an error with alternating key/value fields
func Error(msg string, keysAndValues ...interface{}) {
	get().Errorw(msg, keysAndValues...)
}
