package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ppiankov/claimwatch/internal/model"
)

var (
	mu     sync.RWMutex
	logger *zap.Logger
)

// Init builds the process logger from config. Format "text" selects the
// human-readable console encoder, anything else JSON.
func Init(cfg model.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapConfig zap.Config
	if cfg.Format == "text" {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	// stdout carries command output
	zapConfig.OutputPaths = []string{"stderr"}

	l, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return nil, err
	}

	Set(l)
	return l, nil
}

// Set replaces the process logger
func Set(l *zap.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

// Get returns the process logger, falling back to a no-op logger before Init
func Get() *zap.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// WithComponent adds component name to logger
func WithComponent(component string) *zap.Logger {
	return Get().With(zap.String("component", component))
}

// OrNop returns l, or a no-op logger when l is nil
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// Sync flushes buffered entries; errors from syncing stderr are ignored
func Sync() {
	_ = Get().Sync()
}
