// Package logging wires the process's structured logger. Every long-lived
// goroutine gets a named child logger so log lines carry a component field,
// the structured equivalent of the "[subsystem] ..." prefixes scattered
// through simpler indexers.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls verbosity and output format.
type Config struct {
	// Level is one of debug, info, warn, error. Empty defaults to info.
	Level string
	// Development enables human-readable console output instead of JSON.
	Development bool
}

// New builds the root *zap.Logger for the process. Callers derive
// subsystem loggers from it with Named.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, err
		}
	}

	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger, nil
}

// Component returns a child logger tagged with a "component" field, the
// convention every package in this module follows instead of ad-hoc
// message prefixes.
func Component(base *zap.Logger, name string) *zap.Logger {
	return base.Named(name).With(zap.String("component", name))
}

// Nop returns a logger that discards everything, for tests that don't care
// about log output but need a non-nil *zap.Logger.
func Nop() *zap.Logger {
	return zap.NewNop()
}
