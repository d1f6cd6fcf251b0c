// Package logging builds the zap loggers used by the CLI and server.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName is attached to every entry as the "service" field.
const ServiceName = "opinionscan"

// Options selects the encoder and minimum level.
type Options struct {
	// Development switches to a colored console encoder with caller info.
	Development bool
	// Level is a zap level name ("debug", "info", ...). Empty keeps the
	// default for the chosen mode.
	Level string
}

// New builds a zap.Logger for the given options.
func New(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.InitialFields = map[string]any{"service": ServiceName}

	if lvl := strings.TrimSpace(opts.Level); lvl != "" {
		parsed, err := zapcore.ParseLevel(lvl)
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", lvl, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(parsed)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
