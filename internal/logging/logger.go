// Package logging builds the zap loggers shared by the lead service and the edge.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName is attached to every entry so edge and lead service logs can share a sink.
const ServiceName = "leadcapture"

// New builds a zap.Logger configured for development (console, colored levels) or
// production (JSON).
func New(development bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	mode := "prod"
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		mode = "dev"
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.InitialFields = map[string]any{"service": ServiceName}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build %s logger: %w", mode, err)
	}
	return logger, nil
}

// Named returns a child logger scoped to a component. A nil parent yields a no-op logger.
func Named(parent *zap.Logger, component string) *zap.Logger {
	if parent == nil {
		return zap.NewNop()
	}
	return parent.Named(component)
}
