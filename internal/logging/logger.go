// Package logging provides zap logger helpers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName tags every record emitted by the process.
const ServiceName = "career-crawler"

// New builds a zap.Logger configured for development or production.
// Production output is JSON with ISO8601 timestamps.
func New(development bool) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return logger.With(zap.String("service", ServiceName)), nil
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger.With(zap.String("service", ServiceName)), nil
}

// ForRun scopes logger to a single scrape run.
func ForRun(logger *zap.Logger, runID, company string) *zap.Logger {
	fields := []zap.Field{zap.String("run_id", runID)}
	if company != "" {
		fields = append(fields, zap.String("company_filter", company))
	}
	return logger.With(fields...)
}
