package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls where and how verbosely the logger writes.
type Options struct {
	LogPath string
	Debug   bool
}

// NewLogger builds a production structured logger. When a log path is set,
// entries are written to that file as well as stderr.
func NewLogger(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if opts.Debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Sampling = nil
	}
	if opts.LogPath != "" {
		if dir := filepath.Dir(opts.LogPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		cfg.OutputPaths = append(cfg.OutputPaths, opts.LogPath)
		cfg.ErrorOutputPaths = append(cfg.ErrorOutputPaths, opts.LogPath)
	}
	return cfg.Build()
}

// WithOperation enriches the logger with operation and request identifiers.
func WithOperation(logger *zap.Logger, operation, requestID string) *zap.Logger {
	fields := []zap.Field{zap.String("operation", operation)}
	if requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	return logger.With(fields...)
}

// LogImageProcessed records the outcome for a single indexed image.
func LogImageProcessed(logger *zap.Logger, path string, err error) {
	if err != nil {
		logger.Warn("image failed", zap.String("path", path), zap.Error(err))
		return
	}
	logger.Debug("image processed", zap.String("path", path))
}
