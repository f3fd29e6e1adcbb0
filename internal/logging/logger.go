// Package logging builds the run logger. Every run appends JSON lines to
// <out>/logs/helix.log so failures can be inspected after the terminal output
// is gone. Commands that must not write to the output directory log to stderr
// only.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FileName is the log file created inside the logs directory.
const FileName = "helix.log"

// Options controls where and how much is logged.
type Options struct {
	// Verbose lowers the level to debug.
	Verbose bool
	// Console mirrors log lines to stderr. Disabled while a progress view
	// owns the terminal.
	Console bool
}

// New creates the logs directory and returns a logger appending to its log
// file. An empty logsDir creates nothing and logs to stderr regardless of
// opts.Console. Callers must Sync the logger before exiting.
func New(logsDir string, opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = nil
	if logsDir != "" {
		if err := os.MkdirAll(logsDir, 0o755); err != nil {
			return nil, fmt.Errorf("logging: ensure log dir: %w", err)
		}
		cfg.OutputPaths = append(cfg.OutputPaths, Path(logsDir))
	}
	if opts.Console || logsDir == "" {
		cfg.OutputPaths = append(cfg.OutputPaths, "stderr")
	}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if opts.Verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}
	return logger, nil
}

// Path returns the log file location inside logsDir.
func Path(logsDir string) string {
	return filepath.Join(logsDir, FileName)
}
