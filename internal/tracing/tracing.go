// Package tracing provides the library's debug tracing, gated by
// IO_PLUMBING_DEBUG: an integer env var where 0/unset disables tracing, 1
// prints fork/plumb events, and higher values additionally print
// per-descriptor events. Warnings (e.g. a Bucket's collect-cap truncation
// notice) are emitted regardless of the debug level.
package tracing

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	once   sync.Once
	level  int
	logger *zap.Logger
)

func debugLevel() int {
	v := os.Getenv("IO_PLUMBING_DEBUG")
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func init() {
	once.Do(func() {
		level = debugLevel()

		if level == 0 {
			logger = zap.NewNop()
			return
		}

		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = ""
		cfg.OutputPaths = []string{"stderr"}
		if level >= 2 {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		} else {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		}
		l, err := cfg.Build()
		if err != nil {
			logger = zap.NewNop()
			return
		}
		logger = l
	})
}

// Level returns the current IO_PLUMBING_DEBUG level.
func Level() int { return level }

// Fork logs a fork/plumb-level event (level 1 and above).
func Fork(msg string, fields ...zap.Field) {
	logger.Info(msg, fields...)
}

// Descriptor logs a per-descriptor event (level 2 and above).
func Descriptor(msg string, fields ...zap.Field) {
	logger.Debug(msg, fields...)
}

// Warnf prints a warning to standard error regardless of the debug level.
// Warnings are part of the library's documented behavior (a truncating
// Bucket must name the upstream command), so they are plain text rather
// than structured trace lines.
func Warnf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
