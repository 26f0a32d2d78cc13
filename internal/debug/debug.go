// Package debug provides gated diagnostic logging shared across edda's
// commands and the hook dispatch hot path.
//
// The hot path (internal/bridge) must never write above warn level to
// stderr, since stderr is part of the hook's contract with the host agent.
// Verbose output is therefore opt-in via EDDA_DEBUG, and is mirrored to a
// rotated file when EDDA_LOG_FILE is set so a long-running workspace
// doesn't grow one unbounded log.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu      sync.Mutex
	enabled bool
	out     io.Writer = os.Stderr
	logger  *lumberjack.Logger
)

// Init wires the debug logger from environment. Call once at startup.
func Init() {
	mu.Lock()
	defer mu.Unlock()

	enabled = os.Getenv("EDDA_DEBUG") != ""

	if path := os.Getenv("EDDA_LOG_FILE"); path != "" {
		logger = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stderr, logger)
	}
}

// SetEnabled overrides the verbose flag, e.g. from a --verbose CLI flag.
func SetEnabled(v bool) {
	mu.Lock()
	defer mu.Unlock()
	enabled = v
}

// Enabled reports whether verbose diagnostics are turned on.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// Logf writes a verbose diagnostic line if debug output is enabled. It is a
// no-op otherwise, so call sites don't need to guard every call.
func Logf(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if !enabled {
		return
	}
	fmt.Fprintf(out, format, args...)
}

// Close flushes and releases the rotated log file, if any. Safe to call
// even when no log file was configured.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		return nil
	}
	return logger.Close()
}
