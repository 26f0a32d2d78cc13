package coordination

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher tails a coordination log and invokes onChange with the freshly
// derived board state whenever the log (or the containing state dir, for
// heartbeat churn) changes. Falls back to polling if fsnotify can't be set
// up, controlled by EDDA_WATCHER_FALLBACK (mirrors the teacher's
// BEADS_WATCHER_FALLBACK knob).
type Watcher struct {
	log          *Log
	stateDir     string
	fsw          *fsnotify.Watcher
	pollingMode  bool
	pollInterval time.Duration
}

// NewWatcher sets up a Watcher over the coordination log and state
// directory. onChange is invoked by Run, not by NewWatcher.
func NewWatcher(log *Log, stateDir string) (*Watcher, error) {
	w := &Watcher{log: log, stateDir: stateDir, pollInterval: 2 * time.Second}

	fallbackDisabled := os.Getenv("EDDA_WATCHER_FALLBACK") == "false" || os.Getenv("EDDA_WATCHER_FALLBACK") == "0"

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		if fallbackDisabled {
			return nil, fmt.Errorf("coordination: fsnotify.NewWatcher failed and EDDA_WATCHER_FALLBACK is disabled: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Warning: fsnotify unavailable (%v), falling back to polling every %v\n", err, w.pollInterval)
		w.pollingMode = true
		return w, nil
	}

	if err := fsw.Add(stateDir); err != nil {
		_ = fsw.Close()
		if fallbackDisabled {
			return nil, fmt.Errorf("coordination: failed to watch %s and EDDA_WATCHER_FALLBACK is disabled: %w", stateDir, err)
		}
		fmt.Fprintf(os.Stderr, "Warning: failed to watch %s (%v), falling back to polling every %v\n", stateDir, err, w.pollInterval)
		w.pollingMode = true
		return w, nil
	}

	w.fsw = fsw
	return w, nil
}

// Run blocks until ctx is cancelled, calling onChange whenever the
// coordination log or peer state appears to have changed.
func (w *Watcher) Run(ctx context.Context, onChange func(BoardState)) error {
	defer w.Close()

	emit := func() {
		state, err := w.log.DeriveBoardState()
		if err == nil {
			onChange(state)
		}
	}
	emit()

	if w.pollingMode || w.fsw == nil {
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				emit()
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			emit()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "coordination watch error: %v\n", err)
		}
	}
}

// Close releases the underlying fsnotify watcher, if any.
func (w *Watcher) Close() error {
	if w.fsw == nil {
		return nil
	}
	return w.fsw.Close()
}
