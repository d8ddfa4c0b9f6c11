// ABOUTME: Periodic device list polling
// ABOUTME: Reports when the set of capture or render devices changes
package device

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultPollInterval is how often device lists are compared
const DefaultPollInterval = 2 * time.Second

// Watcher remembers the last seen device names per direction
type Watcher struct {
	provider Provider
	onChange func(inputs, outputs []string)

	mu      sync.Mutex
	inputs  []string
	outputs []string
	primed  bool
}

// NewWatcher creates a watcher calling onChange when either list differs
// from the previous poll
func NewWatcher(p Provider, onChange func(inputs, outputs []string)) *Watcher {
	return &Watcher{provider: p, onChange: onChange}
}

// Check polls once and reports whether a change was detected. The first
// poll only records the lists.
func (w *Watcher) Check() bool {
	inputs, err := Names(w.provider, ModeInput)
	if err != nil {
		logrus.WithError(err).Debug("Failed to list input devices")
		return false
	}
	outputs, err := Names(w.provider, ModeOutput)
	if err != nil {
		logrus.WithError(err).Debug("Failed to list output devices")
		return false
	}

	w.mu.Lock()
	changed := w.primed && (!slices.Equal(inputs, w.inputs) || !slices.Equal(outputs, w.outputs))
	w.inputs, w.outputs, w.primed = inputs, outputs, true
	w.mu.Unlock()

	if changed {
		logrus.WithFields(logrus.Fields{
			"inputs":  len(inputs),
			"outputs": len(outputs),
		}).Info("Audio devices changed")
		if w.onChange != nil {
			w.onChange(inputs, outputs)
		}
	}
	return changed
}

// Run polls every interval until ctx is done
func (w *Watcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.Check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check()
		}
	}
}
