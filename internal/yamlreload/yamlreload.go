// Package yamlreload provides the strict-decode-plus-filesystem-watch
// machinery shared by the routing rule store and the template store: both
// need "parse this directory of YAML files, reject unknown fields, and
// rebuild atomically whenever the filesystem changes."
package yamlreload

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/infogulch/watch"
	"gopkg.in/yaml.v3"
)

// UnmarshalStrict decodes YAML into v, rejecting unknown fields so a typo in
// a rule or template file fails loudly at load time instead of silently
// being ignored.
func UnmarshalStrict(data []byte, v interface{}) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(v); err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "field") && strings.Contains(errStr, "not found") {
			return fmt.Errorf("unknown field (check for typos): %w", err)
		}
		return err
	}
	return nil
}

// Watcher triggers rebuild on every filesystem change under dirs, debounced.
// It never blocks the caller: rebuild runs in the watch package's own
// goroutine, and rebuild itself must be safe to call concurrently with
// readers of whatever snapshot it publishes.
type Watcher struct {
	stop func()
}

// Watch starts watching dirs and calls rebuild after every debounced batch of
// filesystem events. rebuild's own error handling/logging is the caller's
// responsibility; rebuild returns nothing, and the watch keeps running
// after every call.
func Watch(dirs []string, debounce time.Duration, log *slog.Logger, rebuild func()) (*Watcher, error) {
	stop, err := watch.Watch(dirs, debounce, log, func() bool {
		rebuild()
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("yamlreload: watch %v: %w", dirs, err)
	}
	return &Watcher{stop: func() { stop() }}, nil
}

// Stop ends the watch. Safe to call on a nil *Watcher.
func (w *Watcher) Stop() {
	if w == nil || w.stop == nil {
		return
	}
	w.stop()
}
