package routing

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/use-agent/distill/internal/yamlreload"
)

// Store owns the live RoutingSnapshot and, optionally, a filesystem watcher
// that rebuilds it on change. A failed (re)load never replaces the
// snapshot currently being served.
type Store struct {
	path     string
	snapshot atomic.Pointer[RoutingSnapshot]
	log      *slog.Logger
	watcher  *yamlreload.Watcher

	generation atomic.Uint64

	onReload []func()
}

// OnReload registers a callback invoked after every successful reload (but
// not after a failed one). Used by Engine to invalidate its decision cache
// without Store needing to know about caching.
func (s *Store) OnReload(fn func()) {
	s.onReload = append(s.onReload, fn)
}

// NewStore loads rulesPath once and returns a ready Store. rulesPath names
// a single YAML file; a directory is not read and fails the load.
func NewStore(rulesPath string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{path: rulesPath, log: log}
	if err := s.reload(); err != nil {
		return nil, fmt.Errorf("routing: initial load: %w", err)
	}
	return s, nil
}

// Watch starts a filesystem watcher that reloads on every change under the
// configured rules path, debounced. Reload failures are logged and never
// propagate the previous snapshot's eviction.
func (s *Store) Watch(debounce time.Duration) error {
	dir := s.path
	if info, err := os.Stat(s.path); err == nil && !info.IsDir() {
		dir = filepath.Dir(s.path)
	}
	w, err := yamlreload.Watch([]string{dir}, debounce, s.log, func() {
		if err := s.reload(); err != nil {
			s.log.Error("routing: hot reload failed, keeping previous snapshot", "error", err)
		} else {
			s.log.Info("routing: reloaded rule set")
		}
	})
	if err != nil {
		return err
	}
	s.watcher = w
	return nil
}

// Stop ends the hot-reload watch, if any.
func (s *Store) Stop() {
	s.watcher.Stop()
}

func (s *Store) reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var doc document
	if err := yamlreload.UnmarshalStrict(raw, &doc); err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	gen := s.generation.Add(1)
	snap, err := buildSnapshot(doc, gen)
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}

	s.snapshot.Store(snap)
	for _, fn := range s.onReload {
		fn()
	}
	return nil
}

// Snapshot returns the currently active, immutable RoutingSnapshot. Callers
// may hold the reference for the duration of one request; it is never
// mutated in place.
func (s *Store) Snapshot() *RoutingSnapshot {
	return s.snapshot.Load()
}
