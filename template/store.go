package template

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/use-agent/distill/internal/yamlreload"
)

// Store owns the live template index and, optionally, a filesystem watcher
// that rebuilds it on change.
type Store struct {
	root    string
	index   atomic.Pointer[index]
	log     *slog.Logger
	watcher *yamlreload.Watcher
}

// NewStore loads every *.yaml/*.yml file under root once. A template that
// fails validation is dropped with a logged warning, per §4.5 ("does not
// fail the process"); the generic template's absence is fatal.
func NewStore(root string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{root: root, log: log}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Watch starts a filesystem watcher that reloads on every change under root.
func (s *Store) Watch(debounce time.Duration) error {
	w, err := yamlreload.Watch([]string{s.root}, debounce, s.log, func() {
		if err := s.reload(); err != nil {
			s.log.Error("template: hot reload failed, keeping previous index", "error", err)
		} else {
			s.log.Info("template: reloaded template set")
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
	var paths []string
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("template: walk %s: %w", s.root, err)
	}

	var loaded []*Template
	hasGeneric := false
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			s.log.Warn("template: failed to read file, skipping", "path", path, "error", err)
			continue
		}
		var t Template
		if err := yamlreload.UnmarshalStrict(raw, &t); err != nil {
			s.log.Warn("template: failed to parse, skipping", "path", path, "error", err)
			continue
		}
		if err := t.validate(); err != nil {
			s.log.Warn("template: failed validation, skipping", "path", path, "error", err)
			continue
		}
		if t.IsGeneric() {
			hasGeneric = true
		}
		loaded = append(loaded, &t)
	}

	if !hasGeneric {
		return fmt.Errorf("template: no valid generic template (domain \"*\") found under %s", s.root)
	}

	idx, err := buildIndex(loaded)
	if err != nil {
		return err
	}
	s.index.Store(idx)
	return nil
}

// Match returns the best template for host, falling back to generic.
func (s *Store) Match(host string) *Template {
	return s.index.Load().Match(host)
}

// Generic returns the always-present fallback template, used directly by
// the Orchestrator's quality-policy retry.
func (s *Store) Generic() *Template {
	return s.index.Load().generic
}
