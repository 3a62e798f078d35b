// Package cache is an in-memory response cache for cmd/distill-server,
// keyed on the Orchestrator input that produced a given Output.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/use-agent/distill/orchestrator"
)

// entry holds a cached Output with its creation timestamp.
type entry struct {
	output    *orchestrator.Output
	createdAt time.Time
}

// Cache is a simple in-memory cache for Orchestrator outputs. Safe for
// concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int

	stop chan struct{}
}

// New creates a Cache holding up to maxEntries responses. A background
// goroutine runs every 5 minutes to evict entries older than 1 hour.
func New(maxEntries int) *Cache {
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		stop:       make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Key derives a cache key from an Orchestrator Input. force_fetcher and
// extra headers are part of the key since they change the output for the
// same URL.
func Key(in orchestrator.Input) string {
	h := sha256.New()
	h.Write([]byte(in.URL))
	h.Write([]byte("|"))
	h.Write([]byte(in.ForceFetcher))
	for k, v := range in.ExtraHeaders {
		h.Write([]byte("|"))
		h.Write([]byte(k))
		h.Write([]byte("="))
		h.Write([]byte(v))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get retrieves a cached Output if present and younger than maxAgeMs. If
// maxAgeMs <= 0, no lookup is performed (caller has opted out of caching).
func (c *Cache) Get(key string, maxAgeMs int) (*orchestrator.Output, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if time.Since(e.createdAt) > time.Duration(maxAgeMs)*time.Millisecond {
		return nil, false
	}
	return e.output, true
}

// Set stores out under key. Never caches a failed conversion, since a
// transient fetch error shouldn't be replayed to later callers.
func (c *Cache) Set(key string, out *orchestrator.Output) {
	if out.Error != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Evict one entry at random if at capacity (Go map iteration order is
	// randomized, which is enough to avoid always evicting the same key).
	if len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{output: out, createdAt: time.Now()}
}

// Stop ends the background eviction loop.
func (c *Cache) Stop() {
	close(c.stop)
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-1 * time.Hour)
			c.mu.Lock()
			for k, e := range c.store {
				if e.createdAt.Before(cutoff) {
					delete(c.store, k)
				}
			}
			c.mu.Unlock()
		}
	}
}
