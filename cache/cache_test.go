package cache

import (
	"testing"
	"time"

	"github.com/use-agent/distill/orchestrator"
)

func TestCache_SetGetRoundTrip(t *testing.T) {
	c := New(10)
	defer c.Stop()

	in := orchestrator.Input{URL: "https://example.com/a"}
	key := Key(in)
	out := &orchestrator.Output{Markdown: "# A"}
	c.Set(key, out)

	got, ok := c.Get(key, 60_000)
	if !ok || got.Markdown != "# A" {
		t.Fatalf("Get = %+v, %v, want hit with Markdown #A", got, ok)
	}
}

func TestCache_GetMissesWithZeroMaxAge(t *testing.T) {
	c := New(10)
	defer c.Stop()

	key := Key(orchestrator.Input{URL: "https://example.com/a"})
	c.Set(key, &orchestrator.Output{Markdown: "# A"})

	if _, ok := c.Get(key, 0); ok {
		t.Fatal("expected a miss when maxAgeMs <= 0")
	}
}

func TestCache_GetMissesPastMaxAge(t *testing.T) {
	c := New(10)
	defer c.Stop()

	key := Key(orchestrator.Input{URL: "https://example.com/a"})
	c.store[key] = &entry{output: &orchestrator.Output{Markdown: "# A"}, createdAt: time.Now().Add(-time.Hour)}

	if _, ok := c.Get(key, 1_000); ok {
		t.Fatal("expected a miss for an entry older than maxAgeMs")
	}
}

func TestCache_NeverCachesFailedConversion(t *testing.T) {
	c := New(10)
	defer c.Stop()

	key := Key(orchestrator.Input{URL: "https://example.com/a"})
	c.Set(key, &orchestrator.Output{Error: &orchestrator.ErrorInfo{Kind: "NETWORK_TIMEOUT"}})

	if _, ok := c.Get(key, 60_000); ok {
		t.Fatal("expected a failed conversion to never be cached")
	}
}

func TestCache_EvictsAtCapacity(t *testing.T) {
	c := New(2)
	defer c.Stop()

	c.Set(Key(orchestrator.Input{URL: "https://example.com/a"}), &orchestrator.Output{Markdown: "a"})
	c.Set(Key(orchestrator.Input{URL: "https://example.com/b"}), &orchestrator.Output{Markdown: "b"})
	c.Set(Key(orchestrator.Input{URL: "https://example.com/c"}), &orchestrator.Output{Markdown: "c"})

	if len(c.store) > 2 {
		t.Fatalf("store size = %d, want at most 2 after eviction", len(c.store))
	}
}

func TestKey_DiffersByForceFetcherAndHeaders(t *testing.T) {
	base := orchestrator.Input{URL: "https://example.com/a"}
	forced := orchestrator.Input{URL: "https://example.com/a", ForceFetcher: "headless_browser"}
	headered := orchestrator.Input{URL: "https://example.com/a", ExtraHeaders: map[string]string{"X-Test": "1"}}

	if Key(base) == Key(forced) {
		t.Error("Key should differ when ForceFetcher differs")
	}
	if Key(base) == Key(headered) {
		t.Error("Key should differ when ExtraHeaders differs")
	}
}
