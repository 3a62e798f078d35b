// Package config loads ambient configuration from the process environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	Routing      RoutingConfig
	Template     TemplateConfig
	Browser      BrowserConfig
	Fetch        FetchConfig
	Auth         AuthConfig
	RateLimit    RateLimitConfig
	Cache        CacheConfig
	Log          LogConfig
	BrowserPool  BrowserPoolConfig
}

// ServerConfig controls cmd/distill-server's HTTP listener.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// RoutingConfig controls the routing rule store.
type RoutingConfig struct {
	// RulesPath is the single YAML file containing the routing rule set.
	RulesPath string // default: "./rules/routing.yaml"

	// WatchEnabled toggles hot-reload via filesystem watch.
	WatchEnabled bool // default: true

	// CacheSize bounds the routing decision LRU.
	CacheSize int // default: 4096
}

// TemplateConfig controls the extraction template store.
type TemplateConfig struct {
	// Root is the directory containing per-site and the generic template.
	Root string // default: "./templates"

	// WatchEnabled toggles hot-reload via filesystem watch.
	WatchEnabled bool // default: true
}

// BrowserConfig controls the headless browser launcher.
type BrowserConfig struct {
	Headless     bool // default: true
	NoSandbox    bool
	BrowserBin   string
	DefaultProxy string
}

// BrowserPoolConfig controls the adaptive browser-context pool.
type BrowserPoolConfig struct {
	MinPages     int     // default: 3
	HardMax      int     // default: 20
	MemThreshold float64 // default: 0.9
	ScaleStep    float64 // default: 0.05
}

// FetchConfig controls fetcher-wide defaults.
type FetchConfig struct {
	DefaultTimeout       time.Duration // default: 30s
	MaxTimeout           time.Duration // default: 120s
	MaxBodyBytes         int64         // default: 10 MiB
	UserAgent            string
	AcceptLanguage       string
	BlockedResourceTypes []string // default: ["Image", "Stylesheet", "Font", "Media"]

	// JSRenderedDomains is the configured "likely JS-rendered" domain set
	// consulted by classify.Classify's JAVASCRIPT_REQUIRED heuristic: an
	// empty-looking static_http body on one of these domains is treated
	// as a strong signal the page needs a browser, not a thin article.
	JSRenderedDomains []string // default: empty (heuristic disabled)
}

// AuthConfig controls API key authentication for cmd/distill-server.
type AuthConfig struct {
	Enabled bool
	APIKeys []string
}

// RateLimitConfig controls per-identity rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 // default: 5
	Burst             int     // default: 10
}

// CacheConfig controls the server's response cache.
type CacheConfig struct {
	MaxEntries int // default: 1000
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("DISTILL_HOST", "0.0.0.0"),
			Port: envIntOr("DISTILL_PORT", 8080),
			Mode: envOr("DISTILL_MODE", "release"),
		},
		Routing: RoutingConfig{
			RulesPath:    envOr("DISTILL_ROUTING_PATH", "./rules/routing.yaml"),
			WatchEnabled: envBoolOr("DISTILL_ROUTING_WATCH", true),
			CacheSize:    envIntOr("DISTILL_ROUTING_CACHE_SIZE", 4096),
		},
		Template: TemplateConfig{
			Root:         envOr("DISTILL_TEMPLATE_ROOT", "./templates"),
			WatchEnabled: envBoolOr("DISTILL_TEMPLATE_WATCH", true),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("DISTILL_HEADLESS", true),
			NoSandbox:    envBoolOr("DISTILL_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("DISTILL_BROWSER_BIN"),
			DefaultProxy: os.Getenv("DISTILL_PROXY"),
		},
		BrowserPool: BrowserPoolConfig{
			MinPages:     envIntOr("DISTILL_POOL_MIN_PAGES", 3),
			HardMax:      envIntOr("DISTILL_POOL_HARD_MAX", 20),
			MemThreshold: envFloatOr("DISTILL_POOL_MEM_THRESHOLD", 0.9),
			ScaleStep:    envFloatOr("DISTILL_POOL_SCALE_STEP", 0.05),
		},
		Fetch: FetchConfig{
			DefaultTimeout: envDurationOr("DISTILL_DEFAULT_TIMEOUT", 30*time.Second),
			MaxTimeout:     envDurationOr("DISTILL_MAX_TIMEOUT", 120*time.Second),
			MaxBodyBytes:   envInt64Or("DISTILL_MAX_BODY_BYTES", 10<<20),
			UserAgent:      envOr("DISTILL_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"),
			AcceptLanguage: envOr("DISTILL_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			BlockedResourceTypes: envSliceOr("DISTILL_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font", "Media",
			}),
			JSRenderedDomains: envSliceOr("DISTILL_JS_RENDERED_DOMAINS", nil),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("DISTILL_AUTH_ENABLED", false),
			APIKeys: envSliceOr("DISTILL_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("DISTILL_RATE_RPS", 5.0),
			Burst:             envIntOr("DISTILL_RATE_BURST", 10),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("DISTILL_CACHE_MAX_ENTRIES", 1000),
		},
		Log: LogConfig{
			Level:  envOr("DISTILL_LOG_LEVEL", "info"),
			Format: envOr("DISTILL_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envInt64Or(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
