package routing

import "github.com/use-agent/distill/classify"

// WaitUntil is the headless-browser wait strategy named in a FetchPlan.
// Most values are literal; selector_visible and custom_delay_ms carry a
// parameter encoded after a colon, parsed by fetch's parseWaitUntil.
type WaitUntil string

const (
	WaitDOMLoaded WaitUntil = "dom_loaded"
	WaitNetworkIdle WaitUntil = "network_idle"
	// "selector_visible:<css>" and "custom_delay_ms:<n>" are prefixes, not
	// exact values; routing never parses them, only carries the string.
)

// Conditions are the optional, conjunctive predicates a RoutingRule tests.
// A nil/zero field means "don't care". At least one must be set.
type Conditions struct {
	Domain      string `yaml:"domain,omitempty"`
	URLRegex    string `yaml:"url_regex,omitempty"`
	ContentType string `yaml:"content_type,omitempty"` // escalation only
	ErrorKind   string `yaml:"error_kind,omitempty"`   // escalation only
}

// empty reports whether no condition was configured, which fails rule
// validation (§3: "at least one condition").
func (c Conditions) empty() bool {
	return c.Domain == "" && c.URLRegex == "" && c.ContentType == "" && c.ErrorKind == ""
}

// Action is what a matching rule prescribes.
type Action struct {
	Fetcher            string            `yaml:"fetcher"`
	TimeoutMs          int               `yaml:"timeout_ms,omitempty"`
	Headers            map[string]string `yaml:"headers,omitempty"`
	WaitUntil          string            `yaml:"wait_until,omitempty"`
	ScrollToBottom      bool             `yaml:"scroll_to_bottom,omitempty"`
	OnErrorEscalateTo  string            `yaml:"on_error_escalate_to,omitempty"`
	MaxAttempts        int               `yaml:"max_attempts,omitempty"`
}

// RoutingRule is one entry of the routing YAML's rules list.
type RoutingRule struct {
	Name       string     `yaml:"name"`
	Priority   int        `yaml:"priority"`
	Enabled    bool       `yaml:"enabled"`
	Conditions Conditions `yaml:"conditions"`
	Action     Action     `yaml:"action"`

	// order is the zero-based position in the source file, used as the
	// secondary tiebreaker behind Priority per §3.
	order int
}

// FetchContext is the input to the Engine and, after a Decide, to the
// fetcher plugins themselves.
type FetchContext struct {
	URL            string
	EffectiveHost  string
	UserHeaders    map[string]string
	UserTimeoutMs  int
	PriorErrorKind classify.ErrorKind // "" when absent
	AttemptIndex   int
	ContentType    string // only populated on escalation
}

// FetchPlan is the Engine's decision: which fetcher, with what parameters.
type FetchPlan struct {
	FetcherID         string
	TimeoutMs         int
	RequestHeaders    map[string]string
	WaitUntil         string
	ScrollToBottom    bool
	MaxAttempts       int
	OnErrorEscalateTo string

	// RuleName records which rule produced this plan, for diagnostics.
	RuleName string
}

// defaultPlan is returned when no rule matches, which §4.3 says is
// impossible once a catch-all exists, but is still a safe fallback.
func defaultPlan() FetchPlan {
	return FetchPlan{
		FetcherID: "static_http",
		TimeoutMs: 30_000,
		RuleName:  "__process_default__",
	}
}
