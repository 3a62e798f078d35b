package routing

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var validFetchers = map[string]bool{
	"static_http":      true,
	"headless_browser":  true,
	"browser_attach":    true,
}

// document is the top-level shape of a routing YAML file.
type document struct {
	Version  int               `yaml:"version"`
	Defaults defaultsDoc       `yaml:"defaults"`
	Rules    []RoutingRule     `yaml:"rules"`
}

type defaultsDoc struct {
	TimeoutMs int               `yaml:"timeout_ms,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
}

// RoutingSnapshot is an immutable, ordered, validated view of the active
// routing rules. Built atomically on load; never mutated after
// construction, so it's safe to share across concurrent readers.
type RoutingSnapshot struct {
	rules     []RoutingRule
	defaults  defaultsDoc
	generation uint64
}

// buildSnapshot validates raw YAML-decoded rules and returns a ready-to-use
// snapshot, descending-priority sorted with stable order preserved for ties.
func buildSnapshot(doc document, generation uint64) (*RoutingSnapshot, error) {
	if len(doc.Rules) == 0 {
		return nil, fmt.Errorf("routing: rule set must be non-empty")
	}

	hasCatchAll := false
	enabled := make([]RoutingRule, 0, len(doc.Rules))
	names := make(map[string]bool, len(doc.Rules))

	for i, r := range doc.Rules {
		r.order = i
		if r.Name == "" {
			return nil, fmt.Errorf("routing: rule at index %d has no name", i)
		}
		if names[r.Name] {
			return nil, fmt.Errorf("routing: duplicate rule name %q", r.Name)
		}
		names[r.Name] = true

		if r.Priority < 0 {
			return nil, fmt.Errorf("routing: rule %q has negative priority", r.Name)
		}
		if r.Conditions.empty() {
			return nil, fmt.Errorf("routing: rule %q has no conditions (use domain: \"*\" for a catch-all)", r.Name)
		}
		if r.Priority == 0 {
			hasCatchAll = true
		}
		if r.Action.Fetcher == "" || !validFetchers[r.Action.Fetcher] {
			return nil, fmt.Errorf("routing: rule %q: invalid fetcher %q", r.Name, r.Action.Fetcher)
		}
		if r.Action.OnErrorEscalateTo != "" && !validFetchers[r.Action.OnErrorEscalateTo] {
			return nil, fmt.Errorf("routing: rule %q: invalid on_error_escalate_to %q", r.Name, r.Action.OnErrorEscalateTo)
		}
		if r.Conditions.URLRegex != "" {
			if _, err := regexp.Compile(r.Conditions.URLRegex); err != nil {
				return nil, fmt.Errorf("routing: rule %q: invalid url_regex: %w", r.Name, err)
			}
		}
		if r.Conditions.ContentType != "" {
			if _, err := regexp.Compile(r.Conditions.ContentType); err != nil {
				return nil, fmt.Errorf("routing: rule %q: invalid content_type regex: %w", r.Name, err)
			}
		}

		if !r.Enabled {
			continue
		}
		enabled = append(enabled, r)
	}

	if !hasCatchAll {
		return nil, fmt.Errorf("routing: rule set has no priority-0 catch-all rule")
	}

	sort.SliceStable(enabled, func(i, j int) bool {
		if enabled[i].Priority != enabled[j].Priority {
			return enabled[i].Priority > enabled[j].Priority
		}
		return enabled[i].order < enabled[j].order
	})

	return &RoutingSnapshot{
		rules:      enabled,
		defaults:   doc.Defaults,
		generation: generation,
	}, nil
}

// conditionsMatch reports whether a rule's conditions all hold against ctx. Absent
// conditions are vacuously true; present ones are conjunctive.
func conditionsMatch(c Conditions, ctx FetchContext) bool {
	if c.Domain != "" && !domainGlobMatch(c.Domain, ctx.EffectiveHost) {
		return false
	}
	if c.URLRegex != "" {
		re, err := regexp.Compile(c.URLRegex)
		if err != nil || !re.MatchString(ctx.URL) {
			return false
		}
	}
	if c.ContentType != "" {
		if ctx.ContentType == "" {
			return false
		}
		re, err := regexp.Compile(c.ContentType)
		if err != nil || !re.MatchString(ctx.ContentType) {
			return false
		}
	}
	if c.ErrorKind != "" {
		if string(ctx.PriorErrorKind) != c.ErrorKind {
			return false
		}
	}
	return true
}

// domainGlobMatch supports exact hosts and a single leading "*." wildcard.
func domainGlobMatch(glob, host string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	glob = strings.ToLower(glob)
	if glob == "*" {
		return true
	}
	if !strings.HasPrefix(glob, "*.") {
		return glob == host
	}
	suffix := glob[1:] // ".example.com"
	return host == glob[2:] || strings.HasSuffix(host, suffix)
}

// plan resolves a matching rule (or the process default) into a FetchPlan,
// filling unset fields from the snapshot's defaults.
func (s *RoutingSnapshot) plan(ctx FetchContext) FetchPlan {
	for _, r := range s.rules {
		if !conditionsMatch(r.Conditions, ctx) {
			continue
		}
		return s.resolvePlan(r)
	}
	return defaultPlan()
}

func (s *RoutingSnapshot) resolvePlan(r RoutingRule) FetchPlan {
	timeout := r.Action.TimeoutMs
	if timeout == 0 {
		timeout = s.defaults.TimeoutMs
	}
	if timeout == 0 {
		timeout = 30_000
	}

	headers := make(map[string]string, len(s.defaults.Headers)+len(r.Action.Headers))
	for k, v := range s.defaults.Headers {
		headers[k] = v
	}
	for k, v := range r.Action.Headers {
		headers[k] = v
	}

	maxAttempts := r.Action.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 1
	}

	return FetchPlan{
		FetcherID:         r.Action.Fetcher,
		TimeoutMs:         timeout,
		RequestHeaders:    headers,
		WaitUntil:         r.Action.WaitUntil,
		ScrollToBottom:    r.Action.ScrollToBottom,
		MaxAttempts:       maxAttempts,
		OnErrorEscalateTo: r.Action.OnErrorEscalateTo,
		RuleName:          r.Name,
	}
}
