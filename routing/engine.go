// Package routing decides, for a given FetchContext, which fetcher plugin
// should handle a request and with what parameters — loading rules from
// hot-reloadable YAML, matching them in priority order, and caching
// decisions for repeat traffic. See §4.3.
package routing

import (
	"net/url"
	"strings"

	"github.com/use-agent/distill/classify"
)

// Engine walks a Store's current snapshot to produce FetchPlans, consulting
// a bounded decision cache first.
type Engine struct {
	store *Store
	cache *decisionCache
}

// NewEngine wires an Engine to store, with a decision cache of the given
// capacity (0 selects a sane default).
func NewEngine(store *Store, cacheCapacity int) *Engine {
	e := &Engine{
		store: store,
		cache: newDecisionCache(cacheCapacity),
	}
	store.OnReload(e.InvalidateCache)
	return e
}

// Decide resolves ctx to a FetchPlan. On the first attempt (PriorErrorKind
// == "") decisions are cached; escalation decisions (a non-empty
// PriorErrorKind) always re-walk the snapshot, since they're one-shot and
// rarely repeat for the same key.
func (e *Engine) Decide(ctx FetchContext) FetchPlan {
	snap := e.store.Snapshot()

	if ctx.PriorErrorKind == "" {
		key := decisionKey{
			domain:    ctx.EffectiveHost,
			pathHash:  hashPathPrefix(urlPath(ctx.URL)),
			errorKind: "",
		}
		if plan, ok := e.cache.get(key); ok {
			return plan
		}
		plan := snap.plan(ctx)
		e.cache.put(key, plan)
		return plan
	}

	return snap.plan(ctx)
}

// InvalidateCache is called by the Store after every successful reload so
// stale decisions never outlive the snapshot that produced them.
func (e *Engine) InvalidateCache() {
	e.cache.invalidate()
}

func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}

// EffectiveHost computes the routing-relevant host for a URL: lowercase,
// leading "www." stripped, exactly as the Template Matcher does (§4.5 step
// 1), so the two subsystems agree on what a "domain" means.
func EffectiveHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// NextEscalation builds the FetchContext for an escalated retry, given the
// context and plan that just failed and the classified error.
func NextEscalation(prev FetchContext, plan FetchPlan, kind classify.ErrorKind) (FetchContext, bool) {
	if plan.OnErrorEscalateTo == "" {
		return FetchContext{}, false
	}
	next := prev
	next.PriorErrorKind = kind
	next.AttemptIndex = prev.AttemptIndex + 1
	return next, true
}
