package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/use-agent/distill/classify"
	"github.com/use-agent/distill/encoding"
	"github.com/use-agent/distill/extract"
	"github.com/use-agent/distill/fetch"
	"github.com/use-agent/distill/markdown"
	"github.com/use-agent/distill/routing"
	"github.com/use-agent/distill/template"
)

// maxEscalations bounds retry depth: original attempt plus two
// escalations, three total.
const maxEscalations = 2

// escalationBudgetFloor is the remaining-budget threshold below which
// escalation is suppressed rather than attempted against a budget too
// thin to plausibly complete.
const escalationBudgetFloor = 3 * time.Second

// DefaultTimeout is used when an Input carries no UserTimeoutMs.
const DefaultTimeout = 30 * time.Second

// Orchestrator runs the full Route -> Fetch -> Retry/Escalate -> Extract ->
// Serialize pipeline. It holds no per-request state; one instance safely
// serves concurrent Convert calls, since every component it wires
// (routing.Engine, template.Store, the fetch.Fetcher plugins,
// extract.Executor, markdown.Serializer) is itself safe for concurrent
// use.
type Orchestrator struct {
	routing    *routing.Engine
	templates  *template.Store
	fetchers   map[string]fetch.Fetcher
	executor   *extract.Executor
	serializer *markdown.Serializer

	defaultTimeout    time.Duration
	jsRenderedDomains map[string]struct{}
}

// New wires an Orchestrator from its components. fetchers maps a
// routing.FetchPlan.FetcherID (e.g. "static_http") to the plugin that
// implements it. jsRenderedDomains is the configured "likely JS-rendered"
// domain set fed to classify.Classify's JAVASCRIPT_REQUIRED heuristic; nil
// disables it.
func New(routingEngine *routing.Engine, templates *template.Store, fetchers map[string]fetch.Fetcher, jsRenderedDomains []string) *Orchestrator {
	return &Orchestrator{
		routing:           routingEngine,
		templates:         templates,
		fetchers:          fetchers,
		executor:          extract.NewExecutor(),
		serializer:        markdown.NewSerializer(),
		defaultTimeout:    DefaultTimeout,
		jsRenderedDomains: classify.NewJSRenderedDomainSet(jsRenderedDomains),
	}
}

// Convert runs one URL through the full pipeline and returns its outcome.
// It never panics on a bad or unreachable URL; failures are reported via
// Output.Error, not a returned error, since the outcome record itself
// (timings, whichever fetcher/template ran) is meaningful even on failure.
func (o *Orchestrator) Convert(ctx context.Context, in Input) Output {
	start := time.Now()
	timings := make(map[string]int64)

	if in.URL == "" {
		timings["total"] = time.Since(start).Milliseconds()
		return Output{
			Metadata: Metadata{ElapsedMsByPhase: timings},
			Error:    &ErrorInfo{Kind: classify.RoutingInvalid, Detail: "url is empty"},
		}
	}

	budget := o.defaultTimeout
	if in.UserTimeoutMs > 0 {
		budget = time.Duration(in.UserTimeoutMs) * time.Millisecond
	}
	deadline := start.Add(budget)

	fctx := routing.FetchContext{
		URL:           in.URL,
		EffectiveHost: routing.EffectiveHost(in.URL),
		UserHeaders:   in.ExtraHeaders,
		UserTimeoutMs: in.UserTimeoutMs,
	}

	result, plan, fetchErr := o.fetchWithEscalation(ctx, in, fctx, deadline, timings)
	if fetchErr != nil {
		timings["total"] = time.Since(start).Milliseconds()
		return Output{
			Metadata: Metadata{URL: in.URL, FetcherUsed: plan.FetcherID, ElapsedMsByPhase: timings},
			Error:    fetchErr,
		}
	}

	decodeStart := time.Now()
	decoded, err := encoding.Decode(result.ContentBytes, result.ResponseHeaders)
	timings["decode"] = time.Since(decodeStart).Milliseconds()
	if err != nil {
		timings["total"] = time.Since(start).Milliseconds()
		return Output{
			Metadata: Metadata{URL: in.URL, FinalURL: result.FinalURL, FetcherUsed: result.FetcherUsed, ElapsedMsByPhase: timings},
			Error:    &ErrorInfo{Kind: classify.DecodeFailure, Detail: err.Error()},
		}
	}

	matchStart := time.Now()
	tmpl := o.templates.Match(routing.EffectiveHost(result.FinalURL))
	timings["match"] = time.Since(matchStart).Milliseconds()

	extractStart := time.Now()
	doc, extractErr := o.executor.Run(decoded.Text, result.FinalURL, tmpl)

	// Quality policy: a site-specific template that produces too little
	// content (or fails the title/content invariant) gets exactly one
	// retry against the generic template on the same HTML.
	siteSpecific := !tmpl.IsGeneric()
	if (extractErr != nil || doc.ContentCharCount < extract.MinContentChars) && siteSpecific {
		if generic := o.templates.Generic(); generic != nil {
			if retryDoc, retryErr := o.executor.Run(decoded.Text, result.FinalURL, generic); retryErr == nil || retryDoc.ContentCharCount > doc.ContentCharCount {
				doc, extractErr, tmpl = retryDoc, retryErr, generic
			}
		}
	}
	timings["extract"] = time.Since(extractStart).Milliseconds()

	if extractErr != nil || (siteSpecific && doc.ContentCharCount < extract.MinContentChars) {
		timings["total"] = time.Since(start).Milliseconds()
		return Output{
			Metadata: Metadata{
				URL: in.URL, FinalURL: result.FinalURL, FetcherUsed: result.FetcherUsed,
				TemplateUsed: tmpl.Name, ContentCharCount: doc.ContentCharCount,
				ElapsedMsByPhase: timings,
			},
			Error: &ErrorInfo{Kind: classify.ExtractionInsufficient, Detail: "content_char_count below threshold after generic-template retry"},
		}
	}

	serializeStart := time.Now()
	md, err := o.serializer.Serialize(doc)
	timings["serialize"] = time.Since(serializeStart).Milliseconds()
	timings["total"] = time.Since(start).Milliseconds()
	if err != nil {
		// A serializer failure is internal (bad converter input built
		// from a well-formed document) and reuses FetcherInternal as the
		// catch-all internal-error kind, since the closed ErrorKind enum
		// has no dedicated serialization kind.
		return Output{
			Metadata: Metadata{URL: in.URL, FinalURL: result.FinalURL, FetcherUsed: result.FetcherUsed, TemplateUsed: tmpl.Name, ElapsedMsByPhase: timings},
			Error:    &ErrorInfo{Kind: classify.FetcherInternal, Detail: err.Error()},
		}
	}

	return Output{
		Markdown: md,
		Metadata: Metadata{
			Title: doc.Title, URL: in.URL, FinalURL: result.FinalURL,
			Author: doc.Author, PublishTime: doc.PublishTime, Source: doc.SourceName, Language: doc.Language,
			FetcherUsed: result.FetcherUsed, TemplateUsed: tmpl.Name, ContentCharCount: doc.ContentCharCount,
			ElapsedMsByPhase: timings,
		},
	}
}

// fetchWithEscalation decides a plan, fetches, classifies on error, and
// escalates while budget and depth allow it.
func (o *Orchestrator) fetchWithEscalation(ctx context.Context, in Input, fctx routing.FetchContext, deadline time.Time, timings map[string]int64) (fetch.Result, routing.FetchPlan, *ErrorInfo) {
	var result fetch.Result
	var plan routing.FetchPlan

	for attempt := 0; ; attempt++ {
		routeStart := time.Now()
		if attempt == 0 && in.ForceFetcher != "" {
			plan = routing.FetchPlan{FetcherID: in.ForceFetcher, TimeoutMs: int(time.Until(deadline).Milliseconds()), RuleName: "__force_fetcher__"}
		} else {
			plan = o.routing.Decide(fctx)
		}
		timings["routing"] += time.Since(routeStart).Milliseconds()

		fetcher, ok := o.fetchers[plan.FetcherID]
		if !ok {
			return result, plan, &ErrorInfo{Kind: classify.FetcherInternal, Detail: fmt.Sprintf("no fetcher registered for %q", plan.FetcherID)}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return result, plan, &ErrorInfo{Kind: classify.BudgetExceeded, Detail: "request budget exhausted before fetch"}
		}
		timeout := remaining
		if plan.TimeoutMs > 0 {
			if planTimeout := time.Duration(plan.TimeoutMs) * time.Millisecond; planTimeout < timeout {
				timeout = planTimeout
			}
		}

		fetchCtx, cancel := context.WithTimeout(ctx, timeout)
		fetchStart := time.Now()
		result = fetcher.Fetch(fetchCtx, fetch.Request{Context: fctx, Plan: plan})
		cancel()
		timings["fetch"] += time.Since(fetchStart).Milliseconds()

		kind := result.Kind
		fetchErr := result.Err

		// A fetcher reporting no transport/status error can still have
		// handed back a soft failure: a CAPTCHA challenge or a near-empty
		// SPA shell that never rendered. Classify the body before trusting
		// a 2xx as real content, since no fetcher inspects the body itself.
		if fetchErr == nil {
			soft := classify.Classify(classify.Input{
				StatusCode:        result.StatusCode,
				Body:              result.ContentBytes,
				Domain:            fctx.EffectiveHost,
				JSRenderedDomains: o.jsRenderedDomains,
				HasArticleOrMain:  classify.HasArticleOrMainTag(result.ContentBytes),
			})
			if soft != classify.CaptchaDetected && soft != classify.JavaScriptRequired {
				return result, plan, nil
			}
			kind = soft
			fetchErr = fmt.Errorf("%s: response body classified as %s", plan.FetcherID, soft)
		} else if kind == "" {
			kind = classify.Classify(classify.Input{
				Err: fetchErr, StatusCode: result.StatusCode,
				Body: result.ContentBytes, Domain: fctx.EffectiveHost,
				JSRenderedDomains: o.jsRenderedDomains,
				HasArticleOrMain:  classify.HasArticleOrMainTag(result.ContentBytes),
			})
		}

		remaining = time.Until(deadline)
		canEscalate := plan.OnErrorEscalateTo != "" && attempt < maxEscalations && remaining >= escalationBudgetFloor
		if !canEscalate {
			return result, plan, &ErrorInfo{Kind: kind, Detail: fetchErr.Error()}
		}

		next, ok := routing.NextEscalation(fctx, plan, kind)
		if !ok {
			return result, plan, &ErrorInfo{Kind: kind, Detail: fetchErr.Error()}
		}
		fctx = next
	}
}
