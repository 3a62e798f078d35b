package orchestrator

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/use-agent/distill/classify"
	"github.com/use-agent/distill/fetch"
	"github.com/use-agent/distill/routing"
	"github.com/use-agent/distill/template"
)

// fakeFetcher returns a canned Result per call, optionally different on
// the second invocation, so tests can simulate an escalation.
type fakeFetcher struct {
	name    string
	results []fetch.Result
	calls   int
}

func (f *fakeFetcher) Name() string { return f.name }

func (f *fakeFetcher) Fetch(ctx context.Context, req fetch.Request) fetch.Result {
	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	r := f.results[i]
	r.FetcherUsed = f.name
	return r
}

func htmlResult(body string) fetch.Result {
	return fetch.Result{
		FinalURL:        "https://www.example.com/article-1",
		StatusCode:      200,
		ContentBytes:    []byte(body),
		ResponseHeaders: http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
	}
}

func writeRules(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "routing.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write routing fixture: %v", err)
	}
	return path
}

func writeTemplates(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "generic.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write template fixture: %v", err)
	}
	return dir
}

const catchAllStaticRules = `
version: 1
defaults:
  timeout_ms: 30000
rules:
  - name: catch-all
    priority: 0
    enabled: true
    conditions:
      domain: "*"
    action:
      fetcher: static_http
`

const escalatingRules = `
version: 1
defaults:
  timeout_ms: 30000
rules:
  - name: js-required
    priority: 10
    enabled: true
    conditions:
      domain: "*"
      error_kind: JAVASCRIPT_REQUIRED
    action:
      fetcher: headless_browser
  - name: captcha-detected
    priority: 10
    enabled: true
    conditions:
      domain: "*"
      error_kind: CAPTCHA_DETECTED
    action:
      fetcher: headless_browser
  - name: catch-all
    priority: 0
    enabled: true
    conditions:
      domain: "*"
    action:
      fetcher: static_http
      on_error_escalate_to: headless_browser
`

const genericTemplateYAML = `
name: generic
version: 1.0.0
domains: ["*"]
priority: 0
selectors:
  title: h1
  content: article
`

func newTestOrchestrator(t *testing.T, rulesYAML string, fetchers map[string]fetch.Fetcher, jsRenderedDomains ...string) *Orchestrator {
	t.Helper()
	rstore, err := routing.NewStore(writeRules(t, rulesYAML), nil)
	if err != nil {
		t.Fatalf("routing.NewStore: %v", err)
	}
	tstore, err := template.NewStore(writeTemplates(t, genericTemplateYAML), nil)
	if err != nil {
		t.Fatalf("template.NewStore: %v", err)
	}
	return New(routing.NewEngine(rstore, 16), tstore, fetchers, jsRenderedDomains)
}

func TestConvert_SimpleArticle(t *testing.T) {
	static := &fakeFetcher{name: "static_http", results: []fetch.Result{
		htmlResult(`<html><body><h1>Hello</h1><article><p>World.</p></article></body></html>`),
	}}
	o := newTestOrchestrator(t, catchAllStaticRules, map[string]fetch.Fetcher{"static_http": static})

	out := o.Convert(context.Background(), Input{URL: "https://www.example.com/article-1"})
	if out.Error != nil {
		t.Fatalf("unexpected error: %+v", out.Error)
	}
	if out.Metadata.Title != "Hello" {
		t.Errorf("Title = %q, want Hello", out.Metadata.Title)
	}
	if out.Metadata.ContentCharCount != 5 {
		t.Errorf("ContentCharCount = %d, want 5", out.Metadata.ContentCharCount)
	}
	if out.Metadata.FetcherUsed != "static_http" {
		t.Errorf("FetcherUsed = %q, want static_http", out.Metadata.FetcherUsed)
	}
	if out.Metadata.TemplateUsed != "generic" {
		t.Errorf("TemplateUsed = %q, want generic", out.Metadata.TemplateUsed)
	}
}

// TestConvert_EscalatesOnClassifiedError exercises the real classification
// path: the static fetcher reports a plain 200 success with a thin SPA
// shell body and no Err/Kind of its own, and the orchestrator's own
// post-fetch classification of that body must be what detects
// JAVASCRIPT_REQUIRED and drives the escalation to headless_browser.
func TestConvert_EscalatesOnClassifiedError(t *testing.T) {
	thinBody := htmlResult(`<html><body><div id="root"></div></body></html>`)

	static := &fakeFetcher{name: "static_http", results: []fetch.Result{thinBody}}
	richBody := htmlResult(`<html><body><h1>Hydrated</h1><article><p>` +
		"Plenty of real rendered content goes here, long enough to comfortably clear the two hundred non-whitespace character quality threshold so the orchestrator accepts this hydrated attempt without retrying against the generic template a second time." +
		`</p></article></body></html>`)
	headless := &fakeFetcher{name: "headless_browser", results: []fetch.Result{richBody}}

	o := newTestOrchestrator(t, escalatingRules, map[string]fetch.Fetcher{
		"static_http":      static,
		"headless_browser": headless,
	}, "example.com")

	out := o.Convert(context.Background(), Input{URL: "https://www.example.com/spa"})
	if out.Error != nil {
		t.Fatalf("unexpected error: %+v", out.Error)
	}
	if out.Metadata.FetcherUsed != "headless_browser" {
		t.Errorf("FetcherUsed = %q, want headless_browser", out.Metadata.FetcherUsed)
	}
	if static.calls != 1 || headless.calls != 1 {
		t.Errorf("calls = static:%d headless:%d, want 1 and 1", static.calls, headless.calls)
	}
}

// TestConvert_CaptchaDetected exercises the same real classification path
// for a challenge page: the fetcher reports a plain 200 success, and only
// the orchestrator's own body classification can recognize the captcha
// marker and turn it into a CAPTCHA_DETECTED error. The catch-all escalates
// once to headless_browser, which hits the same challenge page and has no
// further escalation configured, so the final outcome is the classified
// error rather than a serialized challenge page.
func TestConvert_CaptchaDetected(t *testing.T) {
	captchaBody := htmlResult(`<html><body><h1>Are you human?</h1><p>Please complete the CAPTCHA to continue.</p></body></html>`)

	static := &fakeFetcher{name: "static_http", results: []fetch.Result{captchaBody}}
	headless := &fakeFetcher{name: "headless_browser", results: []fetch.Result{captchaBody}}

	o := newTestOrchestrator(t, escalatingRules, map[string]fetch.Fetcher{
		"static_http":      static,
		"headless_browser": headless,
	})

	out := o.Convert(context.Background(), Input{URL: "https://www.example.com/gate"})
	if out.Error == nil || out.Error.Kind != classify.CaptchaDetected {
		t.Fatalf("Error = %+v, want CAPTCHA_DETECTED", out.Error)
	}
	if out.Markdown != "" {
		t.Errorf("Markdown = %q, want empty on captcha failure", out.Markdown)
	}
	if static.calls != 1 || headless.calls != 1 {
		t.Errorf("calls = static:%d headless:%d, want 1 and 1", static.calls, headless.calls)
	}
}

func TestConvert_UnregisteredFetcherIsInternalError(t *testing.T) {
	o := newTestOrchestrator(t, catchAllStaticRules, map[string]fetch.Fetcher{})
	out := o.Convert(context.Background(), Input{URL: "https://example.com/"})
	if out.Error == nil || out.Error.Kind != classify.FetcherInternal {
		t.Fatalf("Error = %+v, want FETCHER_INTERNAL", out.Error)
	}
}

func TestConvert_EmptyURLIsRoutingInvalid(t *testing.T) {
	o := newTestOrchestrator(t, catchAllStaticRules, map[string]fetch.Fetcher{})
	out := o.Convert(context.Background(), Input{})
	if out.Error == nil || out.Error.Kind != classify.RoutingInvalid {
		t.Fatalf("Error = %+v, want ROUTING_INVALID", out.Error)
	}
}
