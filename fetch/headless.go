package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/distill/classify"
)

// HeadlessBrowserFetcher is the headless_browser fetcher plugin: it checks
// out a pooled browser context, navigates, applies the plan's wait
// strategy, optionally scrolls to the bottom, and extracts the rendered
// HTML. Lifecycle mirrors the original rod-based scrape path: stealth and
// headers must be installed before Navigate, and the page is always reset
// to about:blank before it is returned to the pool.
type HeadlessBrowserFetcher struct {
	pool           *BrowserPool
	defaultStealth bool
}

func NewHeadlessBrowserFetcher(pool *BrowserPool, defaultStealth bool) *HeadlessBrowserFetcher {
	return &HeadlessBrowserFetcher{pool: pool, defaultStealth: defaultStealth}
}

func (f *HeadlessBrowserFetcher) Name() string { return "headless_browser" }

func (f *HeadlessBrowserFetcher) Fetch(ctx context.Context, r Request) Result {
	start := time.Now()

	timeout := time.Duration(r.Plan.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	handle, err := f.pool.Get()
	if err != nil {
		return failure(f.Name(), start, 0, fmt.Errorf("headless_browser: acquire page: %w", err), classify.FetcherInternal)
	}

	succeeded := false
	defer func() {
		_ = handle.page.Navigate("about:blank")
		f.pool.Put(handle, succeeded)
	}()

	if f.defaultStealth {
		if _, err := handle.page.EvalOnNewDocument(stealth.JS); err != nil {
			// Proceed without stealth; many sites don't require it.
			_ = err
		}
	}

	if len(r.Plan.RequestHeaders) > 0 || len(r.Context.UserHeaders) > 0 {
		headers := make(map[string]string, len(r.Plan.RequestHeaders)+len(r.Context.UserHeaders))
		for k, v := range r.Plan.RequestHeaders {
			headers[k] = v
		}
		for k, v := range r.Context.UserHeaders {
			headers[k] = v
		}
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(headers)}.Call(handle.page)
	}

	page := handle.page.Context(ctx)

	if navErr := page.Navigate(r.Context.URL); navErr != nil {
		return failure(f.Name(), start, 0, fmt.Errorf("headless_browser: navigate: %w", navErr), classify.NetworkTimeout)
	}

	applyWaitStrategy(page, parseWaitUntil(r.Plan.WaitUntil))

	if r.Plan.ScrollToBottom {
		scrollToBottom(page)
	}

	statusCode := navigationStatus(page)

	html, err := page.HTML()
	if err != nil {
		return failure(f.Name(), start, statusCode, fmt.Errorf("headless_browser: extract html: %w", err), classify.FetcherInternal)
	}

	finalURL := evalStringOrEmpty(page, `() => window.location.href`)
	if finalURL == "" {
		finalURL = r.Context.URL
	}

	succeeded = true
	result := Result{
		FinalURL:     finalURL,
		StatusCode:   statusCode,
		ContentBytes: []byte(html),
		ElapsedMs:    time.Since(start).Milliseconds(),
		FetcherUsed:  f.Name(),
	}
	if kind, ok := classify.StatusToKind(statusCode); ok {
		result.Kind = kind
		result.Err = fmt.Errorf("headless_browser: status %d", statusCode)
	}
	return result
}

// scrollToBottom scrolls down in viewport-height increments until the
// page stops growing, letting lazy-loaded content trigger the same way
// the original scraper's execScroll action did.
func scrollToBottom(page *rod.Page) {
	res, err := page.Eval(`() => window.innerHeight`)
	if err != nil {
		return
	}
	viewportHeight := float64(res.Value.Int())
	if viewportHeight <= 0 {
		viewportHeight = 800
	}

	const maxSteps = 40
	var lastHeight int
	for i := 0; i < maxSteps; i++ {
		if err := page.Mouse.Scroll(0, viewportHeight, 0); err != nil {
			return
		}
		time.Sleep(100 * time.Millisecond)

		heightRes, err := page.Eval(`() => document.body.scrollHeight`)
		if err != nil {
			return
		}
		height := heightRes.Value.Int()
		if height == lastHeight {
			return
		}
		lastHeight = height
	}
}

func navigationStatus(page *rod.Page) int {
	res, err := page.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}

func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
