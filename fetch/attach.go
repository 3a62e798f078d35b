package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/distill/classify"
)

// BrowserAttachFetcher is the browser_attach fetcher plugin: it connects to
// an externally managed Chrome instance over CDP rather than launching or
// pooling its own, failing fast if the endpoint isn't reachable. Grounded
// on the original scraper's per-request CDP path, generalized to a
// standing connection reused across fetches instead of one dialed per
// request.
type BrowserAttachFetcher struct {
	controlURL string
	browser    *rod.Browser
}

// NewBrowserAttachFetcher dials controlURL immediately so construction
// itself fails fast when the debug endpoint is unreachable, per §4.4.3.
func NewBrowserAttachFetcher(controlURL string) (*BrowserAttachFetcher, error) {
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("browser_attach: connect to %s: %w", controlURL, err)
	}
	return &BrowserAttachFetcher{controlURL: controlURL, browser: browser}, nil
}

func (f *BrowserAttachFetcher) Name() string { return "browser_attach" }

func (f *BrowserAttachFetcher) Fetch(ctx context.Context, r Request) Result {
	start := time.Now()

	timeout := time.Duration(r.Plan.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rawPage, err := f.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return failure(f.Name(), start, 0, fmt.Errorf("browser_attach: create page: %w", err), classify.FetcherInternal)
	}
	defer func() { _ = rawPage.Close() }()

	if len(r.Plan.RequestHeaders) > 0 || len(r.Context.UserHeaders) > 0 {
		headers := make(map[string]string, len(r.Plan.RequestHeaders)+len(r.Context.UserHeaders))
		for k, v := range r.Plan.RequestHeaders {
			headers[k] = v
		}
		for k, v := range r.Context.UserHeaders {
			headers[k] = v
		}
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(headers)}.Call(rawPage)
	}

	page := rawPage.Context(ctx)

	if navErr := page.Navigate(r.Context.URL); navErr != nil {
		return failure(f.Name(), start, 0, fmt.Errorf("browser_attach: navigate: %w", navErr), classify.NetworkTimeout)
	}

	applyWaitStrategy(page, parseWaitUntil(r.Plan.WaitUntil))

	if r.Plan.ScrollToBottom {
		scrollToBottom(page)
	}

	statusCode := navigationStatus(page)

	html, err := page.HTML()
	if err != nil {
		return failure(f.Name(), start, statusCode, fmt.Errorf("browser_attach: extract html: %w", err), classify.FetcherInternal)
	}

	finalURL := evalStringOrEmpty(page, `() => window.location.href`)
	if finalURL == "" {
		finalURL = r.Context.URL
	}

	result := Result{
		FinalURL:     finalURL,
		StatusCode:   statusCode,
		ContentBytes: []byte(html),
		ElapsedMs:    time.Since(start).Milliseconds(),
		FetcherUsed:  f.Name(),
	}
	if kind, ok := classify.StatusToKind(statusCode); ok {
		result.Kind = kind
		result.Err = fmt.Errorf("browser_attach: status %d", statusCode)
	}
	return result
}

// Close disconnects from the CDP endpoint without killing the remote
// browser process.
func (f *BrowserAttachFetcher) Close() error {
	return f.browser.Close()
}
