package fetch

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	tls "github.com/refraction-networking/utls"

	"github.com/use-agent/distill/classify"
)

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to
// http/1.1, computed once and reused for every connection so every static
// fetch presents the same fingerprint a real Chrome would.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// StaticHTTPFetcher is the static_http fetcher plugin: a keep-alive HTTP
// client with a Chrome TLS fingerprint, real content-encoding negotiation,
// a bounded redirect chain, and eTLD+1 cookie forwarding across hops.
type StaticHTTPFetcher struct {
	client         *http.Client
	userAgent      string
	acceptLanguage string
	maxBodyBytes   int64

	cookieMu sync.Mutex
	cookies  map[string][]*http.Cookie // keyed by registrable domain
}

// StaticHTTPConfig configures NewStaticHTTPFetcher.
type StaticHTTPConfig struct {
	UserAgent      string
	AcceptLanguage string
	MaxBodyBytes   int64
}

func NewStaticHTTPFetcher(cfg StaticHTTPConfig) *StaticHTTPFetcher {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	f := &StaticHTTPFetcher{
		userAgent:      cfg.UserAgent,
		acceptLanguage: cfg.AcceptLanguage,
		maxBodyBytes:   cfg.MaxBodyBytes,
		cookies:        make(map[string][]*http.Cookie),
	}

	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("static_http: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2: false,
	}

	f.client = &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > 10 {
				return fmt.Errorf("too many redirects")
			}
			f.forwardCookies(req)
			return nil
		},
	}
	return f
}

func (f *StaticHTTPFetcher) Name() string { return "static_http" }

func (f *StaticHTTPFetcher) Fetch(ctx context.Context, r Request) Result {
	start := time.Now()

	timeout := time.Duration(r.Plan.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, r.Context.URL, nil)
	if err != nil {
		return failure(f.Name(), start, 0, err, classify.FetcherInternal)
	}

	httpReq.Header.Set("User-Agent", f.userAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", f.acceptLanguage)
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")
	for k, v := range r.Plan.RequestHeaders {
		httpReq.Header.Set(k, v)
	}
	for k, v := range r.Context.UserHeaders {
		httpReq.Header.Set(k, v)
	}

	f.attachCookies(httpReq)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		kind := classify.Classify(classify.Input{Err: err})
		return failure(f.Name(), start, 0, err, kind)
	}
	defer resp.Body.Close()

	f.storeCookies(resp)

	body, err := readDecompressed(resp, f.maxBodyBytes)
	if err != nil {
		return failure(f.Name(), start, resp.StatusCode, err, classify.DecodeFailure)
	}
	body, truncated := truncate(body, f.maxBodyBytes)

	result := Result{
		FinalURL:        resp.Request.URL.String(),
		StatusCode:      resp.StatusCode,
		ContentBytes:    body,
		ResponseHeaders: resp.Header,
		ElapsedMs:       time.Since(start).Milliseconds(),
		FetcherUsed:     f.Name(),
		Truncated:       truncated,
	}

	if kind, ok := classify.StatusToKind(resp.StatusCode); ok {
		result.Kind = kind
		result.Err = fmt.Errorf("static_http: status %d", resp.StatusCode)
	}
	return result
}

// readDecompressed applies the content-encoding the server actually chose
// (not necessarily what we asked for) and returns the raw decoded bytes.
func readDecompressed(resp *http.Response, max int64) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("static_http: gzip: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		reader = flate.NewReader(resp.Body)
	case "br":
		reader = brotli.NewReader(resp.Body)
	}

	limit := max
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	return io.ReadAll(io.LimitReader(reader, limit+1))
}

func (f *StaticHTTPFetcher) forwardCookies(req *http.Request) {
	f.attachCookies(req)
}

func (f *StaticHTTPFetcher) attachCookies(req *http.Request) {
	domain := registrableDomain(req.URL.Hostname())
	f.cookieMu.Lock()
	defer f.cookieMu.Unlock()
	for _, c := range f.cookies[domain] {
		req.AddCookie(c)
	}
}

func (f *StaticHTTPFetcher) storeCookies(resp *http.Response) {
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return
	}
	host := resp.Request.URL.Hostname()
	domain := registrableDomain(host)

	f.cookieMu.Lock()
	defer f.cookieMu.Unlock()
	f.cookies[domain] = mergeCookies(f.cookies[domain], cookies)
}

func mergeCookies(existing []*http.Cookie, fresh []*http.Cookie) []*http.Cookie {
	byName := make(map[string]*http.Cookie, len(existing)+len(fresh))
	for _, c := range existing {
		byName[c.Name] = c
	}
	for _, c := range fresh {
		byName[c.Name] = c
	}
	out := make([]*http.Cookie, 0, len(byName))
	for _, c := range byName {
		out = append(out, c)
	}
	return out
}
