// Command distill is the single-shot CLI: it converts one URL and writes
// the Orchestrator output as JSON to stdout, exiting non-zero on failure.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/use-agent/distill/api/handler"
	"github.com/use-agent/distill/config"
	"github.com/use-agent/distill/fetch"
	"github.com/use-agent/distill/orchestrator"
	"github.com/use-agent/distill/routing"
	"github.com/use-agent/distill/template"
)

var (
	url          = flag.String("url", "", "page to convert (required)")
	timeoutMs    = flag.Int("timeout-ms", 30_000, "end-to-end budget in milliseconds")
	forceFetcher = flag.String("force-fetcher", "", "bypass routing and pin this fetcher id")
	routingPath  = flag.String("routing", "", "override DISTILL_ROUTING_PATH")
	templateRoot = flag.String("templates", "", "override DISTILL_TEMPLATE_ROOT")
	headerFlags  stringList
)

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	flag.Var(&headerFlags, "header", "extra request header as Key:Value (repeatable)")
	flag.Parse()

	if *url == "" {
		fmt.Fprintln(os.Stderr, "distill: -url is required")
		os.Exit(2)
	}

	cfg := config.Load()
	if *routingPath != "" {
		cfg.Routing.RulesPath = *routingPath
	}
	if *templateRoot != "" {
		cfg.Template.Root = *templateRoot
	}

	headers := make(map[string]string, len(headerFlags))
	for _, h := range headerFlags {
		k, v, ok := strings.Cut(h, ":")
		if !ok {
			fmt.Fprintf(os.Stderr, "distill: -header %q must be Key:Value\n", h)
			os.Exit(2)
		}
		headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	rstore, err := routing.NewStore(cfg.Routing.RulesPath, slog.Default())
	if err != nil {
		fmt.Fprintf(os.Stderr, "distill: load routing rules: %v\n", err)
		os.Exit(1)
	}
	tstore, err := template.NewStore(cfg.Template.Root, slog.Default())
	if err != nil {
		fmt.Fprintf(os.Stderr, "distill: load templates: %v\n", err)
		os.Exit(1)
	}

	pool, err := fetch.NewBrowserPool(fetch.BrowserPoolConfig{
		MinPages:     cfg.BrowserPool.MinPages,
		HardMax:      cfg.BrowserPool.HardMax,
		MemThreshold: cfg.BrowserPool.MemThreshold,
		ScaleStep:    cfg.BrowserPool.ScaleStep,
		Headless:     cfg.Browser.Headless,
		NoSandbox:    cfg.Browser.NoSandbox,
		BrowserBin:   cfg.Browser.BrowserBin,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "distill: launch browser pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Stop()

	fetchers := map[string]fetch.Fetcher{
		"static_http": fetch.NewStaticHTTPFetcher(fetch.StaticHTTPConfig{
			UserAgent:      cfg.Fetch.UserAgent,
			AcceptLanguage: cfg.Fetch.AcceptLanguage,
			MaxBodyBytes:   cfg.Fetch.MaxBodyBytes,
		}),
		"headless_browser": fetch.NewHeadlessBrowserFetcher(pool, false),
	}

	o := orchestrator.New(routing.NewEngine(rstore, cfg.Routing.CacheSize), tstore, fetchers, cfg.Fetch.JSRenderedDomains)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeoutMs)*time.Millisecond+5*time.Second)
	defer cancel()

	out := o.Convert(ctx, orchestrator.Input{
		URL:           *url,
		UserTimeoutMs: *timeoutMs,
		ExtraHeaders:  headers,
		ForceFetcher:  *forceFetcher,
	})

	resp := handler.ToResponse(&out, "")

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		fmt.Fprintf(os.Stderr, "distill: encode output: %v\n", err)
		os.Exit(1)
	}

	if out.Error != nil {
		os.Exit(1)
	}
}
