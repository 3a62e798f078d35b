// Command distill-server runs the HTTP API: POST /v1/convert and
// GET /v1/health, wired over the same Orchestrator contract cmd/distill
// uses for its single-shot mode.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/distill/api"
	"github.com/use-agent/distill/cache"
	"github.com/use-agent/distill/config"
	"github.com/use-agent/distill/fetch"
	"github.com/use-agent/distill/orchestrator"
	"github.com/use-agent/distill/routing"
	"github.com/use-agent/distill/template"
)

func main() {
	cfg := config.Load()
	initLogger(cfg.Log)
	slog.Info("distill-server starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
	)

	rstore, err := routing.NewStore(cfg.Routing.RulesPath, slog.Default())
	if err != nil {
		slog.Error("failed to load routing rules", "error", err)
		os.Exit(1)
	}
	if cfg.Routing.WatchEnabled {
		if err := rstore.Watch(500 * time.Millisecond); err != nil {
			slog.Warn("routing hot-reload watch failed to start", "error", err)
		}
	}

	tstore, err := template.NewStore(cfg.Template.Root, slog.Default())
	if err != nil {
		slog.Error("failed to load templates", "error", err)
		os.Exit(1)
	}
	if cfg.Template.WatchEnabled {
		if err := tstore.Watch(500 * time.Millisecond); err != nil {
			slog.Warn("template hot-reload watch failed to start", "error", err)
		}
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
		slog.Error("failed to launch browser pool", "error", err)
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
	cc := cache.New(cfg.Cache.MaxEntries)
	defer cc.Stop()

	startTime := time.Now()
	router := api.NewRouter(o, cc, cfg, startTime)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("distill-server stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
