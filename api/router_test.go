package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/distill/cache"
	"github.com/use-agent/distill/config"
	"github.com/use-agent/distill/fetch"
	"github.com/use-agent/distill/models"
	"github.com/use-agent/distill/orchestrator"
	"github.com/use-agent/distill/routing"
	"github.com/use-agent/distill/template"
)

type fakeFetcher struct{ body string }

func (f *fakeFetcher) Name() string { return "static_http" }
func (f *fakeFetcher) Fetch(ctx context.Context, req fetch.Request) fetch.Result {
	return fetch.Result{
		FinalURL:        req.Context.URL,
		StatusCode:      200,
		ContentBytes:    []byte(f.body),
		ResponseHeaders: http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		FetcherUsed:     "static_http",
	}
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rulesPath := filepath.Join(t.TempDir(), "routing.yaml")
	os.WriteFile(rulesPath, []byte(`
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
`), 0o644)
	rstore, err := routing.NewStore(rulesPath, nil)
	if err != nil {
		t.Fatalf("routing.NewStore: %v", err)
	}

	tmplDir := t.TempDir()
	os.WriteFile(filepath.Join(tmplDir, "generic.yaml"), []byte(`
name: generic
version: 1.0.0
domains: ["*"]
priority: 0
selectors:
  title: h1
  content: article
`), 0o644)
	tstore, err := template.NewStore(tmplDir, nil)
	if err != nil {
		t.Fatalf("template.NewStore: %v", err)
	}

	o := orchestrator.New(routing.NewEngine(rstore, 16), tstore, map[string]fetch.Fetcher{
		"static_http": &fakeFetcher{body: `<html><body><h1>Hello</h1><article><p>World.</p></article></body></html>`},
	}, nil)

	cfg := config.Load()
	cfg.Server.Mode = gin.TestMode
	return NewRouter(o, cache.New(10), cfg, time.Now())
}

func TestRouter_HealthOK(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestRouter_ConvertOK(t *testing.T) {
	r := newTestRouter(t)
	body := `{"url": "https://www.example.com/article-1"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/convert", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp models.ConvertResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Metadata.Title != "Hello" {
		t.Errorf("Title = %q, want Hello", resp.Metadata.Title)
	}
	if !strings.Contains(resp.Markdown, "World.") {
		t.Errorf("Markdown missing body text: %q", resp.Markdown)
	}
}

func TestRouter_ConvertInvalidInput(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/convert", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
