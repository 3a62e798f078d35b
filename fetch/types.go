// Package fetch implements the fetcher plugins: static_http, headless_browser
// and browser_attach. Each satisfies Fetcher and is the only layer allowed
// to perform network I/O.
package fetch

import (
	"context"
	"net/http"
	"time"

	"github.com/use-agent/distill/classify"
	"github.com/use-agent/distill/routing"
)

// Request is what the Orchestrator hands a Fetcher: the FetchContext plus
// the resolved FetchPlan for this attempt.
type Request struct {
	Context routing.FetchContext
	Plan    routing.FetchPlan
}

// Result is the outcome of one fetch attempt.
type Result struct {
	FinalURL        string
	StatusCode      int
	ContentBytes    []byte
	ResponseHeaders http.Header
	ElapsedMs       int64
	FetcherUsed     string
	ScreenshotBytes []byte // optional, diagnostics only
	Truncated       bool

	// Err, if set, carries the classified failure; ContentBytes may still
	// hold a partial/diagnostic body.
	Err  error
	Kind classify.ErrorKind
}

// Fetcher is the uniform contract every fetcher plugin implements.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, req Request) Result
}

// failure builds a Result carrying a classified error, timing it against
// start.
func failure(name string, start time.Time, statusCode int, err error, kind classify.ErrorKind) Result {
	return Result{
		FetcherUsed: name,
		StatusCode:  statusCode,
		ElapsedMs:   time.Since(start).Milliseconds(),
		Err:         err,
		Kind:        kind,
	}
}
