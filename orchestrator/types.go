// Package orchestrator wires routing, fetching, decoding, extraction and
// serialization into a single end-to-end operation: Route -> Fetch ->
// Retry/Escalate on error -> Extract -> Serialize, with a per-request
// time budget and an outcome record.
package orchestrator

import "github.com/use-agent/distill/classify"

// Input is the orchestrator's entry point, the "convert this URL" request.
type Input struct {
	URL string

	// UserTimeoutMs bounds the whole request, including every retry and
	// escalation. Zero selects the orchestrator's default.
	UserTimeoutMs int

	// ExtraHeaders are merged over whatever the matched routing rule sets.
	ExtraHeaders map[string]string

	// ForceFetcher, if set, bypasses the Routing Engine and pins the
	// first attempt to this fetcher id. A forced attempt has no escalation
	// target, so its failure is returned without escalating.
	ForceFetcher string
}

// Metadata is the document-level half of an Output.
type Metadata struct {
	Title       string
	URL         string
	FinalURL    string
	Author      string
	PublishTime string
	Source      string
	Language    string

	FetcherUsed      string
	TemplateUsed     string
	ContentCharCount int

	// ElapsedMsByPhase is one entry per pipeline phase ("routing",
	// "fetch", "decode", "match", "extract", "serialize", "total").
	ElapsedMsByPhase map[string]int64
}

// ErrorInfo reports a terminal failure, populated only when Output.Error
// is non-nil.
type ErrorInfo struct {
	Kind   classify.ErrorKind
	Detail string
}

// Output is the orchestrator's result. Markdown is empty whenever Error is
// set.
type Output struct {
	Markdown string
	Metadata Metadata
	Error    *ErrorInfo
}
