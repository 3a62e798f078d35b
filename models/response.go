package models

// ConvertResponse is the response for POST /v1/convert.
type ConvertResponse struct {
	Markdown string       `json:"markdown"`
	Metadata ConvertMeta  `json:"metadata"`
	Error    *ErrorDetail `json:"error,omitempty"`

	// CacheStatus is "hit" or "miss"; empty when caching wasn't requested.
	CacheStatus string `json:"cache_status,omitempty"`
}

// ConvertMeta mirrors orchestrator.Metadata for the wire format.
type ConvertMeta struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	FinalURL    string `json:"final_url"`
	Author      string `json:"author,omitempty"`
	PublishTime string `json:"publish_time,omitempty"`
	Source      string `json:"source,omitempty"`
	Language    string `json:"language,omitempty"`

	FetcherUsed      string `json:"fetcher_used"`
	TemplateUsed     string `json:"template_used"`
	ContentCharCount int    `json:"content_char_count"`

	ElapsedMsByPhase map[string]int64 `json:"elapsed_ms_by_phase"`
}

// HealthResponse is the response for GET /v1/health.
type HealthResponse struct {
	Status  string `json:"status"` // "healthy"
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}
