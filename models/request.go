package models

// ConvertRequest is the payload for POST /v1/convert.
type ConvertRequest struct {
	// URL is the page to convert. Required.
	URL string `json:"url" binding:"required,url"`

	// UserTimeoutMs bounds the whole request, including every retry and
	// escalation. Default: 30000. Max: 120000.
	UserTimeoutMs int `json:"user_timeout_ms,omitempty" binding:"omitempty,min=1,max=120000"`

	// ExtraHeaders are merged over whatever the matched routing rule sets.
	ExtraHeaders map[string]string `json:"extra_headers,omitempty"`

	// ForceFetcher bypasses the Routing Engine and pins the first attempt
	// to this fetcher id. One of static_http, headless_browser,
	// browser_attach.
	ForceFetcher string `json:"force_fetcher,omitempty" binding:"omitempty,oneof=static_http headless_browser browser_attach"`

	// MaxAgeMs, if positive, allows a cached response of at most this age
	// to be returned instead of converting again.
	MaxAgeMs int `json:"max_age_ms,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *ConvertRequest) Defaults() {
	if r.UserTimeoutMs == 0 {
		r.UserTimeoutMs = 30_000
	}
}
