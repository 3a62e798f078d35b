package models

// Error codes used in API responses. A subset tracks classify.ErrorKind
// directly (the same kind string, uppercase with underscores); the rest
// are API-layer concerns (auth, rate limiting, bad input) that never
// appear in an Orchestrator outcome.
const (
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
