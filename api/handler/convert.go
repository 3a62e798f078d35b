package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/distill/cache"
	"github.com/use-agent/distill/classify"
	"github.com/use-agent/distill/models"
	"github.com/use-agent/distill/orchestrator"
)

// Convert returns a handler for POST /v1/convert.
//
// Flow:
//  1. Parse & validate request, apply defaults.
//  2. Cache lookup (skipped when MaxAgeMs <= 0).
//  3. Orchestrator.Convert → markdown + metadata, or a classified error.
//  4. Cache store on success.
func Convert(o *orchestrator.Orchestrator, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ConvertRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ConvertResponse{
				Error: &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: err.Error()},
			})
			return
		}
		req.Defaults()

		in := orchestrator.Input{
			URL:           req.URL,
			UserTimeoutMs: req.UserTimeoutMs,
			ExtraHeaders:  req.ExtraHeaders,
			ForceFetcher:  req.ForceFetcher,
		}

		var cacheKey string
		if cc != nil && req.MaxAgeMs > 0 {
			cacheKey = cache.Key(in)
			if cached, hit := cc.Get(cacheKey, req.MaxAgeMs); hit {
				c.JSON(http.StatusOK, ToResponse(cached, "hit"))
				return
			}
		}

		out := o.Convert(c.Request.Context(), in)

		if cc != nil && req.MaxAgeMs > 0 {
			cc.Set(cacheKey, &out)
		}

		status := http.StatusOK
		cacheStatus := ""
		if cc != nil && req.MaxAgeMs > 0 {
			cacheStatus = "miss"
		}
		if out.Error != nil {
			status = statusForErrorKind(out.Error.Kind)
		}
		c.JSON(status, ToResponse(&out, cacheStatus))
	}
}

// ToResponse converts an orchestrator.Output into its wire representation.
// Shared with cmd/distill so the CLI and the API emit identical JSON shapes.
func ToResponse(out *orchestrator.Output, cacheStatus string) models.ConvertResponse {
	resp := models.ConvertResponse{
		Markdown:    out.Markdown,
		CacheStatus: cacheStatus,
		Metadata: models.ConvertMeta{
			Title: out.Metadata.Title, URL: out.Metadata.URL, FinalURL: out.Metadata.FinalURL,
			Author: out.Metadata.Author, PublishTime: out.Metadata.PublishTime,
			Source: out.Metadata.Source, Language: out.Metadata.Language,
			FetcherUsed: out.Metadata.FetcherUsed, TemplateUsed: out.Metadata.TemplateUsed,
			ContentCharCount: out.Metadata.ContentCharCount, ElapsedMsByPhase: out.Metadata.ElapsedMsByPhase,
		},
	}
	if out.Error != nil {
		resp.Error = &models.ErrorDetail{Code: string(out.Error.Kind), Message: out.Error.Detail}
	}
	return resp
}

// statusForErrorKind maps a classify.ErrorKind to the HTTP status that best
// describes it to an API caller.
func statusForErrorKind(k classify.ErrorKind) int {
	switch k {
	case classify.NotFound404:
		return http.StatusNotFound
	case classify.HTTP4xxBlock, classify.CaptchaDetected:
		return http.StatusForbidden
	case classify.NetworkTimeout, classify.BudgetExceeded:
		return http.StatusGatewayTimeout
	case classify.DNSFailure, classify.TLSFailure, classify.ConnectionReset, classify.HTTP5xx, classify.RedirectLoop:
		return http.StatusBadGateway
	case classify.RoutingInvalid, classify.TemplateInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
