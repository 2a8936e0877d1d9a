package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/siteprobe/models"
)

// Scraper is the scrape core as seen by the handlers.
type Scraper interface {
	Scrape(ctx context.Context, req models.ScrapeRequest) models.ScrapeResult
}

// Scrape returns a handler for POST /api/v1/scrape/{website,channel}.
// The route fixes the request kind; the body carries target, shape and
// options. The response body is always the ScrapeResult.
func Scrape(sc Scraper, kind models.RequestKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body models.ScrapeBody
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, err)
			return
		}

		res := sc.Scrape(c.Request.Context(), body.ToRequest(kind))
		c.JSON(StatusFor(res), res)
	}
}

// StatusFor maps a result's error kind to an HTTP status.
func StatusFor(res models.ScrapeResult) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.ErrorKind {
	case models.KindInvalidInput:
		return http.StatusBadRequest // 400
	case models.KindNotFound:
		return http.StatusNotFound // 404
	case models.KindBlocked, models.KindRateLimited:
		return http.StatusServiceUnavailable // 503
	case models.KindTransient:
		return http.StatusGatewayTimeout // 504
	default:
		return http.StatusInternalServerError // 500
	}
}

var errWebhooksDisabled = errors.New("webhook delivery is disabled on this server")

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Success: false,
		Error: &models.ErrorDetail{
			Code:    models.ErrCodeInvalidInput,
			Message: err.Error(),
		},
	})
}
