package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/use-agent/siteprobe/models"
	"github.com/use-agent/siteprobe/webhook"
	"golang.org/x/sync/errgroup"
)

// Notifier delivers webhook events.
type Notifier interface {
	Send(ctx context.Context, url, secret string, event *webhook.Event) error
}

// webhookDeadline bounds delivery of one async batch, retries included.
const webhookDeadline = 2 * time.Minute

// Batch returns a handler for POST /api/v1/scrape/batch.
//
// Every entry runs through the scrape core with at most concurrency in
// flight. Results keep request order; one failing entry never affects the
// others, so a synchronous batch always answers 200.
//
// A batch carrying webhook_url answers 202 at once and runs under bg, the
// server's lifetime context. Its results are posted when done, even if bg
// was cancelled meanwhile.
func Batch(bg context.Context, sc Scraper, concurrency int, notifier Notifier) gin.HandlerFunc {
	if concurrency < 1 {
		concurrency = 1
	}
	return func(c *gin.Context) {
		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		batchID := uuid.NewString()

		if req.WebhookURL == "" {
			c.JSON(http.StatusOK, runBatch(c.Request.Context(), sc, concurrency, batchID, req.Requests))
			return
		}
		if notifier == nil {
			badRequest(c, errWebhooksDisabled)
			return
		}

		go func() {
			resp := runBatch(bg, sc, concurrency, batchID, req.Requests)
			ctx, cancel := context.WithTimeout(context.WithoutCancel(bg), webhookDeadline)
			defer cancel()
			err := notifier.Send(ctx, req.WebhookURL, req.WebhookSecret, &webhook.Event{
				Type:      webhook.EventBatchCompleted,
				BatchID:   batchID,
				Timestamp: time.Now().Unix(),
				Data:      resp,
			})
			if err != nil {
				slog.Warn("batch results not delivered", "batch_id", batchID, "error", err)
			}
		}()

		c.JSON(http.StatusAccepted, models.BatchAccepted{
			BatchID: batchID,
			Status:  "accepted",
			Total:   len(req.Requests),
		})
	}
}

func runBatch(ctx context.Context, sc Scraper, concurrency int, batchID string, items []models.BatchItem) models.BatchResponse {
	results := make([]models.ScrapeResult, len(items))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, item := range items {
		g.Go(func() error {
			results[i] = sc.Scrape(ctx, item.ToRequest())
			return nil
		})
	}
	_ = g.Wait()

	resp := models.BatchResponse{BatchID: batchID, Total: len(results), Results: results}
	for _, r := range results {
		if r.Success {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	return resp
}
