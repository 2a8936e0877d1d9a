// Package webhook delivers batch results to caller-supplied endpoints.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/use-agent/siteprobe/models"
	"github.com/use-agent/siteprobe/retry"
)

// SignatureHeader carries "sha256=<hex>" when the caller set a secret.
const SignatureHeader = "X-Siteprobe-Signature"

// EventBatchCompleted is sent once every entry of an async batch finished.
const EventBatchCompleted = "batch.completed"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"`
	BatchID   string `json:"batch_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// Sender posts events, retrying under its own policy. Endpoint replies are
// classified like page fetches: 5xx and 429 retry, other 4xx do not.
type Sender struct {
	client  *http.Client
	retrier *retry.Retrier
	logger  *slog.Logger
}

// NewSender creates a Sender. timeout bounds each delivery attempt.
func NewSender(policy retry.Policy, timeout time.Duration, opts ...retry.Option) *Sender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := slog.With("component", "webhook")
	opts = append([]retry.Option{retry.WithObserver(retry.LogObserver{Logger: logger})}, opts...)
	return &Sender{
		client:  &http.Client{Timeout: timeout},
		retrier: retry.New(policy, opts...),
		logger:  logger,
	}
}

// Send delivers event to url, retrying transient failures. It returns the
// last error when every attempt failed.
func (s *Sender) Send(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	out := retry.Execute(ctx, s.retrier, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.post(ctx, url, secret, body)
	})
	if !out.OK() {
		s.logger.Error("webhook delivery failed",
			"url", url,
			"event", event.Type,
			"batch_id", event.BatchID,
			"attempts", out.Attempts,
			"error_kind", out.Kind.String(),
		)
		return out.Err
	}
	s.logger.Info("webhook delivered",
		"url", url,
		"event", event.Type,
		"batch_id", event.BatchID,
		"attempts", out.Attempts,
	)
	return nil
}

func (s *Sender) post(ctx context.Context, url, secret string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return models.NewFetchError(models.KindInvalidInput, "bad webhook url", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "siteprobe-webhook/1.0")
	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 400 {
		return models.NewStatusError(url, resp.StatusCode)
	}
	return nil
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
