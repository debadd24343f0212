// Package handoff passes a run's selection to the downstream
// summarization and publishing service.
package handoff

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/deusflow/ainews/internal/metrics"
	"github.com/deusflow/ainews/internal/news"
	"github.com/deusflow/ainews/internal/retry"
)

// Batch is the payload posted downstream.
type Batch struct {
	RunAt   time.Time         `json:"run_at"`
	Items   []news.RankedItem `json:"items"`
	Metrics *metrics.Run      `json:"metrics"`
}

// Webhook posts batches as JSON to a fixed endpoint.
type Webhook struct {
	url    string
	client *http.Client
	policy retry.Policy
	logger *slog.Logger
}

func NewWebhook(url string, client *http.Client, policy retry.Policy, logger *slog.Logger) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if policy.MaxAttempts == 0 {
		policy = retry.Policy{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{url: url, client: client, policy: policy, logger: logger.With("component", "handoff")}
}

// Deliver posts b, retrying transient failures. Client errors (4xx) are not
// retried.
func (w *Webhook) Deliver(ctx context.Context, b Batch) error {
	body, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("error make JSON: %w", err)
	}

	attempt := 0
	err = retry.Do(ctx, w.policy, func(ctx context.Context) error {
		attempt++
		err := w.post(ctx, body)
		if err != nil {
			w.logger.Warn("handoff attempt failed", "attempt", attempt, "max", w.policy.MaxAttempts, "error", err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("handoff to %s: %w", w.url, err)
	}
	w.logger.Info("selection handed off", "items", len(b.Items), "attempt", attempt)
	return nil
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("error HTTP request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return retry.Permanent(fmt.Errorf("handoff rejected: status %d", resp.StatusCode))
	}
	return fmt.Errorf("handoff error: status %d", resp.StatusCode)
}
