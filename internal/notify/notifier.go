// Package notify delivers scan digests to the user's notification channel.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var ErrDeliveryFailed = errors.New("notification delivery failed")

// Notifier delivers a pre-formatted message to a channel. Delivery is
// fire-and-forget from the pipeline's perspective.
type Notifier interface {
	Deliver(ctx context.Context, channel, message string) error
}

// SlackNotifier posts messages to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	maxRetries int
	retryDelay time.Duration
	client     *http.Client
}

// NewSlackNotifier creates a Slack notifier for the given webhook URL.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		maxRetries: 3,
		retryDelay: 2 * time.Second,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

type slackMessage struct {
	Text    string `json:"text"`
	Channel string `json:"channel,omitempty"`
}

// Deliver posts the message, retrying transient failures a bounded number of
// times. The channel overrides the webhook's default when non-empty.
func (n *SlackNotifier) Deliver(ctx context.Context, channel, message string) error {
	body, err := json.Marshal(slackMessage{Text: message, Channel: channel})
	if err != nil {
		return fmt.Errorf("encoding slack message: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(n.retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			return nil
		}
		lastErr = fmt.Errorf("status %d", resp.StatusCode)

		// 4xx responses won't improve with retries.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			break
		}
	}

	return fmt.Errorf("%w: %v", ErrDeliveryFailed, lastErr)
}

var _ Notifier = (*SlackNotifier)(nil)
