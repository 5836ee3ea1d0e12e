package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/MarcoPoloResearchLab/assistant/internal/reminders"
)

const idempotencyKeyHeader = "Idempotency-Key"

// WebhookConfig describes the webhook target.
type WebhookConfig struct {
	URL    string
	Client *http.Client
}

// WebhookNotifier POSTs notifications as JSON. The notification id is sent as the
// idempotency key so the receiver can drop redelivered payloads.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier validates the target URL and builds the notifier.
func NewWebhookNotifier(cfg WebhookConfig) (*WebhookNotifier, error) {
	target := strings.TrimSpace(cfg.URL)
	parsed, err := url.Parse(target)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("notify: invalid webhook url %q", cfg.URL)
	}
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookNotifier{url: target, client: client}, nil
}

// Notify delivers one notification; any non-2xx response is a failure.
func (n *WebhookNotifier) Notify(ctx context.Context, notification reminders.Notification) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set(idempotencyKeyHeader, notification.ID)

	response, err := n.client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, 4096))
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return errors.New("notify: webhook responded " + response.Status)
	}
	return nil
}
