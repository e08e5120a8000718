package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookNotifier POSTs alerts as JSON to a configured HTTP endpoint.
// The body carries the structured domain payload, not just the rendered
// text, so receivers can route on symbol or event kind.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// webhookBody is the wire shape of one alert delivery.
type webhookBody struct {
	Source  string         `json:"source"`
	Level   string         `json:"level"`
	Event   string         `json:"event,omitempty"`
	Symbol  string         `json:"symbol,omitempty"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	At      time.Time      `json:"at"`
	Data    map[string]any `json:"data,omitempty"`
}

// NewWebhookNotifier creates a webhook notifier targeting url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	at := alert.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	body, err := json.Marshal(webhookBody{
		Source:  "tradepulse",
		Level:   string(alert.Level),
		Event:   alert.Event,
		Symbol:  alert.Symbol,
		Title:   alert.Title,
		Message: alert.Message,
		At:      at,
		Data:    alert.Data,
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}
