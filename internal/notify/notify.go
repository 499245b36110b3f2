// Package notify posts sync changes to a chat channel through a
// Slack-compatible incoming webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Notifier delivers a plain-text message.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// New returns a webhook notifier, or a no-op notifier when url is empty.
func New(url, username string) Notifier {
	if url == "" {
		return Nop{}
	}
	return NewWebhook(url, username)
}

// Nop discards every message.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, string) error { return nil }

// Webhook posts messages to an incoming webhook.
type Webhook struct {
	url      string
	username string
	client   *http.Client
}

// NewWebhook creates a webhook notifier.
func NewWebhook(url, username string) *Webhook {
	return &Webhook{
		url:      url,
		username: username,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify posts text to the webhook.
func (w *Webhook) Notify(ctx context.Context, text string) error {
	payload := map[string]string{"text": text}
	if w.username != "" {
		payload["username"] = w.username
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}

// Escape escapes the characters Slack treats as control sequences in
// message text.
func Escape(s string) string {
	var sb strings.Builder
	for _, ch := range s {
		switch ch {
		case '&':
			sb.WriteString("&amp;")
		case '<':
			sb.WriteString("&lt;")
		case '>':
			sb.WriteString("&gt;")
		default:
			sb.WriteRune(ch)
		}
	}
	return sb.String()
}

// Link formats a Slack link. An empty label yields the bare url.
func Link(url, label string) string {
	if label == "" {
		return "<" + url + ">"
	}
	return "<" + url + "|" + Escape(label) + ">"
}
