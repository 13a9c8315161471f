package escalation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docflow/internal/config"
	"docflow/internal/notify"
)

const userAgent = "docflow/0.1"

// Channel dispatches one notification over one delivery mechanism. Channel
// failures are isolated per notification; the cascade records them in its
// summary and moves on.
type Channel interface {
	Name() string
	Send(ctx context.Context, n notify.Notification) error
}

// WebhookChannel posts escalation notices to an ntfy-compatible endpoint.
// Fire-and-forget: delivery status is reported back for summary accounting
// only.
type WebhookChannel struct {
	endpoint string
	client   *http.Client
}

// NewWebhookChannel builds the webhook channel, or nil when no endpoint is
// configured.
func NewWebhookChannel(cfg *config.Config) *WebhookChannel {
	endpoint := strings.TrimSpace(cfg.Notifications.WebhookURL)
	if endpoint == "" {
		return nil
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookChannel{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *WebhookChannel) Name() string { return string(notify.ChannelWebhook) }

func (c *WebhookChannel) Send(ctx context.Context, n notify.Notification) error {
	if c == nil || c.client == nil {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(n.Body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if n.Subject != "" {
		req.Header.Set("Title", n.Subject)
	}
	req.Header.Set("Tags", "docflow,sla,escalation")
	if n.Priority != "" && n.Priority != notify.PriorityNormal {
		req.Header.Set("Priority", string(n.Priority))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// EmailChannel ships email-shaped JSON payloads to an HTTP gateway that owns
// actual SMTP delivery.
type EmailChannel struct {
	gateway string
	client  *http.Client
}

// NewEmailChannel builds the email channel, or nil when no gateway is
// configured.
func NewEmailChannel(cfg *config.Config) *EmailChannel {
	gateway := strings.TrimSpace(cfg.Notifications.EmailGateway)
	if gateway == "" {
		return nil
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &EmailChannel{
		gateway: gateway,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *EmailChannel) Name() string { return string(notify.ChannelEmail) }

func (c *EmailChannel) Send(ctx context.Context, n notify.Notification) error {
	if c == nil || c.client == nil {
		return nil
	}
	message := struct {
		To       string          `json:"to"`
		Subject  string          `json:"subject"`
		Body     string          `json:"body"`
		Priority string          `json:"priority"`
		Payload  json.RawMessage `json:"payload,omitempty"`
	}{
		To:       n.Recipient,
		Subject:  n.Subject,
		Body:     n.Body,
		Priority: string(n.Priority),
		Payload:  n.Payload,
	}
	encoded, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gateway, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("email gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
