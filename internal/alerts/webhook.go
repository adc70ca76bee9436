package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

var ErrWebhookURL = errors.New("webhook URL is required")

// WebhookConfig configures a WebhookSender
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
	Headers map[string]string
}

// WebhookSender posts alerts as JSON to an HTTP endpoint
type WebhookSender struct {
	client *resty.Client
	url    string
}

// NewWebhookSender creates a webhook sender
func NewWebhookSender(cfg WebhookConfig) (*WebhookSender, error) {
	if cfg.URL == "" {
		return nil, ErrWebhookURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeaders(cfg.Headers)

	return &WebhookSender{client: client, url: cfg.URL}, nil
}

func (s *WebhookSender) Name() string { return "webhook" }

func (s *WebhookSender) Send(ctx context.Context, message string) error {
	start := time.Now()
	err := s.send(ctx, message)
	observe(s.Name(), start, err)
	return err
}

func (s *WebhookSender) send(ctx context.Context, message string) error {
	if err := validateMessage(message); err != nil {
		return err
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(newPayload(message)).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook responded %d", resp.StatusCode())
	}
	return nil
}
