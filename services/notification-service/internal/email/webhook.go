package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// WebhookSender posts each message to a transactional email HTTP API
// authenticated with a bearer key.
type WebhookSender struct {
	url  string
	key  string
	from string
	http *http.Client
}

func NewWebhookSender(url, key, from string) (*WebhookSender, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("EMAIL_API_URL is required for the webhook email service")
	}
	return &WebhookSender{
		url:  url,
		key:  strings.TrimSpace(key),
		from: from,
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

func (s *WebhookSender) ProviderID() string { return "email-webhook" }

type webhookPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	raw, err := json.Marshal(webhookPayload{From: s.from, To: msg.To, Subject: msg.Subject, Text: msg.Body})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.key)
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("email api returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}
