package reminders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Message is one rendered reminder addressed to a member.
type Message struct {
	CoachingID string
	MemberID   string
	Phone      string
	RecordID   string
	Text       string
}

// Channel delivers a reminder message, e.g. to an SMS or chat gateway.
type Channel interface {
	Send(ctx context.Context, msg Message) error
}

// webhookPayload is the JSON body posted to gateways.
type webhookPayload struct {
	To         string `json:"to,omitempty"`
	CoachingID string `json:"coaching_id"`
	MemberID   string `json:"member_id"`
	RecordID   string `json:"record_id"`
	Text       string `json:"text"`
}

// WebhookChannel posts reminders as JSON to a gateway url.
type WebhookChannel struct {
	url    string
	client *http.Client
}

type WebhookOption func(*WebhookChannel)

// WithHTTPClient replaces the default client with its 10s timeout.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(ch *WebhookChannel) {
		if client != nil {
			ch.client = client
		}
	}
}

func NewWebhookChannel(url string, opts ...WebhookOption) (*WebhookChannel, error) {
	if url == "" {
		return nil, errors.New("webhook channel: empty url")
	}
	ch := &WebhookChannel{url: url, client: &http.Client{Timeout: 10 * time.Second}}
	for _, opt := range opts {
		opt(ch)
	}
	return ch, nil
}

// Send fails on transport errors and any status outside 2xx.
func (w *WebhookChannel) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(webhookPayload{
		To:         msg.Phone,
		CoachingID: msg.CoachingID,
		MemberID:   msg.MemberID,
		RecordID:   msg.RecordID,
		Text:       msg.Text,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook channel: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook channel: gateway answered %d", resp.StatusCode)
	}
	return nil
}
