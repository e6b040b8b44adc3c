package reminders

import (
	"context"
	"errors"
	"strings"
)

// MultiChannel fans a reminder out to several channels.
type MultiChannel struct {
	channels []Channel
}

// NewMultiChannel constructs a MultiChannel; nil channels are dropped.
func NewMultiChannel(channels ...Channel) *MultiChannel {
	kept := make([]Channel, 0, len(channels))
	for _, ch := range channels {
		if ch != nil {
			kept = append(kept, ch)
		}
	}
	return &MultiChannel{channels: kept}
}

// Send delivers to every channel and joins the failures. A partial failure
// fails the whole send so the event is retried.
func (m *MultiChannel) Send(ctx context.Context, msg Message) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, ch := range m.channels {
		if err := ch.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ChannelsFromURLs builds one webhook channel per comma-separated url.
func ChannelsFromURLs(urls string, opts ...WebhookOption) (Channel, error) {
	var channels []Channel
	for _, url := range strings.Split(urls, ",") {
		url = strings.TrimSpace(url)
		if url == "" {
			continue
		}
		ch, err := NewWebhookChannel(url, opts...)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	switch len(channels) {
	case 0:
		return nil, errors.New("reminder channels: no webhook url")
	case 1:
		return channels[0], nil
	default:
		return NewMultiChannel(channels...), nil
	}
}
