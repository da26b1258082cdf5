// Package webpush delivers notifications over the Web Push protocol
// (RFC 8030 with RFC 8291 payload encryption and RFC 8292 VAPID).
package webpush

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	wp "github.com/SherClockHolmes/webpush-go"
	"github.com/bissquit/push-relay/internal/dispatch"
)

// Config contains Web Push transport configuration.
type Config struct {
	// Subscriber is the VAPID contact, a mailto: address or https URL.
	Subscriber string
	TTL        time.Duration
	Urgency    string
	RecordSize int
	// MaxConnsPerHost should match the dispatch concurrency bound.
	MaxConnsPerHost int
}

// Transport implements dispatch.Transport using webpush-go.
type Transport struct {
	config Config
	client *http.Client
}

// NewTransport creates a transport with its own connection pool.
func NewTransport(config Config) *Transport {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if config.MaxConnsPerHost > 0 {
		base.MaxConnsPerHost = config.MaxConnsPerHost
		base.MaxIdleConnsPerHost = config.MaxConnsPerHost
	}
	return NewTransportWithClient(config, &http.Client{Transport: base})
}

// NewTransportWithClient creates a transport that sends through client.
func NewTransportWithClient(config Config, client *http.Client) *Transport {
	return &Transport{config: config, client: client}
}

// Send encrypts and signs msg and posts it to the subscription endpoint.
func (t *Transport) Send(ctx context.Context, msg dispatch.Message) (int, error) {
	var sub wp.Subscription
	if err := json.Unmarshal(msg.Subscription, &sub); err != nil {
		return 0, fmt.Errorf("%w: %v", dispatch.ErrMalformedSubscription, err)
	}
	if sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return 0, fmt.Errorf("%w: endpoint and keys are required", dispatch.ErrMalformedSubscription)
	}

	resp, err := wp.SendNotificationWithContext(ctx, msg.Payload, &sub, &wp.Options{
		HTTPClient:      t.client,
		RecordSize:      uint32(t.config.RecordSize),
		Subscriber:      t.config.Subscriber,
		TTL:             int(t.config.TTL.Seconds()),
		Urgency:         wp.Urgency(t.config.Urgency),
		VAPIDPublicKey:  msg.Keypair.PublicKey,
		VAPIDPrivateKey: msg.Keypair.PrivateKey,
	})
	if err != nil {
		return 0, fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode, nil
}
