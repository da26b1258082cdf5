package subscriptions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
)

const maxPayloadSize = 4096

// Payload is a browser push subscription as received from the client.
// Its structure is defined by the Push API and is kept verbatim; only the
// endpoint URL is read, since the fingerprint is derived from it.
type Payload struct {
	raw      json.RawMessage
	endpoint string
}

// ParsePayload validates raw and extracts the endpoint URL.
func ParsePayload(raw []byte) (*Payload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPayload)
	}
	if len(raw) > maxPayloadSize {
		return nil, fmt.Errorf("%w: too large", ErrInvalidPayload)
	}

	var probe struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if err := validateEndpoint(probe.Endpoint); err != nil {
		return nil, err
	}

	return &Payload{
		raw:      append(json.RawMessage(nil), raw...),
		endpoint: probe.Endpoint,
	}, nil
}

// Endpoint returns the push service URL of the subscription.
func (p *Payload) Endpoint() string {
	return p.endpoint
}

// Raw returns the payload exactly as received.
func (p *Payload) Raw() json.RawMessage {
	return p.raw
}

// Fingerprint returns the dedupe key of the subscription.
func (p *Payload) Fingerprint() string {
	return Fingerprint(p.endpoint)
}

func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidPayload)
	}

	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: endpoint must be an absolute URL", ErrInvalidPayload)
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if isLoopback(u.Hostname()) {
			return nil
		}
	}
	return fmt.Errorf("%w: endpoint must use https", ErrInvalidPayload)
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
