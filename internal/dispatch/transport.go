package dispatch

import (
	"context"
	"encoding/json"

	"github.com/bissquit/push-relay/internal/domain"
)

// Message is one signed push to one subscription.
type Message struct {
	// Subscription is the opaque browser subscription payload.
	Subscription json.RawMessage
	Payload      []byte
	Keypair      *domain.Keypair
}

// Transport delivers a message to the push service behind the subscription endpoint.
// It returns the HTTP status reported by the push service, or an error when no
// response was received.
type Transport interface {
	Send(ctx context.Context, msg Message) (statusCode int, err error)
}
