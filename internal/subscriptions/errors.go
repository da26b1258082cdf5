package subscriptions

import "errors"

// Registry errors.
var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrQuotaExceeded        = errors.New("subscriber quota exceeded")
	ErrInvalidPayload       = errors.New("invalid subscription payload")
	ErrInvalidReference     = errors.New("expected an endpoint URL or a fingerprint")
)
