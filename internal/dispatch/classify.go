package dispatch

import (
	"errors"
	"net/http"
)

// Outcome is the classified result of one delivery attempt.
type Outcome int

// Attempt outcomes.
const (
	OutcomeSuccess Outcome = iota
	// OutcomePermanent means the endpoint is dead; the subscription gets pruned.
	OutcomePermanent
	// OutcomeTransient means the endpoint may be reachable later.
	OutcomeTransient
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomePermanent:
		return "permanent"
	default:
		return "transient"
	}
}

// Classify maps a transport result to an outcome. Errors without a status code
// (timeouts, connection failures) are transient, except ErrMalformedSubscription.
func Classify(statusCode int, err error) Outcome {
	if err != nil {
		if errors.Is(err, ErrMalformedSubscription) {
			return OutcomePermanent
		}
		return OutcomeTransient
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return OutcomeSuccess
	case statusCode == http.StatusNotFound,
		statusCode == http.StatusGone,
		statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden,
		statusCode == http.StatusBadGateway:
		return OutcomePermanent
	default:
		return OutcomeTransient
	}
}
