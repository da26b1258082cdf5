package dispatch

import (
	"errors"
	"fmt"
)

// Dispatch errors.
var (
	ErrInvalidInput = errors.New("invalid notification")
	// ErrMalformedSubscription means the stored subscription payload cannot be
	// used to address its endpoint. It is classified as permanent.
	ErrMalformedSubscription = errors.New("malformed subscription payload")
)

// TransportError describes a failed delivery attempt. It is recorded as data,
// never returned to the caller of Send.
type TransportError struct {
	StatusCode int
	Permanent  bool
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("push service responded %d", e.StatusCode)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
