package ledger

import "errors"

// Ledger errors.
var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrAlreadyFinalized     = errors.New("notification already finalized")
	ErrInvalidStatus        = errors.New("final status must be sent or failed")
)
