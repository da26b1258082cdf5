package sites

import "errors"

// Site errors.
var (
	ErrSiteNotFound  = errors.New("site not found")
	ErrSiteSuspended = errors.New("site is suspended")
	ErrInvalidStatus = errors.New("invalid site status")
)
