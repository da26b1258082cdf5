package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/bissquit/push-relay/internal/pkg/ctxlog"
)

// ErrorMapping maps a sentinel error to an HTTP status.
// An empty Message sends err.Error().
type ErrorMapping struct {
	Error   error
	Status  int
	Message string
}

// HandleError writes the first mapping matching err. A timed out request
// becomes 503; anything else unmapped is logged and becomes 500.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if !errors.Is(err, m.Error) {
			continue
		}
		msg := m.Message
		if msg == "" {
			msg = err.Error()
		}
		Error(w, m.Status, msg)
		return
	}

	log := ctxlog.FromContext(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		log.Warn("request timed out", "error", err)
		Error(w, http.StatusServiceUnavailable, "request timed out")
		return
	}

	log.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}
