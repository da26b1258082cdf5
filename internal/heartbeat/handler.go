package heartbeat

import (
	"net/http"

	"github.com/bissquit/push-relay/internal/pkg/httputil"
	"github.com/bissquit/push-relay/internal/subscriptions"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: subscriptions.ErrInvalidReference, Status: http.StatusBadRequest},
}

// Handler handles heartbeat HTTP requests.
type Handler struct {
	tracker   *Tracker
	validator *validator.Validate
}

// NewHandler creates a new heartbeat handler.
func NewHandler(tracker *Tracker) *Handler {
	return &Handler{
		tracker:   tracker,
		validator: validator.New(),
	}
}

// RegisterPublicRoutes registers routes called by subscriber browsers.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/public/sites/{token}/heartbeat", h.Beat)
}

// BeatRequest represents request body for a heartbeat.
// Subscription is an endpoint URL or a fingerprint.
type BeatRequest struct {
	Subscription string `json:"subscription" validate:"required,max=2048"`
	Reactivate   bool   `json:"reactivate"`
}

// Beat handles POST /public/sites/{token}/heartbeat.
func (h *Handler) Beat(w http.ResponseWriter, r *http.Request) {
	var req BeatRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadBody(w, err)
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	if err := h.tracker.Beat(r.Context(), chi.URLParam(r, "token"), req.Subscription, req.Reactivate); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.NoStore(w)
	httputil.Success(w, http.StatusOK, map[string]bool{"ok": true})
}
