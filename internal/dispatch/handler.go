package dispatch

import (
	"net/http"

	"github.com/bissquit/push-relay/internal/keyvault"
	"github.com/bissquit/push-relay/internal/pkg/httputil"
	"github.com/bissquit/push-relay/internal/sites"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = append([]httputil.ErrorMapping{
	{Error: ErrInvalidInput, Status: http.StatusBadRequest},
	{Error: keyvault.ErrNotConfigured, Status: http.StatusConflict, Message: "site has no signing keypair"},
}, sites.ErrorMappings...)

// Handler handles HTTP requests for the dispatch engine.
type Handler struct {
	engine    *Engine
	validator *validator.Validate
}

// NewHandler creates a new dispatch handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{
		engine:    engine,
		validator: validator.New(),
	}
}

// RegisterRoutes registers owner routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sites/{siteID}/notifications", h.SendNotification)
}

// SendNotificationRequest represents request body for sending a notification.
type SendNotificationRequest struct {
	Title           string   `json:"title" validate:"required,max=255"`
	Body            string   `json:"body" validate:"max=2000"`
	URL             string   `json:"url" validate:"omitempty,url,max=2048"`
	SubscriptionIDs []string `json:"subscription_ids" validate:"omitempty,max=10000,dive,uuid"`
}

// SendNotification handles POST /sites/{siteID}/notifications.
// It responds once every delivery attempt has settled.
func (h *Handler) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req SendNotificationRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadBody(w, err)
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	result, err := h.engine.Send(r.Context(), httputil.GetOwner(r.Context()), SendInput{
		SiteID:          chi.URLParam(r, "siteID"),
		Title:           req.Title,
		Body:            req.Body,
		URL:             req.URL,
		SubscriptionIDs: req.SubscriptionIDs,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, result)
}
