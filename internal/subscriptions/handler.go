package subscriptions

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/bissquit/push-relay/internal/domain"
	"github.com/bissquit/push-relay/internal/pkg/httputil"
	"github.com/bissquit/push-relay/internal/sites"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = append([]httputil.ErrorMapping{
	{Error: ErrQuotaExceeded, Status: http.StatusForbidden, Message: "subscriber quota exceeded"},
	{Error: ErrInvalidPayload, Status: http.StatusBadRequest},
	{Error: ErrInvalidReference, Status: http.StatusBadRequest},
}, sites.ErrorMappings...)

// SiteResolver resolves sites for public and owner routes.
type SiteResolver interface {
	GetByToken(ctx context.Context, token string) (*domain.Site, error)
	GetActiveByToken(ctx context.Context, token string) (*domain.Site, error)
	GetOwned(ctx context.Context, owner domain.Owner, siteID string) (*domain.Site, error)
}

// Handler handles HTTP requests for the subscription registry.
type Handler struct {
	registry  *Registry
	sites     SiteResolver
	validator *validator.Validate
}

// NewHandler creates a new subscriptions handler.
func NewHandler(registry *Registry, sites SiteResolver) *Handler {
	return &Handler{
		registry:  registry,
		sites:     sites,
		validator: validator.New(),
	}
}

// RegisterPublicRoutes registers routes called by subscriber browsers.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/public/sites/{token}/subscriptions", h.Subscribe)
	r.Delete("/public/sites/{token}/subscriptions", h.Unsubscribe)
}

// RegisterRoutes registers owner routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sites/{siteID}/subscriptions/count", h.CountActive)
}

// SubscribeRequest represents request body for subscribing.
// Subscription is the browser PushSubscription serialized with toJSON().
type SubscribeRequest struct {
	Subscription json.RawMessage `json:"subscription" validate:"required"`
}

// UnsubscribeRequest represents request body for unsubscribing.
type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required"`
}

// Subscribe handles POST /public/sites/{token}/subscriptions.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadBody(w, err)
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	site, err := h.sites.GetActiveByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	id, err := h.registry.Upsert(r.Context(), site, req.Subscription, r.UserAgent())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, map[string]string{"id": id})
}

// Unsubscribe handles DELETE /public/sites/{token}/subscriptions.
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req UnsubscribeRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadBody(w, err)
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	site, err := h.sites.GetByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	if err := h.registry.Deactivate(r.Context(), site, req.Endpoint); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]bool{"ok": true})
}

// CountActive handles GET /sites/{siteID}/subscriptions/count.
func (h *Handler) CountActive(w http.ResponseWriter, r *http.Request) {
	site, err := h.sites.GetOwned(r.Context(), httputil.GetOwner(r.Context()), chi.URLParam(r, "siteID"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	count, err := h.registry.CountActive(r.Context(), site.ID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]int{
		"active": count,
		"quota":  site.SubscriberQuota,
	})
}
