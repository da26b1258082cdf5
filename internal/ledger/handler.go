package ledger

import (
	"context"
	"net/http"
	"strconv"

	"github.com/bissquit/push-relay/internal/domain"
	"github.com/bissquit/push-relay/internal/pkg/httputil"
	"github.com/bissquit/push-relay/internal/sites"
	"github.com/go-chi/chi/v5"
)

var errorMappings = append([]httputil.ErrorMapping{
	{Error: ErrNotificationNotFound, Status: http.StatusNotFound, Message: "notification not found"},
}, sites.ErrorMappings...)

// SiteResolver resolves sites for owner routes.
type SiteResolver interface {
	GetOwned(ctx context.Context, owner domain.Owner, siteID string) (*domain.Site, error)
}

// Handler handles HTTP requests for the delivery ledger.
type Handler struct {
	ledger *Ledger
	sites  SiteResolver
}

// NewHandler creates a new ledger handler.
func NewHandler(ledger *Ledger, sites SiteResolver) *Handler {
	return &Handler{ledger: ledger, sites: sites}
}

// RegisterPublicRoutes registers callback routes called by service workers.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/public/notifications/{id}/delivered", h.Delivered)
	r.Post("/public/notifications/{id}/clicked", h.Clicked)
}

// RegisterRoutes registers owner routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sites/{siteID}/stats", h.SiteStats)
	r.Get("/sites/{siteID}/notifications", h.ListNotifications)
	r.Get("/sites/{siteID}/notifications/{id}", h.GetNotification)
}

// RegisterAdminRoutes registers administrator routes.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/admin/stats", h.GlobalStats)
}

// Delivered handles POST /public/notifications/{id}/delivered.
func (h *Handler) Delivered(w http.ResponseWriter, r *http.Request) {
	h.ledger.RecordDelivered(r.Context(), chi.URLParam(r, "id"))
	acknowledge(w)
}

// Clicked handles POST /public/notifications/{id}/clicked.
func (h *Handler) Clicked(w http.ResponseWriter, r *http.Request) {
	h.ledger.RecordClick(r.Context(), chi.URLParam(r, "id"))
	acknowledge(w)
}

func acknowledge(w http.ResponseWriter) {
	httputil.NoStore(w)
	httputil.Success(w, http.StatusOK, map[string]bool{"ok": true})
}

// SiteStats handles GET /sites/{siteID}/stats.
func (h *Handler) SiteStats(w http.ResponseWriter, r *http.Request) {
	site, err := h.sites.GetOwned(r.Context(), httputil.GetOwner(r.Context()), chi.URLParam(r, "siteID"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	stats, err := h.ledger.SiteStats(r.Context(), site.ID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, stats)
}

// ListNotifications handles GET /sites/{siteID}/notifications.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	site, err := h.sites.GetOwned(r.Context(), httputil.GetOwner(r.Context()), chi.URLParam(r, "siteID"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			httputil.Error(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
	}

	list, err := h.ledger.ListNotifications(r.Context(), site.ID, limit)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, list)
}

// GetNotification handles GET /sites/{siteID}/notifications/{id}.
func (h *Handler) GetNotification(w http.ResponseWriter, r *http.Request) {
	site, err := h.sites.GetOwned(r.Context(), httputil.GetOwner(r.Context()), chi.URLParam(r, "siteID"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	n, err := h.ledger.GetNotification(r.Context(), site.ID, chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, n)
}

// GlobalStats handles GET /admin/stats.
func (h *Handler) GlobalStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.GlobalStats(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, stats)
}
