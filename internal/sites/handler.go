package sites

import (
	"net/http"

	"github.com/bissquit/push-relay/internal/domain"
	"github.com/bissquit/push-relay/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// ErrorMappings maps site errors to HTTP responses. Other modules append them
// to their own tables since every site-scoped route resolves a site first.
var ErrorMappings = []httputil.ErrorMapping{
	{Error: ErrSiteNotFound, Status: http.StatusNotFound, Message: "site not found"},
	{Error: ErrSiteSuspended, Status: http.StatusForbidden, Message: "site is suspended"},
	{Error: ErrInvalidStatus, Status: http.StatusBadRequest, Message: "status must be active or suspended"},
}

// Handler handles HTTP requests for the sites module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new sites handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers owner routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sites", h.ListSites)
	r.Post("/sites", h.CreateSite)
	r.Get("/sites/{siteID}", h.GetSite)
	r.Delete("/sites/{siteID}", h.DeleteSite)
}

// RegisterAdminRoutes registers administrator routes.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Patch("/admin/sites/{siteID}", h.UpdateSite)
}

// CreateSiteRequest represents request body for creating a site.
type CreateSiteRequest struct {
	Name            string `json:"name" validate:"required,max=255"`
	SubscriberQuota *int   `json:"subscriber_quota" validate:"omitempty,min=0"`
}

// UpdateSiteRequest represents request body for updating a site.
type UpdateSiteRequest struct {
	Status          *string `json:"status" validate:"omitempty,oneof=active suspended"`
	SubscriberQuota *int    `json:"subscriber_quota" validate:"omitempty,min=0"`
}

type createSiteResponse struct {
	*domain.Site
	PublicKey string `json:"public_key"`
}

// CreateSite handles POST /sites.
func (h *Handler) CreateSite(w http.ResponseWriter, r *http.Request) {
	var req CreateSiteRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadBody(w, err)
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	site, keypair, err := h.service.Create(r.Context(), httputil.GetOwner(r.Context()), CreateInput(req))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, ErrorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, createSiteResponse{Site: site, PublicKey: keypair.PublicKey})
}

// ListSites handles GET /sites.
func (h *Handler) ListSites(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListOwned(r.Context(), httputil.GetOwner(r.Context()))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, ErrorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, list)
}

// GetSite handles GET /sites/{siteID}.
func (h *Handler) GetSite(w http.ResponseWriter, r *http.Request) {
	site, err := h.service.GetOwned(r.Context(), httputil.GetOwner(r.Context()), chi.URLParam(r, "siteID"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, ErrorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, site)
}

// DeleteSite handles DELETE /sites/{siteID}.
func (h *Handler) DeleteSite(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), httputil.GetOwner(r.Context()), chi.URLParam(r, "siteID")); err != nil {
		httputil.HandleError(r.Context(), w, err, ErrorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateSite handles PATCH /admin/sites/{siteID}.
func (h *Handler) UpdateSite(w http.ResponseWriter, r *http.Request) {
	var req UpdateSiteRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadBody(w, err)
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	input := UpdateInput{SubscriberQuota: req.SubscriberQuota}
	if req.Status != nil {
		status := domain.SiteStatus(*req.Status)
		input.Status = &status
	}

	site, err := h.service.Update(r.Context(), chi.URLParam(r, "siteID"), input)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, ErrorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, site)
}
