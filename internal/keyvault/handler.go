package keyvault

import (
	"context"
	"net/http"

	"github.com/bissquit/push-relay/internal/domain"
	"github.com/bissquit/push-relay/internal/pkg/httputil"
	"github.com/bissquit/push-relay/internal/sites"
	"github.com/go-chi/chi/v5"
)

var errorMappings = append([]httputil.ErrorMapping{
	{Error: ErrNotConfigured, Status: http.StatusConflict, Message: "site has no signing keypair"},
}, sites.ErrorMappings...)

// SiteResolver resolves public site tokens.
type SiteResolver interface {
	GetByToken(ctx context.Context, token string) (*domain.Site, error)
}

// Handler serves the public half of site keypairs.
type Handler struct {
	vault *Vault
	sites SiteResolver
}

// NewHandler creates a new key vault handler.
func NewHandler(vault *Vault, sites SiteResolver) *Handler {
	return &Handler{vault: vault, sites: sites}
}

// RegisterPublicRoutes registers routes called by subscriber browsers.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/public/sites/{token}/vapid-public-key", h.GetPublicKey)
}

// GetPublicKey handles GET /public/sites/{token}/vapid-public-key.
// The key is passed as applicationServerKey to pushManager.subscribe().
func (h *Handler) GetPublicKey(w http.ResponseWriter, r *http.Request) {
	site, err := h.sites.GetByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	publicKey, err := h.vault.GetPublicKey(r.Context(), site.ID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	httputil.Success(w, http.StatusOK, map[string]string{"public_key": publicKey})
}
