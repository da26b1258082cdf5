package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bissquit/push-relay/internal/domain"
	"github.com/stretchr/testify/assert"
)

type stubValidator struct{}

func (stubValidator) ValidateToken(_ context.Context, token string) (string, domain.Role, error) {
	switch token {
	case "owner-token":
		return "user-1", domain.RoleOwner, nil
	case "admin-token":
		return "admin-1", domain.RoleAdmin, nil
	}
	return "", "", errors.New("bad token")
}

func TestAuthMiddleware(t *testing.T) {
	var got domain.Owner
	h := AuthMiddleware(stubValidator{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetOwner(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		status int
		owner  domain.Owner
	}{
		{name: "missing header", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic owner-token", status: http.StatusUnauthorized},
		{name: "no token", header: "Bearer", status: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "owner", header: "Bearer owner-token", status: http.StatusNoContent,
			owner: domain.Owner{UserID: "user-1", Role: domain.RoleOwner}},
		{name: "scheme is case insensitive", header: "bearer admin-token", status: http.StatusNoContent,
			owner: domain.Owner{UserID: "admin-1", Role: domain.RoleAdmin}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = domain.Owner{}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.owner, got)
		})
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(domain.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(ctx context.Context) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	bg := context.Background()
	assert.Equal(t, http.StatusUnauthorized, do(bg))
	assert.Equal(t, http.StatusForbidden, do(WithOwner(bg, domain.Owner{UserID: "u", Role: domain.RoleOwner})))
	assert.Equal(t, http.StatusNoContent, do(WithOwner(bg, domain.Owner{UserID: "a", Role: domain.RoleAdmin})))
}

func TestGetOwner_Empty(t *testing.T) {
	assert.Equal(t, domain.Owner{}, GetOwner(context.Background()))
}
