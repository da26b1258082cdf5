package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func TestRoutePattern(t *testing.T) {
	var pattern string
	r := chi.NewRouter()
	r.Get("/public/sites/{token}/key", func(w http.ResponseWriter, r *http.Request) {
		pattern = routePattern(r)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/public/sites/secret-token/key", nil))
	assert.Equal(t, "/public/sites/{token}/key", pattern)

	assert.Equal(t, "unknown", routePattern(httptest.NewRequest(http.MethodGet, "/x", nil)))
}

func TestMetricsMiddleware_PassesThrough(t *testing.T) {
	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
