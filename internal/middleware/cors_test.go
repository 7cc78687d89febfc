package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/2beens/healthstats/internal/middleware"

	"github.com/stretchr/testify/assert"
)

func corsTestHandler() http.Handler {
	return middleware.Cors()(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	))
}

func TestCors_AllowedOrigin(t *testing.T) {
	req := httptest.NewRequest("GET", "/health-data/status", nil)
	req.Header.Set("Origin", "http://localhost:8080")
	rec := httptest.NewRecorder()

	corsTestHandler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:8080", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCors_NoOrigin(t *testing.T) {
	req := httptest.NewRequest("GET", "/health-data/status", nil)
	rec := httptest.NewRecorder()

	corsTestHandler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCors_ForbiddenOrigin(t *testing.T) {
	req := httptest.NewRequest("GET", "/health-data/status", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("User-Agent", "definitely-not-curl")
	rec := httptest.NewRecorder()

	corsTestHandler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
