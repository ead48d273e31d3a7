package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laran/pulsar/config"
	"github.com/laran/pulsar/service/admission"
	"github.com/laran/pulsar/service/handlers"
)

func TestConnectionLimitMiddlewareRejectsWhenFull(t *testing.T) {
	gate := admission.NewGateway(&config.GatewayConfig{
		MaxConcurrentLookupRequests:     10,
		MaxConcurrentInboundConnections: 1,
	}, nil)

	handler := handlers.NewConnectionLimitMiddleware(gate)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	// Fill the only connection slot.
	permit, ok := gate.TryAcquireConnection(t.Context())
	require.True(t, ok)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/permissions/check", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, int64(1), gate.RejectedConnections())

	// Health probes pass even at capacity.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Releasing the slot lets traffic through again.
	permit.Release()
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/permissions/check", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConnectionLimitMiddlewareReleasesAfterRequest(t *testing.T) {
	gate := admission.NewGateway(&config.GatewayConfig{
		MaxConcurrentLookupRequests:     10,
		MaxConcurrentInboundConnections: 1,
	}, nil)

	handler := handlers.NewConnectionLimitMiddleware(gate)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	// Sequential requests reuse the single slot.
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/permissions/check", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, int64(0), gate.RejectedConnections())
}
