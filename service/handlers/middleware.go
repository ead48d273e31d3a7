package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/laran/pulsar/service/admission"
)

// NewConnectionLimitMiddleware creates an HTTP middleware that holds an
// inbound connection permit for the duration of each request. Requests
// arriving with the gate full get an immediate 503 with Retry-After so
// clients back off instead of piling onto a saturated gateway.
//
// Health probes are exempt; a gateway that is merely busy is still alive.
func NewConnectionLimitMiddleware(gate *admission.Gateway) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" {
				next.ServeHTTP(w, r)
				return
			}

			permit, ok := gate.TryAcquireConnection(r.Context())
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "connection capacity exhausted"})
				return
			}
			defer permit.Release()

			next.ServeHTTP(w, r)
		})
	}
}
