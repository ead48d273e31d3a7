package config

import (
	"strings"
	"time"

	"github.com/pitabwire/frame/config"
)

// Cache names registered with the frame cache manager.
const (
	CacheNamePolicies = "policies"
)

// Fallback admission limits applied when the configured value is not a
// positive count.
const (
	DefaultMaxConcurrentLookupRequests     int64 = 50000
	DefaultMaxConcurrentInboundConnections int64 = 10000
)

// GatewayConfig holds configuration for the authorization and admission
// gateway service.
type GatewayConfig struct {
	config.ConfigurationDefault

	// Authorization settings.
	AuthorizationEnabled  bool   `envDefault:"true"     env:"AUTHORIZATION_ENABLED"`
	AuthorizationProvider string `envDefault:"standard" env:"AUTHORIZATION_PROVIDER"`
	SuperUserRoles        string `envDefault:""         env:"SUPER_USER_ROLES"`

	// Admission control capacity. Permits are fixed at startup; a request
	// that cannot take a permit is rejected immediately, never queued.
	MaxConcurrentLookupRequests     int64 `envDefault:"50000" env:"MAX_CONCURRENT_LOOKUP_REQUESTS"`
	MaxConcurrentInboundConnections int64 `envDefault:"10000" env:"MAX_CONCURRENT_INBOUND_CONNECTIONS"`

	// Brokers the lookup endpoint hands out, comma separated service URLs.
	BrokerServiceURLs string `envDefault:"pulsar://localhost:6650" env:"BROKER_SERVICE_URLS"`

	// Policy cache tuning.
	PolicyCacheTTLSec int `envDefault:"300" env:"POLICY_CACHE_TTL_SEC"`

	// Request body size limit in bytes for admin endpoints (default 1MB).
	MaxRequestBodyBytes int64 `envDefault:"1048576" env:"MAX_REQUEST_BODY_BYTES"`
}

// SuperUserRoleSet returns the configured superuser roles as a set.
func (c *GatewayConfig) SuperUserRoleSet() map[string]bool {
	roles := map[string]bool{}
	for _, role := range strings.Split(c.SuperUserRoles, ",") {
		role = strings.TrimSpace(role)
		if role != "" {
			roles[role] = true
		}
	}
	return roles
}

// BrokerURLList returns the configured broker service URLs.
func (c *GatewayConfig) BrokerURLList() []string {
	var urls []string
	for _, u := range strings.Split(c.BrokerServiceURLs, ",") {
		u = strings.TrimSpace(u)
		if u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

// PolicyCacheTTL returns the policy cache TTL as a duration.
func (c *GatewayConfig) PolicyCacheTTL() time.Duration {
	return time.Duration(c.PolicyCacheTTLSec) * time.Second
}
