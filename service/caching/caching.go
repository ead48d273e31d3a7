package caching

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pitabwire/frame/cache"
	"github.com/pitabwire/util"

	"github.com/laran/pulsar/config"
)

// DefaultPolicyTTL bounds staleness when invalidation events are lost.
const DefaultPolicyTTL = 5 * time.Minute

// Key prefix constants for cache key namespacing.
const (
	prefixNamespace = "policies:ns:"
)

// NamespacePolicies is the cached policy snapshot for one namespace: the
// role grants at namespace scope and the subscription allow lists. Topic
// grants are not cached here; they are read per decision.
type NamespacePolicies struct {
	Namespace     string              `json:"namespace"`
	RoleActions   map[string][]string `json:"role_actions"`
	Subscriptions map[string][]string `json:"subscriptions"`
}

// PolicyCache provides typed cache operations over namespace policy
// snapshots. It wraps frame's cache.Manager with consistent key
// formatting, TTL and serialization. A nil *PolicyCache is valid and
// behaves as a permanent miss, so callers never branch on availability.
type PolicyCache struct {
	policies cache.RawCache
	ttl      time.Duration
}

// NewPolicyCache creates a PolicyCache from the frame cache manager.
// Returns nil if the cache manager or the configured cache is unavailable
// (graceful degradation for environments without cache).
func NewPolicyCache(cacheMan cache.Manager, cfg *config.GatewayConfig) *PolicyCache {
	if cacheMan == nil {
		return nil
	}

	policies, _ := cacheMan.GetRawCache(config.CacheNamePolicies)
	if policies == nil {
		return nil
	}

	ttl := DefaultPolicyTTL
	if cfg != nil && cfg.PolicyCacheTTL() > 0 {
		ttl = cfg.PolicyCacheTTL()
	}

	return &PolicyCache{policies: policies, ttl: ttl}
}

// GetNamespacePolicies retrieves the cached policy snapshot for a namespace.
func (c *PolicyCache) GetNamespacePolicies(ctx context.Context, namespace string) (*NamespacePolicies, bool) {
	if c == nil {
		return nil, false
	}
	val, found, err := c.policies.Get(ctx, prefixNamespace+namespace)
	if err != nil || !found {
		if err != nil {
			util.Log(ctx).WithError(err).Debug("cache get namespace policies failed")
		}
		return nil, false
	}
	var snapshot NamespacePolicies
	if unmarshalErr := json.Unmarshal(val, &snapshot); unmarshalErr != nil {
		util.Log(ctx).WithError(unmarshalErr).Debug("cache unmarshal namespace policies failed")
		return nil, false
	}
	return &snapshot, true
}

// SetNamespacePolicies stores a policy snapshot for a namespace.
func (c *PolicyCache) SetNamespacePolicies(ctx context.Context, namespace string, snapshot *NamespacePolicies) {
	if c == nil || snapshot == nil {
		return
	}
	encoded, err := json.Marshal(snapshot)
	if err != nil {
		util.Log(ctx).WithError(err).Debug("cache marshal namespace policies failed")
		return
	}
	if setErr := c.policies.Set(ctx, prefixNamespace+namespace, encoded, c.ttl); setErr != nil {
		util.Log(ctx).WithError(setErr).Debug("cache set namespace policies failed")
	}
}

// InvalidateNamespace removes the policy snapshot for a namespace. Called
// after any permission mutation touching that namespace.
func (c *PolicyCache) InvalidateNamespace(ctx context.Context, namespace string) {
	if c == nil {
		return
	}
	if err := c.policies.Delete(ctx, prefixNamespace+namespace); err != nil {
		util.Log(ctx).WithError(err).Debug("cache invalidate namespace policies failed")
	}
}
