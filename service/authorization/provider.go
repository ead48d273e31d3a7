package authorization

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/laran/pulsar/config"
	"github.com/laran/pulsar/service/caching"
	"github.com/laran/pulsar/service/naming"
	"github.com/laran/pulsar/service/repository"
)

// Dependencies carries everything a provider may need: the startup
// configuration, the permission store repositories and the shared policy
// cache handle. Initialize receives it exactly once, before any decision
// call.
type Dependencies struct {
	Config *config.GatewayConfig

	NamespaceGrants    repository.NamespaceGrantRepository
	TopicGrants        repository.TopicGrantRepository
	SubscriptionGrants repository.SubscriptionGrantRepository

	Cache *caching.PolicyCache
}

// Provider is the pluggable policy contract. Implementations are selected
// by name through the registry at startup and invoked only through this
// interface, never via concrete type checks.
//
// Decision predicates return (false, nil) for an ordinary denial. An error
// is reserved for provider internal faults (store unreachable, malformed
// stored grant) and for policy violations; it always accompanies a false
// decision, never a true one. All methods must be safe for unbounded
// concurrent callers.
type Provider interface {
	// Initialize is called once at startup before any decision call.
	Initialize(ctx context.Context, deps Dependencies) error

	// Close releases provider resources. It is called exactly once at
	// shutdown and must be safe even when Initialize partially failed.
	Close() error

	IsSuperUser(ctx context.Context, role string) (bool, error)

	CanProduce(ctx context.Context, topic naming.TopicName, role string, authData *AuthenticationData) (bool, error)
	CanConsume(ctx context.Context, topic naming.TopicName, role string, authData *AuthenticationData,
		subscription string) (bool, error)
	CanLookup(ctx context.Context, topic naming.TopicName, role string, authData *AuthenticationData) (bool, error)
	AllowFunctionOps(ctx context.Context, namespace, role string, authData *AuthenticationData) (bool, error)

	// GrantNamespacePermission adds actions to the role's grant at
	// namespace scope. Additive and idempotent.
	GrantNamespacePermission(ctx context.Context, namespace, role string, actions []Action, authDataJSON string) error

	// GrantTopicPermission adds actions to the role's grant on one topic.
	GrantTopicPermission(ctx context.Context, topic naming.TopicName, role string, actions []Action,
		authDataJSON string) error

	RevokeNamespacePermission(ctx context.Context, namespace, role string) error
	RevokeTopicPermission(ctx context.Context, topic naming.TopicName, role string) error

	// GrantSubscriptionPermission replaces the subscription's entire
	// allowed role set. This is a full overwrite, not a merge.
	GrantSubscriptionPermission(ctx context.Context, namespace, subscription string, roles []string,
		authDataJSON string) error

	// RevokeSubscriptionPermission removes one role from the allow list.
	RevokeSubscriptionPermission(ctx context.Context, namespace, subscription, role string) error

	// NamespacePermissions lists the current grants at namespace scope.
	NamespacePermissions(ctx context.Context, namespace string) (map[string][]Action, error)

	// TopicPermissions lists the current grants on one topic.
	TopicPermissions(ctx context.Context, topic naming.TopicName) (map[string][]Action, error)
}

// Factory builds an uninitialised provider instance.
type Factory func() Provider

var (
	providersMu sync.RWMutex
	providers   = map[string]Factory{}
)

// Register makes a provider available under the given name. It is meant
// to be called from package init functions; registering the same name
// twice panics, as does a nil factory.
func Register(name string, factory Factory) {
	providersMu.Lock()
	defer providersMu.Unlock()

	if factory == nil {
		panic("authorization: Register factory is nil")
	}
	if _, dup := providers[name]; dup {
		panic("authorization: Register called twice for provider " + name)
	}
	providers[name] = factory
}

// NewProvider instantiates the named provider. The caller still has to
// run Initialize on the result.
func NewProvider(name string) (Provider, error) {
	providersMu.RLock()
	factory, ok := providers[name]
	providersMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownProvider, name, registeredProviders())
	}
	return factory(), nil
}

func registeredProviders() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
