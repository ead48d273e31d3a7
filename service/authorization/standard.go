package authorization

import (
	"context"
	"fmt"

	"github.com/pitabwire/frame/data"
	"github.com/pitabwire/util"

	"github.com/laran/pulsar/service/caching"
	"github.com/laran/pulsar/service/models"
	"github.com/laran/pulsar/service/naming"
)

// ProviderNameStandard is the registry name of the default role based
// provider backed by the permission store.
const ProviderNameStandard = "standard"

func init() {
	Register(ProviderNameStandard, func() Provider {
		return &standardProvider{}
	})
}

// standardProvider evaluates grants from the permission store. A role may
// act on a topic when either its namespace grant or its topic grant holds
// the action. A subscription allow list, where configured, decides consume
// on that subscription by itself, replacing the grant check.
type standardProvider struct {
	deps       Dependencies
	superRoles map[string]bool
}

func (p *standardProvider) Initialize(_ context.Context, deps Dependencies) error {
	if deps.Config == nil {
		return fmt.Errorf("authorization: standard provider requires configuration")
	}
	if deps.NamespaceGrants == nil || deps.TopicGrants == nil || deps.SubscriptionGrants == nil {
		return fmt.Errorf("authorization: standard provider requires the permission store repositories")
	}

	p.deps = deps
	p.superRoles = deps.Config.SuperUserRoleSet()
	return nil
}

func (p *standardProvider) Close() error {
	return nil
}

func (p *standardProvider) IsSuperUser(_ context.Context, role string) (bool, error) {
	if role == "" {
		return false, nil
	}
	return p.superRoles[role], nil
}

func (p *standardProvider) CanProduce(ctx context.Context, topic naming.TopicName, role string,
	_ *AuthenticationData) (bool, error) {
	return p.checkTopicAction(ctx, topic, role, ActionProduce)
}

func (p *standardProvider) CanConsume(ctx context.Context, topic naming.TopicName, role string,
	_ *AuthenticationData, subscription string) (bool, error) {
	if subscription != "" {
		allowed, restricted, err := p.subscriptionAllows(ctx, topic.NamespaceName(), subscription, role)
		if err != nil {
			return false, err
		}
		// A configured allow list is the controlling check for its
		// subscription. Listed roles consume without a separate grant,
		// unlisted roles are refused outright.
		if restricted {
			if !allowed {
				util.Log(ctx).
					WithField("namespace", topic.NamespaceName()).
					WithField("subscription", subscription).
					WithField("role", role).
					Debug("role is outside the subscription allow list")
			}
			return allowed, nil
		}
	}
	return p.checkTopicAction(ctx, topic, role, ActionConsume)
}

// CanLookup grants discovery to any role that could produce or consume,
// so clients can resolve a topic before their first data operation.
func (p *standardProvider) CanLookup(ctx context.Context, topic naming.TopicName, role string,
	authData *AuthenticationData) (bool, error) {
	canProduce, err := p.CanProduce(ctx, topic, role, authData)
	if err != nil {
		return false, err
	}
	if canProduce {
		return true, nil
	}
	return p.CanConsume(ctx, topic, role, authData, "")
}

func (p *standardProvider) AllowFunctionOps(ctx context.Context, namespace, role string,
	_ *AuthenticationData) (bool, error) {
	actions, err := p.namespaceActions(ctx, namespace, role)
	if err != nil {
		return false, err
	}
	return actions[string(ActionFunctions)], nil
}

func (p *standardProvider) GrantNamespacePermission(ctx context.Context, namespace, role string,
	actions []Action, _ string) error {
	if err := p.deps.NamespaceGrants.MergeActions(ctx, namespace, role, ActionStrings(actions)); err != nil {
		return fmt.Errorf("grant namespace permission %s for %s: %w", namespace, role, err)
	}
	p.deps.Cache.InvalidateNamespace(ctx, namespace)
	return nil
}

func (p *standardProvider) GrantTopicPermission(ctx context.Context, topic naming.TopicName, role string,
	actions []Action, _ string) error {
	err := p.deps.TopicGrants.MergeActions(ctx, topic.String(), topic.NamespaceName(), role, ActionStrings(actions))
	if err != nil {
		return fmt.Errorf("grant topic permission %s for %s: %w", topic.String(), role, err)
	}
	p.deps.Cache.InvalidateNamespace(ctx, topic.NamespaceName())
	return nil
}

func (p *standardProvider) RevokeNamespacePermission(ctx context.Context, namespace, role string) error {
	if err := p.deps.NamespaceGrants.RemoveRole(ctx, namespace, role); err != nil {
		return fmt.Errorf("revoke namespace permission %s for %s: %w", namespace, role, err)
	}
	p.deps.Cache.InvalidateNamespace(ctx, namespace)
	return nil
}

func (p *standardProvider) RevokeTopicPermission(ctx context.Context, topic naming.TopicName, role string) error {
	if err := p.deps.TopicGrants.RemoveRole(ctx, topic.String(), role); err != nil {
		return fmt.Errorf("revoke topic permission %s for %s: %w", topic.String(), role, err)
	}
	p.deps.Cache.InvalidateNamespace(ctx, topic.NamespaceName())
	return nil
}

func (p *standardProvider) GrantSubscriptionPermission(ctx context.Context, namespace, subscription string,
	roles []string, _ string) error {
	if err := p.deps.SubscriptionGrants.ReplaceRoles(ctx, namespace, subscription, roles); err != nil {
		return fmt.Errorf("grant subscription permission %s/%s: %w", namespace, subscription, err)
	}
	p.deps.Cache.InvalidateNamespace(ctx, namespace)
	return nil
}

func (p *standardProvider) RevokeSubscriptionPermission(ctx context.Context, namespace, subscription,
	role string) error {
	if err := p.deps.SubscriptionGrants.RemoveRole(ctx, namespace, subscription, role); err != nil {
		return fmt.Errorf("revoke subscription permission %s/%s for %s: %w", namespace, subscription, role, err)
	}
	p.deps.Cache.InvalidateNamespace(ctx, namespace)
	return nil
}

func (p *standardProvider) NamespacePermissions(ctx context.Context, namespace string) (map[string][]Action, error) {
	grants, err := p.deps.NamespaceGrants.ListByNamespace(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("list namespace permissions %s: %w", namespace, err)
	}

	permissions := make(map[string][]Action, len(grants))
	for _, grant := range grants {
		permissions[grant.Role] = ParseActionsLenient(models.JSONMapToSet(grant.Actions))
	}
	return permissions, nil
}

func (p *standardProvider) TopicPermissions(ctx context.Context, topic naming.TopicName) (map[string][]Action, error) {
	grants, err := p.deps.TopicGrants.ListByTopic(ctx, topic.String())
	if err != nil {
		return nil, fmt.Errorf("list topic permissions %s: %w", topic.String(), err)
	}

	permissions := make(map[string][]Action, len(grants))
	for _, grant := range grants {
		permissions[grant.Role] = ParseActionsLenient(models.JSONMapToSet(grant.Actions))
	}
	return permissions, nil
}

// checkTopicAction reports whether role holds action on the topic through
// either scope. The namespace scope is consulted first since it is served
// from the policy snapshot on the hot path.
func (p *standardProvider) checkTopicAction(ctx context.Context, topic naming.TopicName, role string,
	action Action) (bool, error) {
	if role == "" {
		return false, nil
	}

	nsActions, err := p.namespaceActions(ctx, topic.NamespaceName(), role)
	if err != nil {
		return false, err
	}
	if nsActions[string(action)] {
		return true, nil
	}

	grant, err := p.deps.TopicGrants.GetByTopicAndRole(ctx, topic.String(), role)
	if err != nil {
		if data.ErrorIsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("load topic grant %s for %s: %w", topic.String(), role, err)
	}
	return models.JSONMapHas(grant.Actions, string(action)), nil
}

// namespaceActions returns the action set a role holds at namespace scope,
// preferring the cached snapshot and falling back to the store on a miss.
func (p *standardProvider) namespaceActions(ctx context.Context, namespace, role string) (map[string]bool, error) {
	snapshot, err := p.namespaceSnapshot(ctx, namespace)
	if err != nil {
		return nil, err
	}

	actions := make(map[string]bool, len(snapshot.RoleActions[role]))
	for _, action := range snapshot.RoleActions[role] {
		actions[action] = true
	}
	return actions, nil
}

// subscriptionAllows reports whether the subscription's allow list admits
// the role. restricted is false when no allow list is configured, in which
// case the ordinary grant check alone decides.
func (p *standardProvider) subscriptionAllows(ctx context.Context, namespace, subscription,
	role string) (allowed, restricted bool, err error) {
	snapshot, err := p.namespaceSnapshot(ctx, namespace)
	if err != nil {
		return false, false, err
	}

	roles := snapshot.Subscriptions[subscription]
	if len(roles) == 0 {
		return false, false, nil
	}
	for _, allowedRole := range roles {
		if allowedRole == role {
			return true, true, nil
		}
	}
	return false, true, nil
}

func (p *standardProvider) namespaceSnapshot(ctx context.Context, namespace string) (*caching.NamespacePolicies, error) {
	if snapshot, found := p.deps.Cache.GetNamespacePolicies(ctx, namespace); found {
		return snapshot, nil
	}

	snapshot, err := p.buildNamespaceSnapshot(ctx, namespace)
	if err != nil {
		return nil, err
	}
	p.deps.Cache.SetNamespacePolicies(ctx, namespace, snapshot)
	return snapshot, nil
}

func (p *standardProvider) buildNamespaceSnapshot(ctx context.Context,
	namespace string) (*caching.NamespacePolicies, error) {
	grants, err := p.deps.NamespaceGrants.ListByNamespace(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("load namespace grants %s: %w", namespace, err)
	}

	snapshot := &caching.NamespacePolicies{
		Namespace:     namespace,
		RoleActions:   make(map[string][]string, len(grants)),
		Subscriptions: map[string][]string{},
	}
	for _, grant := range grants {
		snapshot.RoleActions[grant.Role] = models.JSONMapToSet(grant.Actions)
	}

	subGrants, err := p.deps.SubscriptionGrants.ListByNamespace(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("load subscription grants %s: %w", namespace, err)
	}
	for _, grant := range subGrants {
		snapshot.Subscriptions[grant.Subscription] = models.JSONMapToSet(grant.Roles)
	}
	return snapshot, nil
}
