package authorization_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/laran/pulsar/config"
	"github.com/laran/pulsar/service/authorization"
	"github.com/laran/pulsar/service/models"
	"github.com/laran/pulsar/service/naming"
	"github.com/laran/pulsar/service/repository"
)

// fakeNamespaceGrants serves grants from memory. Unused repository methods
// panic through the embedded nil interface, which keeps the fake honest.
type fakeNamespaceGrants struct {
	repository.NamespaceGrantRepository

	grants map[string]map[string][]string // namespace -> role -> actions
	err    error
}

func (f *fakeNamespaceGrants) ListByNamespace(_ context.Context, namespace string) ([]*models.NamespaceGrant, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.NamespaceGrant
	for role, actions := range f.grants[namespace] {
		out = append(out, &models.NamespaceGrant{
			Namespace: namespace,
			Role:      role,
			Actions:   models.SetToJSONMap(actions),
		})
	}
	return out, nil
}

func (f *fakeNamespaceGrants) MergeActions(_ context.Context, namespace, role string, actions []string) error {
	if f.err != nil {
		return f.err
	}
	if f.grants[namespace] == nil {
		f.grants[namespace] = map[string][]string{}
	}
	f.grants[namespace][role] = append(f.grants[namespace][role], actions...)
	return nil
}

func (f *fakeNamespaceGrants) RemoveRole(_ context.Context, namespace, role string) error {
	delete(f.grants[namespace], role)
	return nil
}

type fakeTopicGrants struct {
	repository.TopicGrantRepository

	grants map[string]map[string][]string // topic -> role -> actions
	err    error
}

func (f *fakeTopicGrants) GetByTopicAndRole(_ context.Context, topic, role string) (*models.TopicGrant, error) {
	if f.err != nil {
		return nil, f.err
	}
	actions, ok := f.grants[topic][role]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &models.TopicGrant{Topic: topic, Role: role, Actions: models.SetToJSONMap(actions)}, nil
}

func (f *fakeTopicGrants) ListByTopic(_ context.Context, topic string) ([]*models.TopicGrant, error) {
	var out []*models.TopicGrant
	for role, actions := range f.grants[topic] {
		out = append(out, &models.TopicGrant{Topic: topic, Role: role, Actions: models.SetToJSONMap(actions)})
	}
	return out, nil
}

func (f *fakeTopicGrants) MergeActions(_ context.Context, topic, _, role string, actions []string) error {
	if f.grants[topic] == nil {
		f.grants[topic] = map[string][]string{}
	}
	f.grants[topic][role] = append(f.grants[topic][role], actions...)
	return nil
}

func (f *fakeTopicGrants) RemoveRole(_ context.Context, topic, role string) error {
	delete(f.grants[topic], role)
	return nil
}

type fakeSubscriptionGrants struct {
	repository.SubscriptionGrantRepository

	grants map[string]map[string][]string // namespace -> subscription -> roles
}

func (f *fakeSubscriptionGrants) ListByNamespace(
	_ context.Context, namespace string,
) ([]*models.SubscriptionGrant, error) {
	var out []*models.SubscriptionGrant
	for subscription, roles := range f.grants[namespace] {
		out = append(out, &models.SubscriptionGrant{
			Namespace:    namespace,
			Subscription: subscription,
			Roles:        models.SetToJSONMap(roles),
		})
	}
	return out, nil
}

func (f *fakeSubscriptionGrants) ReplaceRoles(
	_ context.Context, namespace, subscription string, roles []string,
) error {
	if f.grants[namespace] == nil {
		f.grants[namespace] = map[string][]string{}
	}
	f.grants[namespace][subscription] = roles
	return nil
}

func (f *fakeSubscriptionGrants) RemoveRole(_ context.Context, namespace, subscription, role string) error {
	kept := f.grants[namespace][subscription][:0]
	for _, r := range f.grants[namespace][subscription] {
		if r != role {
			kept = append(kept, r)
		}
	}
	f.grants[namespace][subscription] = kept
	return nil
}

type fakeStore struct {
	namespaces    *fakeNamespaceGrants
	topics        *fakeTopicGrants
	subscriptions *fakeSubscriptionGrants
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		namespaces:    &fakeNamespaceGrants{grants: map[string]map[string][]string{}},
		topics:        &fakeTopicGrants{grants: map[string]map[string][]string{}},
		subscriptions: &fakeSubscriptionGrants{grants: map[string]map[string][]string{}},
	}
}

func newStandardProvider(t *testing.T, store *fakeStore, cfg *config.GatewayConfig) authorization.Provider {
	t.Helper()

	if cfg == nil {
		cfg = &config.GatewayConfig{AuthorizationEnabled: true}
	}
	provider, err := authorization.NewProvider(authorization.ProviderNameStandard)
	require.NoError(t, err)
	require.NoError(t, provider.Initialize(t.Context(), authorization.Dependencies{
		Config:             cfg,
		NamespaceGrants:    store.namespaces,
		TopicGrants:        store.topics,
		SubscriptionGrants: store.subscriptions,
	}))
	t.Cleanup(func() { _ = provider.Close() })
	return provider
}

func mustTopic(t *testing.T, name string) naming.TopicName {
	t.Helper()
	topic, err := naming.ParseTopic(name)
	require.NoError(t, err)
	return topic
}

func TestNewProviderUnknownName(t *testing.T) {
	provider, err := authorization.NewProvider("bespoke")
	require.ErrorIs(t, err, authorization.ErrUnknownProvider)
	assert.Nil(t, provider)

	// The failure names what is available.
	assert.Contains(t, err.Error(), authorization.ProviderNameStandard)
	assert.Contains(t, err.Error(), authorization.ProviderNamePrefix)
}

func TestStandardNamespaceGrantCoversAllTopics(t *testing.T) {
	ctx := t.Context()
	store := newFakeStore()
	store.namespaces.grants["acme/orders"] = map[string][]string{
		"producer-app": {"produce"},
	}
	provider := newStandardProvider(t, store, nil)

	for _, topicName := range []string{
		"persistent://acme/orders/created",
		"persistent://acme/orders/cancelled",
	} {
		allowed, err := provider.CanProduce(ctx, mustTopic(t, topicName), "producer-app", nil)
		require.NoError(t, err)
		assert.True(t, allowed, "namespace grant should cover %s", topicName)
	}

	// The grant does not leak into other namespaces or actions.
	allowed, err := provider.CanProduce(ctx, mustTopic(t, "persistent://acme/billing/created"), "producer-app", nil)
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = provider.CanConsume(ctx, mustTopic(t, "persistent://acme/orders/created"), "producer-app", nil, "")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestStandardTopicGrantIsTopicScoped(t *testing.T) {
	ctx := t.Context()
	store := newFakeStore()
	store.topics.grants["persistent://acme/orders/created"] = map[string][]string{
		"reader-app": {"consume"},
	}
	provider := newStandardProvider(t, store, nil)

	allowed, err := provider.CanConsume(ctx, mustTopic(t, "persistent://acme/orders/created"), "reader-app", nil, "")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = provider.CanConsume(ctx, mustTopic(t, "persistent://acme/orders/cancelled"), "reader-app", nil, "")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestStandardSubscriptionAllowListGatesConsume(t *testing.T) {
	ctx := t.Context()
	topic := mustTopic(t, "persistent://acme/orders/created")

	store := newFakeStore()
	store.namespaces.grants["acme/orders"] = map[string][]string{
		"reader-app": {"consume"},
		"other-app":  {"consume"},
	}
	store.subscriptions.grants["acme/orders"] = map[string][]string{
		"billing-sub": {"reader-app"},
	}
	provider := newStandardProvider(t, store, nil)

	// Listed role passes.
	allowed, err := provider.CanConsume(ctx, topic, "reader-app", nil, "billing-sub")
	require.NoError(t, err)
	assert.True(t, allowed)

	// A consume grant alone does not open a restricted subscription.
	allowed, err = provider.CanConsume(ctx, topic, "other-app", nil, "billing-sub")
	require.NoError(t, err)
	assert.False(t, allowed)

	// The same role is fine on an unrestricted subscription.
	allowed, err = provider.CanConsume(ctx, topic, "other-app", nil, "fresh-sub")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestStandardAllowListMembershipSufficesForConsume(t *testing.T) {
	ctx := t.Context()
	topic := mustTopic(t, "persistent://acme/orders/created")

	store := newFakeStore()
	store.subscriptions.grants["acme/orders"] = map[string][]string{
		"billing-sub": {"listed-app"},
	}
	provider := newStandardProvider(t, store, nil)

	// The allow list is the controlling check on its subscription. A
	// listed role consumes even with no namespace or topic grant at all.
	allowed, err := provider.CanConsume(ctx, topic, "listed-app", nil, "billing-sub")
	require.NoError(t, err)
	assert.True(t, allowed)

	// Outside the restricted subscription the role still has nothing.
	allowed, err = provider.CanConsume(ctx, topic, "listed-app", nil, "")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = provider.CanConsume(ctx, topic, "listed-app", nil, "fresh-sub")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestStandardLookupFollowsProduceOrConsume(t *testing.T) {
	ctx := t.Context()
	topic := mustTopic(t, "persistent://acme/orders/created")

	store := newFakeStore()
	store.namespaces.grants["acme/orders"] = map[string][]string{
		"producer-app": {"produce"},
		"reader-app":   {"consume"},
	}
	provider := newStandardProvider(t, store, nil)

	for _, role := range []string{"producer-app", "reader-app"} {
		allowed, err := provider.CanLookup(ctx, topic, role, nil)
		require.NoError(t, err)
		assert.True(t, allowed, "role %s should resolve the topic", role)
	}

	allowed, err := provider.CanLookup(ctx, topic, "stranger", nil)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestStandardAllowFunctionOps(t *testing.T) {
	ctx := t.Context()
	store := newFakeStore()
	store.namespaces.grants["acme/orders"] = map[string][]string{
		"fn-admin": {"functions"},
		"reader":   {"consume"},
	}
	provider := newStandardProvider(t, store, nil)

	allowed, err := provider.AllowFunctionOps(ctx, "acme/orders", "fn-admin", nil)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = provider.AllowFunctionOps(ctx, "acme/orders", "reader", nil)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestStandardStoreFaultFailsClosed(t *testing.T) {
	ctx := t.Context()
	store := newFakeStore()
	store.namespaces.err = errors.New("connection refused")
	provider := newStandardProvider(t, store, nil)

	allowed, err := provider.CanProduce(ctx, mustTopic(t, "persistent://acme/orders/created"), "producer-app", nil)
	require.Error(t, err)
	assert.False(t, allowed)
}

func TestStandardIsSuperUserFromConfig(t *testing.T) {
	ctx := t.Context()
	cfg := &config.GatewayConfig{
		AuthorizationEnabled: true,
		SuperUserRoles:       "admin, ops-root",
	}
	provider := newStandardProvider(t, newFakeStore(), cfg)

	isSuper, err := provider.IsSuperUser(ctx, "admin")
	require.NoError(t, err)
	assert.True(t, isSuper)

	isSuper, err = provider.IsSuperUser(ctx, "reader-app")
	require.NoError(t, err)
	assert.False(t, isSuper)

	isSuper, err = provider.IsSuperUser(ctx, "")
	require.NoError(t, err)
	assert.False(t, isSuper)
}

func TestStandardGrantRoundTrip(t *testing.T) {
	ctx := t.Context()
	topic := mustTopic(t, "persistent://acme/orders/created")
	store := newFakeStore()
	provider := newStandardProvider(t, store, nil)

	err := provider.GrantNamespacePermission(
		ctx, "acme/orders", "producer-app", []authorization.Action{authorization.ActionProduce}, "")
	require.NoError(t, err)

	allowed, err := provider.CanProduce(ctx, topic, "producer-app", nil)
	require.NoError(t, err)
	assert.True(t, allowed)

	permissions, err := provider.NamespacePermissions(ctx, "acme/orders")
	require.NoError(t, err)
	assert.Equal(t, []authorization.Action{authorization.ActionProduce}, permissions["producer-app"])

	require.NoError(t, provider.RevokeNamespacePermission(ctx, "acme/orders", "producer-app"))
	allowed, err = provider.CanProduce(ctx, topic, "producer-app", nil)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestStandardTopicPermissionsListing(t *testing.T) {
	ctx := t.Context()
	topic := mustTopic(t, "persistent://acme/orders/created")
	store := newFakeStore()
	provider := newStandardProvider(t, store, nil)

	err := provider.GrantTopicPermission(
		ctx, topic, "reader-app",
		[]authorization.Action{authorization.ActionConsume, authorization.ActionProduce}, "")
	require.NoError(t, err)

	permissions, err := provider.TopicPermissions(ctx, topic)
	require.NoError(t, err)
	assert.Equal(t,
		[]authorization.Action{authorization.ActionConsume, authorization.ActionProduce},
		permissions["reader-app"])
}
