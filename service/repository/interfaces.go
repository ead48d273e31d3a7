package repository

import (
	"context"

	"github.com/pitabwire/frame/datastore"

	"github.com/laran/pulsar/service/models"
)

// NamespaceGrantRepository manages namespace scoped permission grants.
type NamespaceGrantRepository interface {
	datastore.BaseRepository[*models.NamespaceGrant]
	// GetByNamespaceAndRole returns the grant row for one role, or a
	// no-rows error when the role holds nothing at this scope.
	GetByNamespaceAndRole(ctx context.Context, namespace, role string) (*models.NamespaceGrant, error)
	ListByNamespace(ctx context.Context, namespace string) ([]*models.NamespaceGrant, error)
	// MergeActions adds actions to the role's existing grant set. Repeated
	// calls with the same arguments are idempotent; concurrent calls on the
	// same key race last-write-wins, serialised only by the database row.
	MergeActions(ctx context.Context, namespace, role string, actions []string) error
	RemoveRole(ctx context.Context, namespace, role string) error
}

// TopicGrantRepository manages topic scoped permission grants.
type TopicGrantRepository interface {
	datastore.BaseRepository[*models.TopicGrant]
	GetByTopicAndRole(ctx context.Context, topic, role string) (*models.TopicGrant, error)
	ListByTopic(ctx context.Context, topic string) ([]*models.TopicGrant, error)
	// MergeActions adds actions to the role's existing grant set for the
	// topic. Same idempotence and last-write-wins semantics as the
	// namespace variant.
	MergeActions(ctx context.Context, topic, namespace, role string, actions []string) error
	RemoveRole(ctx context.Context, topic, role string) error
}

// SubscriptionGrantRepository manages subscription role allow lists.
type SubscriptionGrantRepository interface {
	datastore.BaseRepository[*models.SubscriptionGrant]
	Get(ctx context.Context, namespace, subscription string) (*models.SubscriptionGrant, error)
	ListByNamespace(ctx context.Context, namespace string) ([]*models.SubscriptionGrant, error)
	// ReplaceRoles overwrites the subscription's entire allowed role set.
	// This is a full replace, not a merge: callers adding a role must first
	// read the current set and resubmit it with the addition.
	ReplaceRoles(ctx context.Context, namespace, subscription string, roles []string) error
	// RemoveRole drops one role from the allow list. Removing the last role
	// leaves an empty set, which lifts the restriction entirely.
	RemoveRole(ctx context.Context, namespace, subscription, role string) error
}
