package models

import (
	"sort"

	"github.com/pitabwire/frame/data"
)

// NamespaceGrant stores the actions a role may perform anywhere inside a
// namespace. One row per (namespace, role); the Actions set is merged
// additively on repeated grants.
type NamespaceGrant struct {
	data.BaseModel

	Namespace string       `gorm:"type:varchar(255);not null;index:idx_ns_grant,unique"`
	Role      string       `gorm:"type:varchar(255);not null;index:idx_ns_grant,unique"`
	Actions   data.JSONMap `gorm:"type:jsonb;default:'{}'"`
}

func (*NamespaceGrant) TableName() string {
	return "namespace_grants"
}

// TopicGrant stores the actions a role may perform on one fully qualified
// topic. Namespace is denormalised so namespace deletion can sweep rows.
type TopicGrant struct {
	data.BaseModel

	Topic     string       `gorm:"type:varchar(512);not null;index:idx_topic_grant,unique"`
	Namespace string       `gorm:"type:varchar(255);not null;index"`
	Role      string       `gorm:"type:varchar(255);not null;index:idx_topic_grant,unique"`
	Actions   data.JSONMap `gorm:"type:jsonb;default:'{}'"`
}

func (*TopicGrant) TableName() string {
	return "topic_grants"
}

// SubscriptionGrant restricts a named subscription to an explicit role set.
// An absent row, or a row with an empty Roles set, means no restriction is
// configured and namespace/topic consume grants apply instead.
type SubscriptionGrant struct {
	data.BaseModel

	Namespace    string       `gorm:"type:varchar(255);not null;index:idx_sub_grant,unique"`
	Subscription string       `gorm:"type:varchar(255);not null;index:idx_sub_grant,unique"`
	Roles        data.JSONMap `gorm:"type:jsonb;default:'{}'"`
}

func (*SubscriptionGrant) TableName() string {
	return "subscription_grants"
}

// SetToJSONMap converts a set of strings to the jsonb representation used
// for grant action and role sets.
func SetToJSONMap(members []string) data.JSONMap {
	m := data.JSONMap{}
	for _, member := range members {
		if member != "" {
			m[member] = true
		}
	}
	return m
}

// JSONMapToSet converts a stored jsonb set back to a sorted string slice.
func JSONMapToSet(m data.JSONMap) []string {
	members := make([]string, 0, len(m))
	for member, present := range m {
		if truthy, ok := present.(bool); ok && truthy {
			members = append(members, member)
		}
	}
	sort.Strings(members)
	return members
}

// JSONMapHas reports whether member is present in a stored jsonb set.
func JSONMapHas(m data.JSONMap, member string) bool {
	truthy, ok := m[member].(bool)
	return ok && truthy
}

// Permission change actions carried on PermissionChangedEvent.
const (
	PermissionActionGranted = "granted"
	PermissionActionRevoked = "revoked"
)

// Permission scopes carried on PermissionChangedEvent.
const (
	ScopeNamespace    = "namespace"
	ScopeTopic        = "topic"
	ScopeSubscription = "subscription"
)

// PermissionChangedEvent is the event payload emitted after a grant or
// revoke succeeds. Consumers use it to invalidate cached policies.
type PermissionChangedEvent struct {
	Scope        string `json:"scope"`
	Namespace    string `json:"namespace"`
	Topic        string `json:"topic,omitempty"`
	Subscription string `json:"subscription,omitempty"`
	Role         string `json:"role,omitempty"`
	Action       string `json:"action"`
}
