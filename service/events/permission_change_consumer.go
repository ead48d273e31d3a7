package events

import (
	"context"
	"errors"

	"github.com/pitabwire/util"

	"github.com/laran/pulsar/service/authorization"
	"github.com/laran/pulsar/service/caching"
	"github.com/laran/pulsar/service/models"
)

// PermissionChangeConsumer consumes PermissionChangedEvent events and
// drops the cached policy snapshot of the touched namespace, so every
// gateway instance converges on the new grants without waiting for TTL.
type PermissionChangeConsumer struct {
	cache *caching.PolicyCache
}

// NewPermissionChangeConsumer creates an event consumer for permission changes.
func NewPermissionChangeConsumer(cache *caching.PolicyCache) *PermissionChangeConsumer {
	return &PermissionChangeConsumer{cache: cache}
}

// Name returns the event name this consumer handles.
func (c *PermissionChangeConsumer) Name() string {
	return authorization.PermissionChangedEventName
}

// PayloadType returns the expected payload type for deserialization.
func (c *PermissionChangeConsumer) PayloadType() any {
	return &models.PermissionChangedEvent{}
}

// Validate checks that the payload is the correct type and has required fields.
func (c *PermissionChangeConsumer) Validate(_ context.Context, payload any) error {
	event, ok := payload.(*models.PermissionChangedEvent)
	if !ok {
		return errors.New("invalid payload type, expected *models.PermissionChangedEvent")
	}
	if event.Namespace == "" {
		return errors.New("namespace is required")
	}
	if event.Scope == "" {
		return errors.New("scope is required")
	}
	return nil
}

// Execute invalidates the policy snapshot for the event's namespace.
func (c *PermissionChangeConsumer) Execute(ctx context.Context, payload any) error {
	event, ok := payload.(*models.PermissionChangedEvent)
	if !ok {
		return errors.New("invalid payload type")
	}

	util.Log(ctx).Info("permission change event processed",
		"scope", event.Scope,
		"namespace", event.Namespace,
		"action", event.Action,
	)

	c.cache.InvalidateNamespace(ctx, event.Namespace)
	return nil
}
