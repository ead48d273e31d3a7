package authorization

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pitabwire/frame/events"
	"github.com/pitabwire/util"

	"github.com/laran/pulsar/config"
	"github.com/laran/pulsar/service/models"
	"github.com/laran/pulsar/service/naming"
	"github.com/laran/pulsar/service/observability"
)

// Operation labels recorded on decision metrics.
const (
	operationProduce   = "produce"
	operationConsume   = "consume"
	operationLookup    = "lookup"
	operationFunctions = "functions"
)

// Service is the authorization facade the rest of the gateway calls. It
// owns the enable switch, the superuser short circuit and the fail-closed
// translation of provider faults; the wrapped provider only ever sees
// requests that passed those gates.
//
// Decision methods return (false, nil) for an ordinary denial and
// (false, err) when the provider faulted or the request violated policy.
// They never return (true, err).
type Service struct {
	cfg        *config.GatewayConfig
	provider   Provider
	eventsMan  events.Manager
	metrics    *observability.Metrics
	superRoles map[string]bool
}

// NewService wraps an initialised provider.
func NewService(
	cfg *config.GatewayConfig,
	provider Provider,
	eventsMan events.Manager,
	metrics *observability.Metrics,
) *Service {
	return &Service{
		cfg:        cfg,
		provider:   provider,
		eventsMan:  eventsMan,
		metrics:    metrics,
		superRoles: cfg.SuperUserRoleSet(),
	}
}

// IsSuperUser reports whether role bypasses all permission checks. The
// configured superuser set decides first; the provider may widen it.
func (s *Service) IsSuperUser(ctx context.Context, role string) (bool, error) {
	if role != "" && s.superRoles[role] {
		return true, nil
	}
	isSuper, err := s.provider.IsSuperUser(ctx, role)
	if err != nil {
		if errors.Is(err, ErrUnsupportedOperation) {
			return false, nil
		}
		return false, fmt.Errorf("superuser check for %s: %w", role, err)
	}
	return isSuper, nil
}

// CanProduce decides whether role may publish to the topic.
func (s *Service) CanProduce(ctx context.Context, topic naming.TopicName, role string,
	authData *AuthenticationData) (bool, error) {
	return s.decide(ctx, operationProduce, role, func(ctx context.Context) (bool, error) {
		return s.provider.CanProduce(ctx, topic, role, authData)
	})
}

// CanConsume decides whether role may read from the topic, optionally
// through a named subscription.
func (s *Service) CanConsume(ctx context.Context, topic naming.TopicName, role string,
	authData *AuthenticationData, subscription string) (bool, error) {
	return s.decide(ctx, operationConsume, role, func(ctx context.Context) (bool, error) {
		return s.provider.CanConsume(ctx, topic, role, authData, subscription)
	})
}

// CanLookup decides whether role may resolve the topic's broker.
func (s *Service) CanLookup(ctx context.Context, topic naming.TopicName, role string,
	authData *AuthenticationData) (bool, error) {
	return s.decide(ctx, operationLookup, role, func(ctx context.Context) (bool, error) {
		return s.provider.CanLookup(ctx, topic, role, authData)
	})
}

// AllowFunctionOps decides whether role may administer functions in the
// namespace.
func (s *Service) AllowFunctionOps(ctx context.Context, namespace, role string,
	authData *AuthenticationData) (bool, error) {
	return s.decide(ctx, operationFunctions, role, func(ctx context.Context) (bool, error) {
		return s.provider.AllowFunctionOps(ctx, namespace, role, authData)
	})
}

// decide applies the shared gates around one provider predicate: the
// enable switch, the superuser short circuit, fail-closed fault handling
// and decision metrics.
func (s *Service) decide(ctx context.Context, operation, role string,
	check func(context.Context) (bool, error)) (bool, error) {
	if !s.cfg.AuthorizationEnabled {
		return true, nil
	}

	started := time.Now()

	isSuper, err := s.IsSuperUser(ctx, role)
	if err != nil {
		s.metrics.RecordDecision(ctx, operation, false, true, time.Since(started))
		return false, err
	}
	if isSuper {
		s.metrics.RecordDecision(ctx, operation, true, false, time.Since(started))
		return true, nil
	}

	allowed, err := check(ctx)
	switch {
	case err == nil:
		s.metrics.RecordDecision(ctx, operation, allowed, false, time.Since(started))
		return allowed, nil
	case errors.Is(err, ErrUnsupportedOperation):
		// Unsupported predicates deny rather than fail, so a partial
		// provider cannot be tricked into allowing by omission.
		util.Log(ctx).WithField("operation", operation).Debug("provider does not support operation")
		s.metrics.RecordDecision(ctx, operation, false, false, time.Since(started))
		return false, nil
	default:
		s.metrics.RecordDecision(ctx, operation, false, true, time.Since(started))
		return false, fmt.Errorf("%s authorization for %s: %w", operation, role, err)
	}
}

// GrantNamespacePermission adds actions to the role's namespace grant.
func (s *Service) GrantNamespacePermission(ctx context.Context, namespace, role string,
	actions []Action, authDataJSON string) error {
	if err := s.provider.GrantNamespacePermission(ctx, namespace, role, actions, authDataJSON); err != nil {
		return err
	}
	s.metrics.RecordGrantChange(ctx, models.ScopeNamespace, models.PermissionActionGranted)
	s.emitPermissionChanged(ctx, &models.PermissionChangedEvent{
		Scope:     models.ScopeNamespace,
		Namespace: namespace,
		Role:      role,
		Action:    models.PermissionActionGranted,
	})
	return nil
}

// GrantTopicPermission adds actions to the role's grant on one topic.
func (s *Service) GrantTopicPermission(ctx context.Context, topic naming.TopicName, role string,
	actions []Action, authDataJSON string) error {
	if err := s.provider.GrantTopicPermission(ctx, topic, role, actions, authDataJSON); err != nil {
		return err
	}
	s.metrics.RecordGrantChange(ctx, models.ScopeTopic, models.PermissionActionGranted)
	s.emitPermissionChanged(ctx, &models.PermissionChangedEvent{
		Scope:     models.ScopeTopic,
		Namespace: topic.NamespaceName(),
		Topic:     topic.String(),
		Role:      role,
		Action:    models.PermissionActionGranted,
	})
	return nil
}

// RevokeNamespacePermission removes the role's namespace grant entirely.
func (s *Service) RevokeNamespacePermission(ctx context.Context, namespace, role string) error {
	if err := s.provider.RevokeNamespacePermission(ctx, namespace, role); err != nil {
		return err
	}
	s.metrics.RecordGrantChange(ctx, models.ScopeNamespace, models.PermissionActionRevoked)
	s.emitPermissionChanged(ctx, &models.PermissionChangedEvent{
		Scope:     models.ScopeNamespace,
		Namespace: namespace,
		Role:      role,
		Action:    models.PermissionActionRevoked,
	})
	return nil
}

// RevokeTopicPermission removes the role's grant on one topic.
func (s *Service) RevokeTopicPermission(ctx context.Context, topic naming.TopicName, role string) error {
	if err := s.provider.RevokeTopicPermission(ctx, topic, role); err != nil {
		return err
	}
	s.metrics.RecordGrantChange(ctx, models.ScopeTopic, models.PermissionActionRevoked)
	s.emitPermissionChanged(ctx, &models.PermissionChangedEvent{
		Scope:     models.ScopeTopic,
		Namespace: topic.NamespaceName(),
		Topic:     topic.String(),
		Role:      role,
		Action:    models.PermissionActionRevoked,
	})
	return nil
}

// GrantSubscriptionPermission replaces the subscription's allowed role
// set with exactly the given roles.
func (s *Service) GrantSubscriptionPermission(ctx context.Context, namespace, subscription string,
	roles []string, authDataJSON string) error {
	if err := s.provider.GrantSubscriptionPermission(ctx, namespace, subscription, roles, authDataJSON); err != nil {
		return err
	}
	s.metrics.RecordGrantChange(ctx, models.ScopeSubscription, models.PermissionActionGranted)
	s.emitPermissionChanged(ctx, &models.PermissionChangedEvent{
		Scope:        models.ScopeSubscription,
		Namespace:    namespace,
		Subscription: subscription,
		Action:       models.PermissionActionGranted,
	})
	return nil
}

// RevokeSubscriptionPermission removes one role from the subscription's
// allow list.
func (s *Service) RevokeSubscriptionPermission(ctx context.Context, namespace, subscription, role string) error {
	if err := s.provider.RevokeSubscriptionPermission(ctx, namespace, subscription, role); err != nil {
		return err
	}
	s.metrics.RecordGrantChange(ctx, models.ScopeSubscription, models.PermissionActionRevoked)
	s.emitPermissionChanged(ctx, &models.PermissionChangedEvent{
		Scope:        models.ScopeSubscription,
		Namespace:    namespace,
		Subscription: subscription,
		Role:         role,
		Action:       models.PermissionActionRevoked,
	})
	return nil
}

// NamespacePermissions lists the namespace scope grants.
func (s *Service) NamespacePermissions(ctx context.Context, namespace string) (map[string][]Action, error) {
	return s.provider.NamespacePermissions(ctx, namespace)
}

// TopicPermissions lists the grants on one topic.
func (s *Service) TopicPermissions(ctx context.Context, topic naming.TopicName) (map[string][]Action, error) {
	return s.provider.TopicPermissions(ctx, topic)
}

func (s *Service) emitPermissionChanged(ctx context.Context, event *models.PermissionChangedEvent) {
	if s.eventsMan == nil {
		return
	}
	if err := s.eventsMan.Emit(ctx, PermissionChangedEventName, event); err != nil {
		util.Log(ctx).WithError(err).Error("failed to emit permission changed event",
			"scope", event.Scope,
			"namespace", event.Namespace,
		)
	}
}

// PermissionChangedEventName is the internal frame event name for grant
// and revoke notifications.
const PermissionChangedEventName = "permission.changed"
