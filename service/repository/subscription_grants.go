package repository

import (
	"context"
	"fmt"

	"github.com/pitabwire/frame/data"
	"github.com/pitabwire/frame/datastore"
	"github.com/pitabwire/frame/datastore/pool"
	"github.com/pitabwire/frame/workerpool"

	"github.com/laran/pulsar/service/models"
)

type subscriptionGrantRepository struct {
	datastore.BaseRepository[*models.SubscriptionGrant]
}

// NewSubscriptionGrantRepository creates a repository for subscription
// role allow lists.
func NewSubscriptionGrantRepository(
	ctx context.Context, dbPool pool.Pool, workMan workerpool.Manager,
) SubscriptionGrantRepository {
	return &subscriptionGrantRepository{
		BaseRepository: datastore.NewBaseRepository[*models.SubscriptionGrant](
			ctx, dbPool, workMan, func() *models.SubscriptionGrant { return &models.SubscriptionGrant{} },
		),
	}
}

func (r *subscriptionGrantRepository) Get(
	ctx context.Context, namespace, subscription string,
) (*models.SubscriptionGrant, error) {
	grant := &models.SubscriptionGrant{}
	err := r.Pool().DB(ctx, true).
		Where("namespace = ? AND subscription = ?", namespace, subscription).
		First(grant).Error
	if err != nil {
		return nil, err
	}
	return grant, nil
}

func (r *subscriptionGrantRepository) ListByNamespace(
	ctx context.Context, namespace string,
) ([]*models.SubscriptionGrant, error) {
	var grants []*models.SubscriptionGrant
	err := r.Pool().DB(ctx, true).
		Where("namespace = ?", namespace).
		Find(&grants).Error
	if err != nil {
		return nil, err
	}
	return grants, nil
}

func (r *subscriptionGrantRepository) ReplaceRoles(
	ctx context.Context, namespace, subscription string, roles []string,
) error {
	grant, err := r.Get(ctx, namespace, subscription)
	if err != nil {
		if !data.ErrorIsNoRows(err) {
			return fmt.Errorf("read subscription grant %s/%s: %w", namespace, subscription, err)
		}
		grant = &models.SubscriptionGrant{
			Namespace:    namespace,
			Subscription: subscription,
		}
		grant.GenID(ctx)
	}

	// The prior role set is discarded, not merged.
	grant.Roles = models.SetToJSONMap(roles)

	if err = r.Pool().DB(ctx, false).Save(grant).Error; err != nil {
		return fmt.Errorf("save subscription grant %s/%s: %w", namespace, subscription, err)
	}
	return nil
}

func (r *subscriptionGrantRepository) RemoveRole(
	ctx context.Context, namespace, subscription, role string,
) error {
	grant, err := r.Get(ctx, namespace, subscription)
	if err != nil {
		if data.ErrorIsNoRows(err) {
			return nil
		}
		return fmt.Errorf("read subscription grant %s/%s: %w", namespace, subscription, err)
	}

	if grant.Roles == nil {
		return nil
	}
	delete(grant.Roles, role)

	if err = r.Pool().DB(ctx, false).Save(grant).Error; err != nil {
		return fmt.Errorf("save subscription grant %s/%s: %w", namespace, subscription, err)
	}
	return nil
}
