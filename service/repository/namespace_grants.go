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

type namespaceGrantRepository struct {
	datastore.BaseRepository[*models.NamespaceGrant]
}

// NewNamespaceGrantRepository creates a repository for namespace grants.
func NewNamespaceGrantRepository(
	ctx context.Context, dbPool pool.Pool, workMan workerpool.Manager,
) NamespaceGrantRepository {
	return &namespaceGrantRepository{
		BaseRepository: datastore.NewBaseRepository[*models.NamespaceGrant](
			ctx, dbPool, workMan, func() *models.NamespaceGrant { return &models.NamespaceGrant{} },
		),
	}
}

func (r *namespaceGrantRepository) GetByNamespaceAndRole(
	ctx context.Context, namespace, role string,
) (*models.NamespaceGrant, error) {
	grant := &models.NamespaceGrant{}
	err := r.Pool().DB(ctx, true).
		Where("namespace = ? AND role = ?", namespace, role).
		First(grant).Error
	if err != nil {
		return nil, err
	}
	return grant, nil
}

func (r *namespaceGrantRepository) ListByNamespace(
	ctx context.Context, namespace string,
) ([]*models.NamespaceGrant, error) {
	var grants []*models.NamespaceGrant
	err := r.Pool().DB(ctx, true).Where("namespace = ?", namespace).Find(&grants).Error
	if err != nil {
		return nil, fmt.Errorf("list grants for namespace %s: %w", namespace, err)
	}
	return grants, nil
}

func (r *namespaceGrantRepository) MergeActions(
	ctx context.Context, namespace, role string, actions []string,
) error {
	grant, err := r.GetByNamespaceAndRole(ctx, namespace, role)
	if err != nil {
		if !data.ErrorIsNoRows(err) {
			return fmt.Errorf("read grant for %s on namespace %s: %w", role, namespace, err)
		}
		grant = &models.NamespaceGrant{
			Namespace: namespace,
			Role:      role,
			Actions:   data.JSONMap{},
		}
		grant.GenID(ctx)
	}

	if grant.Actions == nil {
		grant.Actions = data.JSONMap{}
	}
	for _, action := range actions {
		grant.Actions[action] = true
	}

	if err = r.Pool().DB(ctx, false).Save(grant).Error; err != nil {
		return fmt.Errorf("save grant for %s on namespace %s: %w", role, namespace, err)
	}
	return nil
}

func (r *namespaceGrantRepository) RemoveRole(ctx context.Context, namespace, role string) error {
	err := r.Pool().DB(ctx, false).
		Where("namespace = ? AND role = ?", namespace, role).
		Delete(&models.NamespaceGrant{}).Error
	if err != nil {
		return fmt.Errorf("remove grant for %s on namespace %s: %w", role, namespace, err)
	}
	return nil
}
