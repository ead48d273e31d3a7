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

type topicGrantRepository struct {
	datastore.BaseRepository[*models.TopicGrant]
}

// NewTopicGrantRepository creates a repository for topic grants.
func NewTopicGrantRepository(
	ctx context.Context, dbPool pool.Pool, workMan workerpool.Manager,
) TopicGrantRepository {
	return &topicGrantRepository{
		BaseRepository: datastore.NewBaseRepository[*models.TopicGrant](
			ctx, dbPool, workMan, func() *models.TopicGrant { return &models.TopicGrant{} },
		),
	}
}

func (r *topicGrantRepository) GetByTopicAndRole(
	ctx context.Context, topic, role string,
) (*models.TopicGrant, error) {
	grant := &models.TopicGrant{}
	err := r.Pool().DB(ctx, true).
		Where("topic = ? AND role = ?", topic, role).
		First(grant).Error
	if err != nil {
		return nil, err
	}
	return grant, nil
}

func (r *topicGrantRepository) ListByTopic(ctx context.Context, topic string) ([]*models.TopicGrant, error) {
	var grants []*models.TopicGrant
	err := r.Pool().DB(ctx, true).Where("topic = ?", topic).Find(&grants).Error
	if err != nil {
		return nil, fmt.Errorf("list grants for topic %s: %w", topic, err)
	}
	return grants, nil
}

func (r *topicGrantRepository) MergeActions(
	ctx context.Context, topic, namespace, role string, actions []string,
) error {
	grant, err := r.GetByTopicAndRole(ctx, topic, role)
	if err != nil {
		if !data.ErrorIsNoRows(err) {
			return fmt.Errorf("read grant for %s on topic %s: %w", role, topic, err)
		}
		grant = &models.TopicGrant{
			Topic:     topic,
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
		return fmt.Errorf("save grant for %s on topic %s: %w", role, topic, err)
	}
	return nil
}

func (r *topicGrantRepository) RemoveRole(ctx context.Context, topic, role string) error {
	err := r.Pool().DB(ctx, false).
		Where("topic = ? AND role = ?", topic, role).
		Delete(&models.TopicGrant{}).Error
	if err != nil {
		return fmt.Errorf("remove grant for %s on topic %s: %w", role, topic, err)
	}
	return nil
}
