package repository

import (
	"context"

	"github.com/pitabwire/frame/datastore"

	"github.com/laran/pulsar/service/models"
)

// Migrate runs database migrations for the gateway's permission store.
func Migrate(ctx context.Context, dbManager datastore.Manager, migrationPath string) error {
	dbPool := dbManager.GetPool(ctx, datastore.DefaultMigrationPoolName)

	return dbManager.Migrate(ctx, dbPool, migrationPath,
		&models.NamespaceGrant{},
		&models.TopicGrant{},
		&models.SubscriptionGrant{},
	)
}
