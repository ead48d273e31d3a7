package main

import (
	"context"
	"net/http"

	"github.com/pitabwire/frame"
	frameconfig "github.com/pitabwire/frame/config"
	"github.com/pitabwire/frame/datastore"
	"github.com/pitabwire/frame/security"
	securityhttp "github.com/pitabwire/frame/security/interceptors/httptor"
	"github.com/pitabwire/util"

	"github.com/laran/pulsar/config"
	"github.com/laran/pulsar/service/admission"
	"github.com/laran/pulsar/service/authorization"
	"github.com/laran/pulsar/service/caching"
	"github.com/laran/pulsar/service/events"
	"github.com/laran/pulsar/service/handlers"
	"github.com/laran/pulsar/service/lookup"
	"github.com/laran/pulsar/service/observability"
	"github.com/laran/pulsar/service/repository"
)

func main() { //nolint:funlen // wiring function
	ctx := context.Background()

	cfg, err := frameconfig.LoadWithOIDC[config.GatewayConfig](ctx)
	if err != nil {
		util.Log(ctx).With("err", err).Error("could not process configs")
		return
	}

	if cfg.Name() == "" {
		cfg.ServiceName = "service_gateway"
	}

	ctx, svc := frame.NewServiceWithContext(
		ctx,
		frame.WithConfig(&cfg),
		frame.WithRegisterServerOauth2Client(),
		frame.WithDatastore(),
		frame.WithCacheManager(),
		frame.WithInMemoryCache(config.CacheNamePolicies),
	)
	defer svc.Stop(ctx)
	log := svc.Log(ctx)

	dbManager := svc.DatastoreManager()

	// Handle database migration if requested.
	if cfg.DoDatabaseMigrate() {
		if mErr := repository.Migrate(ctx, dbManager, cfg.GetDatabaseMigrationPath()); mErr != nil {
			log.WithError(mErr).Fatal("could not migrate database")
		}
		return
	}

	// Initialize repositories.
	dbPool := dbManager.GetPool(ctx, datastore.DefaultPoolName)
	workMan, evtsMan := svc.WorkManager(), svc.EventsManager()

	namespaceGrantRepo := repository.NewNamespaceGrantRepository(ctx, dbPool, workMan)
	topicGrantRepo := repository.NewTopicGrantRepository(ctx, dbPool, workMan)
	subscriptionGrantRepo := repository.NewSubscriptionGrantRepository(ctx, dbPool, workMan)

	// Initialize observability and caching.
	metrics := observability.NewMetrics()
	policyCache := caching.NewPolicyCache(svc.CacheManager(), &cfg)

	// Initialize the configured authorization provider.
	provider, err := authorization.NewProvider(cfg.AuthorizationProvider)
	if err != nil {
		log.WithError(err).Fatal("could not create authorization provider")
	}
	err = provider.Initialize(ctx, authorization.Dependencies{
		Config:             &cfg,
		NamespaceGrants:    namespaceGrantRepo,
		TopicGrants:        topicGrantRepo,
		SubscriptionGrants: subscriptionGrantRepo,
		Cache:              policyCache,
	})
	if err != nil {
		log.WithError(err).Fatal("could not initialize authorization provider")
	}
	defer func() {
		if closeErr := provider.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("authorization provider close failed")
		}
	}()

	authSvc := authorization.NewService(&cfg, provider, evtsMan, metrics)
	gate := admission.NewGateway(&cfg, metrics)

	resolver, err := lookup.NewStaticResolver(&cfg)
	if err != nil {
		log.WithError(err).Fatal("could not build topic lookup resolver")
	}

	// Setup HTTP handler with authentication and the connection gate.
	sm := svc.SecurityManager()

	gatewayServer := handlers.NewGatewayServer(
		svc, authSvc, gate, resolver, metrics, cfg.MaxRequestBodyBytes,
	)

	connectionLimit := handlers.NewConnectionLimitMiddleware(gate)

	// Health check is unauthenticated; all other routes require authentication.
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("GET /healthz", gatewayServer.HealthCheck)

	authenticatedRouter := authenticateRouter(ctx, sm, gatewayServer.NewRouter())

	mux := http.NewServeMux()
	mux.Handle("/healthz", healthMux)
	mux.Handle("/", connectionLimit(authenticatedRouter))

	// Register event consumers and start service.
	svc.Init(ctx,
		frame.WithHTTPHandler(mux),
		frame.WithRegisterEvents(
			events.NewPermissionChangeConsumer(policyCache),
		),
	)

	if runErr := svc.Run(ctx, ""); runErr != nil {
		log.WithError(runErr).Fatal("could not run server")
	}
}

// authenticateRouter wraps the given handler with OAuth2 authentication middleware.
func authenticateRouter(
	ctx context.Context,
	sm security.Manager,
	handler http.Handler,
) http.Handler {
	authenticator := sm.GetAuthenticator(ctx)
	return securityhttp.AuthenticationMiddleware(handler, authenticator)
}
