package tests

import (
	"context"
	"testing"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	"github.com/pitabwire/frame/datastore"
	"github.com/pitabwire/frame/frametests"
	"github.com/pitabwire/frame/frametests/definition"
	"github.com/pitabwire/frame/frametests/deps/testpostgres"
	"github.com/pitabwire/frame/security"
	"github.com/pitabwire/util"
	"github.com/stretchr/testify/require"

	gconfig "github.com/laran/pulsar/config"
	"github.com/laran/pulsar/service/caching"
	"github.com/laran/pulsar/service/repository"
)

const (
	DefaultRandomStringLength = 8
)

// GatewayBaseTestSuite stands up a postgres backed frame service for
// permission store tests.
type GatewayBaseTestSuite struct {
	frametests.FrameBaseTestSuite
}

// DepsBuilder bundles the repositories and cache built against a test
// service instance.
type DepsBuilder struct {
	NamespaceGrantRepo    repository.NamespaceGrantRepository
	TopicGrantRepo        repository.TopicGrantRepository
	SubscriptionGrantRepo repository.SubscriptionGrantRepository

	PolicyCache *caching.PolicyCache
}

// BuildRepos wires the permission store repositories for a test service.
func BuildRepos(ctx context.Context, svc *frame.Service) *DepsBuilder {
	dbPool := svc.DatastoreManager().GetPool(ctx, datastore.DefaultPoolName)
	workMan := svc.WorkManager()

	cfg, _ := svc.Config().(*gconfig.GatewayConfig)

	// Cache may be nil in test environments without a cache manager.
	var policyCache *caching.PolicyCache
	if cacheMan := svc.CacheManager(); cacheMan != nil {
		policyCache = caching.NewPolicyCache(cacheMan, cfg)
	}

	return &DepsBuilder{
		NamespaceGrantRepo:    repository.NewNamespaceGrantRepository(ctx, dbPool, workMan),
		TopicGrantRepo:        repository.NewTopicGrantRepository(ctx, dbPool, workMan),
		SubscriptionGrantRepo: repository.NewSubscriptionGrantRepository(ctx, dbPool, workMan),
		PolicyCache:           policyCache,
	}
}

func initResources(_ context.Context) []definition.TestResource {
	pg := testpostgres.NewWithOpts("service_gateway", definition.WithUserName("ant"))
	return []definition.TestResource{pg}
}

func (bs *GatewayBaseTestSuite) SetupSuite() {
	bs.InitResourceFunc = initResources
	bs.FrameBaseTestSuite.SetupSuite()
}

// CreateService builds a frame service against a randomised test database
// and migrates the permission store schema.
func (bs *GatewayBaseTestSuite) CreateService(
	t *testing.T,
	depOpts *definition.DependencyOption,
) (context.Context, *frame.Service, *DepsBuilder) {
	ctx := t.Context()
	t.Setenv("OTEL_TRACES_EXPORTER", "none")
	cfg, err := config.FromEnv[gconfig.GatewayConfig]()
	require.NoError(t, err)

	cfg.LogLevel = "debug"
	cfg.RunServiceSecurely = false
	cfg.DatabaseMigrate = true
	cfg.DatabaseTraceQueries = true
	cfg.ServerPort = ""

	res := depOpts.ByIsDatabase(ctx)
	testDS, cleanup, err0 := res.GetRandomisedDS(ctx, depOpts.Prefix())
	require.NoError(t, err0)

	t.Cleanup(func() {
		cleanup(ctx)
	})

	cfg.DatabasePrimaryURL = []string{testDS.String()}
	cfg.DatabaseReplicaURL = []string{testDS.String()}

	ctx, svc := frame.NewServiceWithContext(ctx, frame.WithName("gateway tests"),
		frame.WithConfig(&cfg),
		frame.WithDatastore(),
		frame.WithCacheManager(),
		frame.WithInMemoryCache(gconfig.CacheNamePolicies),
		frametests.WithNoopDriver())

	depsBuilder := BuildRepos(ctx, svc)

	svc.Init(ctx)

	err = repository.Migrate(ctx, svc.DatastoreManager(), "../../migrations/0001")
	require.NoError(t, err)

	err = svc.Run(ctx, "")
	require.NoError(t, err)

	return ctx, svc, depsBuilder
}

// WithAuthClaims adds authentication claims to a context for testing.
func (bs *GatewayBaseTestSuite) WithAuthClaims(
	ctx context.Context,
	tenantID, partitionID, role string,
) context.Context {
	claims := &security.AuthenticationClaims{
		TenantID:    tenantID,
		PartitionID: partitionID,
		AccessID:    util.IDString(),
		SessionID:   util.IDString(),
	}
	claims.Subject = role
	return claims.ClaimsToContext(ctx)
}

func (bs *GatewayBaseTestSuite) TearDownSuite() {
	bs.FrameBaseTestSuite.TearDownSuite()
}

// WithTestDependencies creates subtests with each known DependancyOption.
func (bs *GatewayBaseTestSuite) WithTestDependencies(
	t *testing.T,
	testFn func(t *testing.T, dep *definition.DependencyOption),
) {
	options := []*definition.DependencyOption{
		definition.NewDependancyOption(
			"default",
			util.RandomAlphaNumericString(DefaultRandomStringLength),
			bs.Resources(),
		),
	}

	frametests.WithTestDependencies(t, options, testFn)
}
