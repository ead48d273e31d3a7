package admission_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laran/pulsar/config"
	"github.com/laran/pulsar/service/admission"
)

func newTestGateway(maxLookups, maxConnections int64) *admission.Gateway {
	cfg := &config.GatewayConfig{
		MaxConcurrentLookupRequests:     maxLookups,
		MaxConcurrentInboundConnections: maxConnections,
	}
	return admission.NewGateway(cfg, nil)
}

func TestLookupPermitsExhaustAndRecover(t *testing.T) {
	ctx := t.Context()
	gate := newTestGateway(3, 10)

	permits := make([]*admission.Permit, 0, 3)
	for i := 0; i < 3; i++ {
		permit, ok := gate.TryAcquireLookup(ctx)
		require.True(t, ok, "permit %d should be granted", i)
		permits = append(permits, permit)
	}

	// Fourth request is over capacity and must be rejected, not queued.
	rejected, ok := gate.TryAcquireLookup(ctx)
	assert.False(t, ok)
	assert.Nil(t, rejected)
	assert.Equal(t, int64(1), gate.RejectedLookups())

	// Releasing one slot lets exactly one request through again.
	permits[0].Release()
	permit, ok := gate.TryAcquireLookup(ctx)
	require.True(t, ok)

	_, ok = gate.TryAcquireLookup(ctx)
	assert.False(t, ok)
	assert.Equal(t, int64(2), gate.RejectedLookups())

	permit.Release()
	permits[1].Release()
	permits[2].Release()
}

func TestConnectionPermitsAreIndependentOfLookups(t *testing.T) {
	ctx := t.Context()
	gate := newTestGateway(1, 2)

	lookupPermit, ok := gate.TryAcquireLookup(ctx)
	require.True(t, ok)
	defer lookupPermit.Release()

	// Lookup exhaustion does not consume connection capacity.
	_, ok = gate.TryAcquireLookup(ctx)
	require.False(t, ok)

	first, ok := gate.TryAcquireConnection(ctx)
	require.True(t, ok)
	second, ok := gate.TryAcquireConnection(ctx)
	require.True(t, ok)

	_, ok = gate.TryAcquireConnection(ctx)
	assert.False(t, ok)
	assert.Equal(t, int64(1), gate.RejectedConnections())
	assert.Equal(t, int64(1), gate.RejectedLookups())

	first.Release()
	second.Release()
}

func TestPermitReleaseIsIdempotent(t *testing.T) {
	ctx := t.Context()
	gate := newTestGateway(1, 1)

	permit, ok := gate.TryAcquireLookup(ctx)
	require.True(t, ok)

	// Double release must not free a slot twice.
	permit.Release()
	permit.Release()

	first, ok := gate.TryAcquireLookup(ctx)
	require.True(t, ok)
	_, ok = gate.TryAcquireLookup(ctx)
	assert.False(t, ok)

	first.Release()
}

func TestNilPermitReleaseIsSafe(t *testing.T) {
	var permit *admission.Permit
	permit.Release()
}

func TestDefaultsApplyWhenLimitsUnset(t *testing.T) {
	ctx := t.Context()
	gate := admission.NewGateway(&config.GatewayConfig{}, nil)

	permit, ok := gate.TryAcquireLookup(ctx)
	require.True(t, ok)
	permit.Release()

	permit, ok = gate.TryAcquireConnection(ctx)
	require.True(t, ok)
	permit.Release()
}
