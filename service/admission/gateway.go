// Package admission bounds the work the gateway accepts. Two counting
// semaphores cap concurrent topic lookups and concurrent inbound
// connections; acquisition never blocks, so overload turns into an
// immediate rejection the caller can surface instead of a queue.
package admission

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/laran/pulsar/config"
	"github.com/laran/pulsar/service/observability"
)

// Gateway admits or rejects work against the configured concurrency caps.
// Safe for concurrent use.
type Gateway struct {
	lookups     *semaphore.Weighted
	connections *semaphore.Weighted
	metrics     *observability.Metrics

	rejectedLookups     atomic.Int64
	rejectedConnections atomic.Int64
}

// NewGateway builds a gateway from the configured limits. Limits below
// one fall back to the documented defaults rather than denying all work.
func NewGateway(cfg *config.GatewayConfig, metrics *observability.Metrics) *Gateway {
	maxLookups := cfg.MaxConcurrentLookupRequests
	if maxLookups < 1 {
		maxLookups = config.DefaultMaxConcurrentLookupRequests
	}
	maxConnections := cfg.MaxConcurrentInboundConnections
	if maxConnections < 1 {
		maxConnections = config.DefaultMaxConcurrentInboundConnections
	}

	return &Gateway{
		lookups:     semaphore.NewWeighted(maxLookups),
		connections: semaphore.NewWeighted(maxConnections),
		metrics:     metrics,
	}
}

// TryAcquireLookup claims a lookup slot without blocking. On success the
// returned permit must be released when the lookup finishes; on rejection
// the permit is nil and the rejection counter advances.
func (g *Gateway) TryAcquireLookup(ctx context.Context) (*Permit, bool) {
	if g.lookups.TryAcquire(1) {
		return newPermit(g.lookups), true
	}
	g.rejectedLookups.Add(1)
	if g.metrics != nil {
		g.metrics.RecordLookupRejected(ctx)
	}
	return nil, false
}

// TryAcquireConnection claims an inbound connection slot without blocking.
// The permit spans the connection's whole lifetime.
func (g *Gateway) TryAcquireConnection(ctx context.Context) (*Permit, bool) {
	if g.connections.TryAcquire(1) {
		return newPermit(g.connections), true
	}
	g.rejectedConnections.Add(1)
	if g.metrics != nil {
		g.metrics.RecordConnectionRejected(ctx)
	}
	return nil, false
}

// RejectedLookups returns the number of lookups rejected since startup.
func (g *Gateway) RejectedLookups() int64 {
	return g.rejectedLookups.Load()
}

// RejectedConnections returns the number of connections rejected since
// startup.
func (g *Gateway) RejectedConnections() int64 {
	return g.rejectedConnections.Load()
}

// Permit is one admitted unit of work. Release returns its slot; extra
// Release calls are no-ops, so deferred and explicit release can coexist.
type Permit struct {
	sem  *semaphore.Weighted
	once sync.Once
}

func newPermit(sem *semaphore.Weighted) *Permit {
	return &Permit{sem: sem}
}

// Release returns the slot to the gateway. Safe to call more than once
// and safe on a nil permit.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		p.sem.Release(1)
	})
}
