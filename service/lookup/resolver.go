// Package lookup resolves which broker serves a topic. The gateway does
// not own topic assignment; it only needs to hand an authorized client a
// broker URL it can connect to.
package lookup

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/laran/pulsar/config"
	"github.com/laran/pulsar/service/naming"
)

// ErrNoBrokersConfigured is returned when the resolver has no broker
// service URLs to hand out.
var ErrNoBrokersConfigured = errors.New("no broker service URLs configured")

// Resolver maps a topic to the broker service URL a client should use.
type Resolver interface {
	Resolve(ctx context.Context, topic naming.TopicName) (string, error)
}

// roundRobinResolver spreads lookups across a static broker list. The
// index may skew under contention, which is fine for load spreading.
type roundRobinResolver struct {
	urls []string
	next atomic.Uint64
}

// NewStaticResolver builds a round robin resolver over the configured
// broker service URLs.
func NewStaticResolver(cfg *config.GatewayConfig) (Resolver, error) {
	urls := cfg.BrokerURLList()
	if len(urls) == 0 {
		return nil, ErrNoBrokersConfigured
	}
	return &roundRobinResolver{urls: urls}, nil
}

func (r *roundRobinResolver) Resolve(_ context.Context, _ naming.TopicName) (string, error) {
	n := r.next.Add(1) - 1
	return r.urls[n%uint64(len(r.urls))], nil
}
