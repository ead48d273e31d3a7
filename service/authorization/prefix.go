package authorization

import (
	"context"
	"fmt"
	"strings"

	"github.com/laran/pulsar/service/naming"
)

// ProviderNamePrefix is the registry name of the subscription prefix
// policy provider.
const ProviderNamePrefix = "prefix"

func init() {
	Register(ProviderNamePrefix, func() Provider {
		return &prefixProvider{}
	})
}

// prefixProvider layers a subscription naming policy on top of the
// standard provider: a role may only consume through subscriptions whose
// name starts with that role. Everything else delegates to the standard
// evaluation.
type prefixProvider struct {
	standardProvider
}

func (p *prefixProvider) CanConsume(ctx context.Context, topic naming.TopicName, role string,
	authData *AuthenticationData, subscription string) (bool, error) {
	if subscription != "" && !strings.HasPrefix(subscription, role) {
		return false, &PolicyViolationError{
			Rule:   "subscription-prefix",
			Detail: fmt.Sprintf("subscription %q must start with consumer role %q", subscription, role),
		}
	}
	return p.standardProvider.CanConsume(ctx, topic, role, authData, subscription)
}
