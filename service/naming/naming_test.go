package naming_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laran/pulsar/service/naming"
)

func TestParseTopic(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    naming.TopicName
		wantErr bool
	}{
		{
			name:  "fully qualified persistent",
			input: "persistent://acme/orders/created",
			want: naming.TopicName{
				Domain: "persistent", Tenant: "acme", Namespace: "orders", Local: "created",
			},
		},
		{
			name:  "non persistent",
			input: "non-persistent://acme/metrics/cpu",
			want: naming.TopicName{
				Domain: "non-persistent", Tenant: "acme", Namespace: "metrics", Local: "cpu",
			},
		},
		{
			name:  "bare triple defaults to persistent",
			input: "acme/orders/created",
			want: naming.TopicName{
				Domain: "persistent", Tenant: "acme", Namespace: "orders", Local: "created",
			},
		},
		{
			name:  "local name may contain slashes",
			input: "persistent://acme/orders/region/eu/created",
			want: naming.TopicName{
				Domain: "persistent", Tenant: "acme", Namespace: "orders", Local: "region/eu/created",
			},
		},
		{
			name:    "unknown domain",
			input:   "ephemeral://acme/orders/created",
			wantErr: true,
		},
		{
			name:    "missing topic segment",
			input:   "persistent://acme/orders",
			wantErr: true,
		},
		{
			name:    "empty segment",
			input:   "persistent://acme//created",
			wantErr: true,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := naming.ParseTopic(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTopicNameRoundTrip(t *testing.T) {
	topic, err := naming.ParseTopic("acme/orders/created")
	require.NoError(t, err)

	assert.Equal(t, "persistent://acme/orders/created", topic.String())
	assert.Equal(t, "acme/orders", topic.NamespaceName())
}

func TestParseNamespace(t *testing.T) {
	ns, err := naming.ParseNamespace("acme/orders")
	require.NoError(t, err)
	assert.Equal(t, "acme/orders", ns)

	for _, bad := range []string{"", "acme", "acme/", "/orders", "acme/orders/extra"} {
		_, err = naming.ParseNamespace(bad)
		assert.Error(t, err, "namespace %q should be rejected", bad)
	}
}
