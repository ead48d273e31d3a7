package naming

import (
	"fmt"
	"strings"
)

// Topic domains supported by the platform.
const (
	DomainPersistent    = "persistent"
	DomainNonPersistent = "non-persistent"
)

// TopicName is a fully qualified topic reference of the form
// {domain}://{tenant}/{namespace}/{topic}.
type TopicName struct {
	Domain    string
	Tenant    string
	Namespace string
	Local     string
}

// ParseTopic parses a fully qualified topic name. A bare
// tenant/namespace/topic triple defaults to the persistent domain.
func ParseTopic(name string) (TopicName, error) {
	domain := DomainPersistent
	rest := name

	if idx := strings.Index(name, "://"); idx >= 0 {
		domain = name[:idx]
		rest = name[idx+3:]
	}

	if domain != DomainPersistent && domain != DomainNonPersistent {
		return TopicName{}, fmt.Errorf("invalid topic domain %q in %q", domain, name)
	}

	parts := strings.SplitN(rest, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return TopicName{}, fmt.Errorf(
			"invalid topic name %q, expected {domain}://{tenant}/{namespace}/{topic}", name)
	}

	return TopicName{
		Domain:    domain,
		Tenant:    parts[0],
		Namespace: parts[1],
		Local:     parts[2],
	}, nil
}

// NamespaceName returns the tenant/namespace portion of the topic.
func (t TopicName) NamespaceName() string {
	return t.Tenant + "/" + t.Namespace
}

// String returns the fully qualified topic name.
func (t TopicName) String() string {
	return fmt.Sprintf("%s://%s/%s/%s", t.Domain, t.Tenant, t.Namespace, t.Local)
}

// ParseNamespace validates a tenant/namespace pair.
func ParseNamespace(name string) (string, error) {
	parts := strings.Split(name, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("invalid namespace %q, expected {tenant}/{namespace}", name)
	}
	return name, nil
}
