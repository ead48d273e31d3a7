package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/security"
	"github.com/pitabwire/util"

	"github.com/laran/pulsar/service/admission"
	"github.com/laran/pulsar/service/authorization"
	"github.com/laran/pulsar/service/lookup"
	"github.com/laran/pulsar/service/naming"
	"github.com/laran/pulsar/service/observability"
)

const defaultMaxBodyBytes = 1 << 20 // 1 MiB

// GatewayServer handles the REST API of the authorization and admission
// gateway.
type GatewayServer struct {
	Service      *frame.Service
	authSvc      *authorization.Service
	gate         *admission.Gateway
	resolver     lookup.Resolver
	metrics      *observability.Metrics
	maxBodyBytes int64
}

// NewGatewayServer creates a GatewayServer with all its dependencies.
func NewGatewayServer(
	svc *frame.Service,
	authSvc *authorization.Service,
	gate *admission.Gateway,
	resolver lookup.Resolver,
	metrics *observability.Metrics,
	maxBodyBytes int64,
) *GatewayServer {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &GatewayServer{
		Service:      svc,
		authSvc:      authSvc,
		gate:         gate,
		resolver:     resolver,
		metrics:      metrics,
		maxBodyBytes: maxBodyBytes,
	}
}

// NewRouter registers all gateway REST API routes.
func (s *GatewayServer) NewRouter() *http.ServeMux {
	mux := http.NewServeMux()

	// Health check (unauthenticated).
	mux.HandleFunc("GET /healthz", s.HealthCheck)

	// Authorization checks.
	mux.HandleFunc("POST /v1/permissions/check", s.CheckPermission)

	// Namespace scope grants.
	mux.HandleFunc("GET /v1/namespaces/{tenant}/{namespace}/permissions", s.GetNamespacePermissions)
	mux.HandleFunc("POST /v1/namespaces/{tenant}/{namespace}/permissions/{role}", s.GrantNamespacePermission)
	mux.HandleFunc("DELETE /v1/namespaces/{tenant}/{namespace}/permissions/{role}", s.RevokeNamespacePermission)

	// Topic scope grants. Local names containing slashes are addressed
	// with %2F escapes, which the mux keeps as one segment.
	mux.HandleFunc("GET /v1/topics/{domain}/{tenant}/{namespace}/{topic}/permissions", s.GetTopicPermissions)
	mux.HandleFunc("POST /v1/topics/{domain}/{tenant}/{namespace}/{topic}/permissions/{role}",
		s.GrantTopicPermission)
	mux.HandleFunc("DELETE /v1/topics/{domain}/{tenant}/{namespace}/{topic}/permissions/{role}",
		s.RevokeTopicPermission)

	// Subscription allow lists.
	mux.HandleFunc("POST /v1/namespaces/{tenant}/{namespace}/subscriptions/{subscription}/permissions",
		s.GrantSubscriptionPermission)
	mux.HandleFunc("DELETE /v1/namespaces/{tenant}/{namespace}/subscriptions/{subscription}/permissions/{role}",
		s.RevokeSubscriptionPermission)

	// Topic lookup. The trailing wildcard takes local names with slashes
	// as they are.
	mux.HandleFunc("GET /v1/lookup/topic/{domain}/{tenant}/{namespace}/{topic...}", s.LookupTopic)

	return mux
}

// HealthCheck returns 200 if the service is healthy.
func (s *GatewayServer) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CheckPermissionRequest asks whether a role may perform one operation.
// Role defaults to the authenticated caller when empty.
type CheckPermissionRequest struct {
	Operation    string `json:"operation"`
	Topic        string `json:"topic,omitempty"`
	Namespace    string `json:"namespace,omitempty"`
	Role         string `json:"role,omitempty"`
	Subscription string `json:"subscription,omitempty"`
}

// CheckPermissionResponse reports the decision outcome.
type CheckPermissionResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// CheckPermission evaluates an authorization decision without performing
// the operation.
func (s *GatewayServer) CheckPermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := s.metrics.StartSpan(ctx, "CheckPermission")
	var spanErr error
	defer func() { s.metrics.EndSpan(ctx, span, spanErr) }()

	var req CheckPermissionRequest
	if err := s.decodeBody(r, &req); err != nil {
		spanErr = err
		s.writeClientError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	role := req.Role
	if role == "" {
		role = callerRole(ctx)
	}
	authData := authorization.NewAuthenticationDataHTTP(r)

	allowed, err := s.evaluate(ctx, &req, role, authData)
	if err != nil {
		spanErr = err
		if authorization.IsPolicyViolation(err) {
			s.writeJSON(w, http.StatusUnprocessableEntity, &CheckPermissionResponse{
				Allowed: false, Reason: err.Error(),
			})
			return
		}
		s.handleServiceError(ctx, w, err)
		return
	}

	resp := &CheckPermissionResponse{Allowed: allowed}
	if !allowed {
		resp.Reason = "not authorized"
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *GatewayServer) evaluate(ctx context.Context, req *CheckPermissionRequest, role string,
	authData *authorization.AuthenticationData) (bool, error) {
	switch req.Operation {
	case "produce", "consume", "lookup":
		topic, err := naming.ParseTopic(req.Topic)
		if err != nil {
			return false, &badRequestError{message: err.Error()}
		}
		switch req.Operation {
		case "produce":
			return s.authSvc.CanProduce(ctx, topic, role, authData)
		case "consume":
			return s.authSvc.CanConsume(ctx, topic, role, authData, req.Subscription)
		default:
			return s.authSvc.CanLookup(ctx, topic, role, authData)
		}
	case "functions":
		if _, err := naming.ParseNamespace(req.Namespace); err != nil {
			return false, &badRequestError{message: err.Error()}
		}
		return s.authSvc.AllowFunctionOps(ctx, req.Namespace, role, authData)
	default:
		return false, &badRequestError{message: "unknown operation, expected produce, consume, lookup or functions"}
	}
}

// GrantPermissionRequest carries the actions for a namespace or topic
// grant, plus optional serialized credential data recorded with it.
type GrantPermissionRequest struct {
	Actions      []string `json:"actions"`
	AuthDataJSON string   `json:"auth_data,omitempty"`
}

// GrantSubscriptionRequest carries the full replacement role set for a
// subscription allow list.
type GrantSubscriptionRequest struct {
	Roles        []string `json:"roles"`
	AuthDataJSON string   `json:"auth_data,omitempty"`
}

// GetNamespacePermissions lists namespace scope grants.
func (s *GatewayServer) GetNamespacePermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := s.metrics.StartSpan(ctx, "GetNamespacePermissions")
	var spanErr error
	defer func() { s.metrics.EndSpan(ctx, span, spanErr) }()

	namespace := r.PathValue("tenant") + "/" + r.PathValue("namespace")
	if authErr := s.requireAdmin(ctx, namespace); authErr != nil {
		spanErr = authErr
		s.writeAuthzError(ctx, w, authErr)
		return
	}

	permissions, err := s.authSvc.NamespacePermissions(ctx, namespace)
	if err != nil {
		spanErr = err
		s.handleServiceError(ctx, w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, permissions)
}

// GrantNamespacePermission adds actions to a role's namespace grant.
func (s *GatewayServer) GrantNamespacePermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := s.metrics.StartSpan(ctx, "GrantNamespacePermission")
	var spanErr error
	defer func() { s.metrics.EndSpan(ctx, span, spanErr) }()

	namespace := r.PathValue("tenant") + "/" + r.PathValue("namespace")
	role := r.PathValue("role")

	if authErr := s.requireAdmin(ctx, namespace); authErr != nil {
		spanErr = authErr
		s.writeAuthzError(ctx, w, authErr)
		return
	}

	var req GrantPermissionRequest
	if err := s.decodeBody(r, &req); err != nil {
		spanErr = err
		s.writeClientError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	actions, err := authorization.ParseActions(req.Actions)
	if err != nil {
		spanErr = err
		s.writeClientError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err = s.authSvc.GrantNamespacePermission(ctx, namespace, role, actions, req.AuthDataJSON); err != nil {
		spanErr = err
		s.handleServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevokeNamespacePermission removes a role's namespace grant.
func (s *GatewayServer) RevokeNamespacePermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := s.metrics.StartSpan(ctx, "RevokeNamespacePermission")
	var spanErr error
	defer func() { s.metrics.EndSpan(ctx, span, spanErr) }()

	namespace := r.PathValue("tenant") + "/" + r.PathValue("namespace")
	role := r.PathValue("role")

	if authErr := s.requireAdmin(ctx, namespace); authErr != nil {
		spanErr = authErr
		s.writeAuthzError(ctx, w, authErr)
		return
	}

	if err := s.authSvc.RevokeNamespacePermission(ctx, namespace, role); err != nil {
		spanErr = err
		s.handleServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetTopicPermissions lists the grants on one topic.
func (s *GatewayServer) GetTopicPermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := s.metrics.StartSpan(ctx, "GetTopicPermissions")
	var spanErr error
	defer func() { s.metrics.EndSpan(ctx, span, spanErr) }()

	topic, err := s.pathTopic(r)
	if err != nil {
		spanErr = err
		s.writeClientError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if authErr := s.requireAdmin(ctx, topic.NamespaceName()); authErr != nil {
		spanErr = authErr
		s.writeAuthzError(ctx, w, authErr)
		return
	}

	permissions, err := s.authSvc.TopicPermissions(ctx, topic)
	if err != nil {
		spanErr = err
		s.handleServiceError(ctx, w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, permissions)
}

// GrantTopicPermission adds actions to a role's grant on one topic.
func (s *GatewayServer) GrantTopicPermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := s.metrics.StartSpan(ctx, "GrantTopicPermission")
	var spanErr error
	defer func() { s.metrics.EndSpan(ctx, span, spanErr) }()

	topic, err := s.pathTopic(r)
	if err != nil {
		spanErr = err
		s.writeClientError(w, err.Error(), http.StatusBadRequest)
		return
	}
	role := r.PathValue("role")

	if authErr := s.requireAdmin(ctx, topic.NamespaceName()); authErr != nil {
		spanErr = authErr
		s.writeAuthzError(ctx, w, authErr)
		return
	}

	var req GrantPermissionRequest
	if err = s.decodeBody(r, &req); err != nil {
		spanErr = err
		s.writeClientError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	actions, err := authorization.ParseActions(req.Actions)
	if err != nil {
		spanErr = err
		s.writeClientError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err = s.authSvc.GrantTopicPermission(ctx, topic, role, actions, req.AuthDataJSON); err != nil {
		spanErr = err
		s.handleServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevokeTopicPermission removes a role's grant on one topic.
func (s *GatewayServer) RevokeTopicPermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := s.metrics.StartSpan(ctx, "RevokeTopicPermission")
	var spanErr error
	defer func() { s.metrics.EndSpan(ctx, span, spanErr) }()

	topic, err := s.pathTopic(r)
	if err != nil {
		spanErr = err
		s.writeClientError(w, err.Error(), http.StatusBadRequest)
		return
	}
	role := r.PathValue("role")

	if authErr := s.requireAdmin(ctx, topic.NamespaceName()); authErr != nil {
		spanErr = authErr
		s.writeAuthzError(ctx, w, authErr)
		return
	}

	if err = s.authSvc.RevokeTopicPermission(ctx, topic, role); err != nil {
		spanErr = err
		s.handleServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GrantSubscriptionPermission replaces a subscription's allowed role set.
func (s *GatewayServer) GrantSubscriptionPermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := s.metrics.StartSpan(ctx, "GrantSubscriptionPermission")
	var spanErr error
	defer func() { s.metrics.EndSpan(ctx, span, spanErr) }()

	namespace := r.PathValue("tenant") + "/" + r.PathValue("namespace")
	subscription := r.PathValue("subscription")

	if authErr := s.requireAdmin(ctx, namespace); authErr != nil {
		spanErr = authErr
		s.writeAuthzError(ctx, w, authErr)
		return
	}

	var req GrantSubscriptionRequest
	if err := s.decodeBody(r, &req); err != nil {
		spanErr = err
		s.writeClientError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.authSvc.GrantSubscriptionPermission(
		ctx, namespace, subscription, req.Roles, req.AuthDataJSON,
	); err != nil {
		spanErr = err
		s.handleServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevokeSubscriptionPermission removes one role from a subscription's
// allow list.
func (s *GatewayServer) RevokeSubscriptionPermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := s.metrics.StartSpan(ctx, "RevokeSubscriptionPermission")
	var spanErr error
	defer func() { s.metrics.EndSpan(ctx, span, spanErr) }()

	namespace := r.PathValue("tenant") + "/" + r.PathValue("namespace")
	subscription := r.PathValue("subscription")
	role := r.PathValue("role")

	if authErr := s.requireAdmin(ctx, namespace); authErr != nil {
		spanErr = authErr
		s.writeAuthzError(ctx, w, authErr)
		return
	}

	if err := s.authSvc.RevokeSubscriptionPermission(ctx, namespace, subscription, role); err != nil {
		spanErr = err
		s.handleServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LookupTopicResponse carries the broker a client should connect to.
type LookupTopicResponse struct {
	BrokerServiceURL string `json:"broker_service_url"`
}

// LookupTopic resolves the broker serving a topic. The request must take
// a lookup permit before any authorization work happens; rejection at the
// gate is reported as overload, not as a denial.
func (s *GatewayServer) LookupTopic(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := s.metrics.StartSpan(ctx, "LookupTopic")
	var spanErr error
	defer func() { s.metrics.EndSpan(ctx, span, spanErr) }()

	permit, ok := s.gate.TryAcquireLookup(ctx)
	if !ok {
		s.writeOverloaded(w, "lookup capacity exhausted")
		return
	}
	defer permit.Release()

	topic, err := s.pathTopic(r)
	if err != nil {
		spanErr = err
		s.writeClientError(w, err.Error(), http.StatusBadRequest)
		return
	}

	role := callerRole(ctx)
	allowed, err := s.authSvc.CanLookup(ctx, topic, role, authorization.NewAuthenticationDataHTTP(r))
	if err != nil {
		spanErr = err
		s.handleServiceError(ctx, w, err)
		return
	}
	if !allowed {
		s.writeClientError(w, "permission denied", http.StatusForbidden)
		return
	}

	brokerURL, err := s.resolver.Resolve(ctx, topic)
	if err != nil {
		spanErr = err
		s.handleServiceError(ctx, w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, &LookupTopicResponse{BrokerServiceURL: brokerURL})
}

// requireAdmin allows permission mutations and listings only for
// superusers and for roles holding function operation rights on the
// namespace.
func (s *GatewayServer) requireAdmin(ctx context.Context, namespace string) error {
	role := callerRole(ctx)
	if role == "" {
		return errUnauthenticated
	}

	isSuper, err := s.authSvc.IsSuperUser(ctx, role)
	if err != nil {
		return err
	}
	if isSuper {
		return nil
	}

	allowed, err := s.authSvc.AllowFunctionOps(ctx, namespace, role, nil)
	if err != nil {
		return err
	}
	if !allowed {
		return errPermissionDenied
	}
	return nil
}

// callerRole extracts the authenticated role from the request claims.
func callerRole(ctx context.Context) string {
	claims := security.ClaimsFromContext(ctx)
	if claims == nil {
		return ""
	}
	subject, err := claims.GetSubject()
	if err != nil {
		return ""
	}
	return subject
}

func (s *GatewayServer) pathTopic(r *http.Request) (naming.TopicName, error) {
	raw := r.PathValue("domain") + "://" + r.PathValue("tenant") + "/" +
		r.PathValue("namespace") + "/" + r.PathValue("topic")
	return naming.ParseTopic(raw)
}

// Sentinel errors for authorisation classification.
var (
	errUnauthenticated  = errors.New("unauthenticated")
	errPermissionDenied = errors.New("permission denied")
)

// badRequestError marks a malformed request discovered below the handler.
type badRequestError struct {
	message string
}

func (e *badRequestError) Error() string {
	return e.message
}

// writeAuthzError writes an authorisation error as an HTTP response.
func (s *GatewayServer) writeAuthzError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errUnauthenticated):
		s.writeClientError(w, "unauthenticated", http.StatusUnauthorized)
	case errors.Is(err, errPermissionDenied):
		s.writeClientError(w, "permission denied", http.StatusForbidden)
	default:
		s.handleServiceError(ctx, w, err)
	}
}

// decodeBody reads and decodes JSON from the request body with a size limit.
func (s *GatewayServer) decodeBody(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, s.maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

// writeJSON writes a JSON response with the given status code.
func (s *GatewayServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// writeClientError writes a safe, generic error message to the client.
func (s *GatewayServer) writeClientError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// writeOverloaded reports an admission rejection. Distinct from 403 so
// clients back off instead of treating it as a policy outcome.
func (s *GatewayServer) writeOverloaded(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusServiceUnavailable)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// handleServiceError logs the full error server-side and returns a safe
// message to the client.
func (s *GatewayServer) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var badReq *badRequestError
	switch {
	case errors.As(err, &badReq):
		s.writeClientError(w, badReq.message, http.StatusBadRequest)
	case authorization.IsPolicyViolation(err):
		s.writeClientError(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		util.Log(ctx).WithError(err).Error("internal error processing request")
		s.writeClientError(w, "internal server error", http.StatusInternalServerError)
	}
}
