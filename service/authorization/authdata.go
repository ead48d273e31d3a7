package authorization

import "net/http"

// AuthenticationData carries the auxiliary credential material attached to
// an already authenticated request: HTTP style headers, a raw command data
// string, or both. Providers that need more than the bare role to decide
// (for example to bind a decision to a specific credential instance for
// auditing) read it through the accessors; the gateway never mutates it.
//
// A nil *AuthenticationData is valid and reports no data of either kind.
type AuthenticationData struct {
	headers     http.Header
	commandData string
	hasCommand  bool
}

// NewAuthenticationDataCommand wraps a binary protocol command field.
func NewAuthenticationDataCommand(commandData string) *AuthenticationData {
	return &AuthenticationData{commandData: commandData, hasCommand: true}
}

// NewAuthenticationDataHTTP captures the headers of an HTTP request.
func NewAuthenticationDataHTTP(r *http.Request) *AuthenticationData {
	if r == nil {
		return &AuthenticationData{}
	}
	return &AuthenticationData{headers: r.Header}
}

// HasDataForHTTP reports whether HTTP header data is present.
func (a *AuthenticationData) HasDataForHTTP() bool {
	return a != nil && len(a.headers) > 0
}

// HTTPHeader returns the named header value, or "" when absent.
func (a *AuthenticationData) HTTPHeader(name string) string {
	if a == nil {
		return ""
	}
	return a.headers.Get(name)
}

// HasDataFromCommand reports whether command data is present.
func (a *AuthenticationData) HasDataFromCommand() bool {
	return a != nil && a.hasCommand
}

// CommandData returns the raw command data string, or "" when absent.
func (a *AuthenticationData) CommandData() string {
	if a == nil {
		return ""
	}
	return a.commandData
}
