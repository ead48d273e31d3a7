package authorization

import (
	"errors"
	"fmt"
)

// ErrUnsupportedOperation is returned by providers that do not implement
// an optional predicate. The facade resolves it to a denial; it must never
// be interpreted as an allow.
var ErrUnsupportedOperation = errors.New("operation not supported by authorization provider")

// ErrUnknownProvider is returned when the configured provider name has no
// registered factory.
var ErrUnknownProvider = errors.New("unknown authorization provider")

// PolicyViolationError marks a request that is malformed under the active
// policy, such as a subscription name that breaks the required naming
// convention. Callers treat it as a denial but can distinguish it from a
// plain "not authorized" result and report the specific violation.
type PolicyViolationError struct {
	Rule   string
	Detail string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("policy violation (%s): %s", e.Rule, e.Detail)
}

// IsPolicyViolation reports whether err carries a policy violation.
func IsPolicyViolation(err error) bool {
	var violation *PolicyViolationError
	return errors.As(err, &violation)
}
