package session

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is returned when a credential cannot be turned into a trusted identity.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidToken is returned when a token fails signature, format or time validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// Rejection reasons carried by UnauthenticatedError.
const (
	ReasonMissing      = "missing_credential"
	ReasonInvalidToken = "invalid_token"
	ReasonNoSubject    = "missing_subject"
	ReasonUnknownUser  = "unknown_user"
	ReasonInactiveUser = "inactive_user"
	ReasonLookupFailed = "lookup_failed"
)

// UnauthenticatedError carries the rejection reason for logs. It always
// matches ErrUnauthenticated; Err is the underlying cause when there is one.
type UnauthenticatedError struct {
	Reason string
	Err    error
}

func (e UnauthenticatedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrUnauthenticated.Error(), e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", ErrUnauthenticated.Error(), e.Reason, e.Err)
}

func (e UnauthenticatedError) Unwrap() error { return ErrUnauthenticated }

// Reason extracts the rejection reason from err, or "" when err is not an UnauthenticatedError.
func Reason(err error) string {
	var ue UnauthenticatedError
	if errors.As(err, &ue) {
		return ue.Reason
	}
	return ""
}
