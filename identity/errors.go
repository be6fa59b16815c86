package identity

import (
	"errors"
	"fmt"
)

// Sentinel errors for identity resolution.
var (
	// ErrNoCredentials indicates that the request carried no resolvable
	// credentials.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrAuthenticationFailed indicates that no strategy could resolve
	// a principal.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrProfileLookup indicates that the external profile store errored
	// or the user has no profile. Treated as an authentication failure,
	// never surfaced as an internal error.
	ErrProfileLookup = errors.New("profile lookup failed")
)

// AuthError wraps a resolution failure with the strategy that produced
// it.
type AuthError struct {
	// Err is the underlying error.
	Err error

	// Strategy names the resolution strategy, when one applies.
	Strategy string
}

// Error returns the error message.
func (e *AuthError) Error() string {
	if e.Strategy != "" {
		return fmt.Sprintf("identity resolution failed (%s): %v", e.Strategy, e.Err)
	}
	return fmt.Sprintf("identity resolution failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *AuthError) Unwrap() error {
	return e.Err
}
