// Package identity resolves a caller's principal from request
// credentials, using the cache layer to avoid repeated profile lookups
// against the external identity and profile providers.
package identity

import (
	"github.com/campuskit/authcore/permission"
)

// Principal is the resolved identity attached to an in-flight request.
// Immutable for the lifetime of one request; never persisted.
type Principal struct {
	// ID is the user identifier.
	ID string `json:"id"`

	// Email is the user's email address.
	Email string `json:"email"`

	// Role is the user's role.
	Role permission.Role `json:"role"`
}

// RawIdentity is the (id, email) pair produced by a validated session or
// bearer token, before the role is known.
type RawIdentity struct {
	ID    string
	Email string
}

// Credentials carries the raw credential material extracted from an
// incoming request by the upstream HTTP layer.
type Credentials struct {
	// SessionCookie is the ambient session cookie value, if any.
	SessionCookie string

	// BearerToken is the Authorization bearer token, if any.
	BearerToken string
}
