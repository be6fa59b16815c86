package identity

import "context"

// SessionValidator validates an ambient session against the external
// identity provider. Implementations return found=false when the session
// is absent or invalid, reserving the error for transport failures.
type SessionValidator interface {
	ValidateSession(ctx context.Context, sessionCookie string) (raw *RawIdentity, found bool, err error)
}

// TokenValidator validates a bearer token against the external identity
// provider.
type TokenValidator interface {
	ValidateBearerToken(ctx context.Context, token string) (raw *RawIdentity, found bool, err error)
}

// ProfileStore looks up a user's role in the external profile store.
// A single round trip; authcore never asks for more than the role.
type ProfileStore interface {
	GetRole(ctx context.Context, userID string) (string, error)
}
