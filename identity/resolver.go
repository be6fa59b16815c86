package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/campuskit/authcore/cache"
	"github.com/campuskit/authcore/observability"
	"github.com/campuskit/authcore/permission"
)

// Cache placement for resolved roles. The TTL is short on purpose: roles
// can change and must not be stale indefinitely.
const (
	// CacheNamespace is the cache namespace holding resolved profiles.
	CacheNamespace = "auth"

	// profileKeyPrefix prefixes the user ID in the cache key.
	profileKeyPrefix = "profile:"

	// defaultRoleTTL is how long a resolved role is cached.
	defaultRoleTTL = 5 * time.Minute
)

// Strategy is one ordered identity resolution attempt. Strategies are
// tried in sequence; the first one that finds a raw identity wins.
type Strategy interface {
	// Name identifies the strategy in logs and errors.
	Name() string

	// Resolve attempts to produce a raw identity from the credentials.
	Resolve(ctx context.Context, creds *Credentials) (raw *RawIdentity, found bool, err error)
}

// sessionStrategy resolves the ambient session cookie.
type sessionStrategy struct {
	validator SessionValidator
}

func (s *sessionStrategy) Name() string { return "session" }

func (s *sessionStrategy) Resolve(ctx context.Context, creds *Credentials) (*RawIdentity, bool, error) {
	if creds == nil || creds.SessionCookie == "" {
		return nil, false, nil
	}
	return s.validator.ValidateSession(ctx, creds.SessionCookie)
}

// bearerStrategy resolves the Authorization bearer token.
type bearerStrategy struct {
	validator TokenValidator
}

func (s *bearerStrategy) Name() string { return "bearer" }

func (s *bearerStrategy) Resolve(ctx context.Context, creds *Credentials) (*RawIdentity, bool, error) {
	if creds == nil || creds.BearerToken == "" {
		return nil, false, nil
	}
	return s.validator.ValidateBearerToken(ctx, creds.BearerToken)
}

// Resolver resolves principals through an ordered strategy list and a
// role cache.
type Resolver struct {
	strategies []Strategy
	profiles   ProfileStore
	cache      cache.Cache
	roleTTL    time.Duration
	logger     observability.Logger
}

// ResolverOption is a functional option for the resolver.
type ResolverOption func(*Resolver)

// WithResolverLogger sets the logger.
func WithResolverLogger(logger observability.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithRoleTTL sets the role cache TTL.
func WithRoleTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.roleTTL = ttl
	}
}

// WithStrategies replaces the default session-then-bearer strategy
// order.
func WithStrategies(strategies ...Strategy) ResolverOption {
	return func(r *Resolver) {
		r.strategies = strategies
	}
}

// NewResolver creates a resolver with the default strategy order:
// ambient session first, bearer token as fallback.
func NewResolver(
	sessions SessionValidator,
	tokens TokenValidator,
	profiles ProfileStore,
	c cache.Cache,
	opts ...ResolverOption,
) *Resolver {
	r := &Resolver{
		strategies: []Strategy{
			&sessionStrategy{validator: sessions},
			&bearerStrategy{validator: tokens},
		},
		profiles: profiles,
		cache:    c,
		roleTTL:  defaultRoleTTL,
		logger:   observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve produces a Principal from request credentials. Strategies are
// tried in order; a strategy transport error is logged and resolution
// falls through to the next strategy, so a flaky provider degrades into
// an authentication failure rather than an internal error.
func (r *Resolver) Resolve(ctx context.Context, creds *Credentials) (*Principal, error) {
	raw, err := r.resolveRaw(ctx, creds)
	if err != nil {
		return nil, err
	}

	role, err := r.resolveRole(ctx, raw.ID)
	if err != nil {
		return nil, err
	}

	return &Principal{
		ID:    raw.ID,
		Email: raw.Email,
		Role:  role,
	}, nil
}

// resolveRaw walks the strategy list until one finds a raw identity.
func (r *Resolver) resolveRaw(ctx context.Context, creds *Credentials) (*RawIdentity, error) {
	attempted := false

	for _, strategy := range r.strategies {
		raw, found, err := strategy.Resolve(ctx, creds)
		if err != nil {
			r.logger.Warn("identity strategy failed",
				observability.String("strategy", strategy.Name()),
				observability.Error(err))
			attempted = true
			continue
		}
		if found {
			r.logger.Debug("identity resolved",
				observability.String("strategy", strategy.Name()),
				observability.String("user_id", raw.ID))
			return raw, nil
		}
		if creds != nil && (creds.SessionCookie != "" || creds.BearerToken != "") {
			attempted = true
		}
	}

	if attempted {
		return nil, &AuthError{Err: ErrAuthenticationFailed}
	}
	return nil, &AuthError{Err: ErrNoCredentials}
}

// resolveRole looks up the user's role, consulting the cache first and
// querying the profile store once on a miss.
func (r *Resolver) resolveRole(ctx context.Context, userID string) (permission.Role, error) {
	key := profileKeyPrefix + userID

	if role, ok := cache.TypedGet[permission.Role](ctx, r.cache, CacheNamespace, key); ok {
		return role, nil
	}

	rawRole, err := r.profiles.GetRole(ctx, userID)
	if err != nil {
		return "", &AuthError{Err: fmt.Errorf("%w: %v", ErrProfileLookup, err)}
	}

	role, err := permission.ParseRole(rawRole)
	if err != nil {
		return "", &AuthError{Err: fmt.Errorf("%w: %v", ErrProfileLookup, err)}
	}

	r.cache.Set(ctx, CacheNamespace, key, role, r.roleTTL)

	return role, nil
}

// Invalidate drops the cached role for a user, forcing the next resolve
// to hit the profile store.
func (r *Resolver) Invalidate(ctx context.Context, userID string) {
	r.cache.Delete(ctx, CacheNamespace, profileKeyPrefix+userID)
}
