package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/authcore/cache"
	"github.com/campuskit/authcore/permission"
)

// fakeSessions validates a single known cookie.
type fakeSessions struct {
	cookie string
	raw    *RawIdentity
	err    error
	calls  int
}

func (f *fakeSessions) ValidateSession(_ context.Context, cookie string) (*RawIdentity, bool, error) {
	f.calls++
	if f.err != nil {
		return nil, false, f.err
	}
	if cookie == f.cookie {
		return f.raw, true, nil
	}
	return nil, false, nil
}

// fakeTokens validates a single known bearer token.
type fakeTokens struct {
	token string
	raw   *RawIdentity
	err   error
	calls int
}

func (f *fakeTokens) ValidateBearerToken(_ context.Context, token string) (*RawIdentity, bool, error) {
	f.calls++
	if f.err != nil {
		return nil, false, f.err
	}
	if token == f.token {
		return f.raw, true, nil
	}
	return nil, false, nil
}

// fakeProfiles returns a fixed role per user.
type fakeProfiles struct {
	roles map[string]string
	err   error
	calls int
}

func (f *fakeProfiles) GetRole(_ context.Context, userID string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	role, ok := f.roles[userID]
	if !ok {
		return "", errors.New("profile not found")
	}
	return role, nil
}

func newTestCache(t *testing.T) cache.Cache {
	t.Helper()

	c := cache.NewMemoryCache(nil)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestResolver_SessionCookie(t *testing.T) {
	sessions := &fakeSessions{cookie: "sess-1", raw: &RawIdentity{ID: "u1", Email: "u1@school.example"}}
	tokens := &fakeTokens{}
	profiles := &fakeProfiles{roles: map[string]string{"u1": "teacher"}}

	r := NewResolver(sessions, tokens, profiles, newTestCache(t))

	principal, err := r.Resolve(context.Background(), &Credentials{SessionCookie: "sess-1"})
	require.NoError(t, err)
	assert.Equal(t, "u1", principal.ID)
	assert.Equal(t, "u1@school.example", principal.Email)
	assert.Equal(t, permission.RoleTeacher, principal.Role)

	// The bearer strategy never ran.
	assert.Equal(t, 0, tokens.calls)
}

func TestResolver_BearerToken(t *testing.T) {
	sessions := &fakeSessions{}
	tokens := &fakeTokens{token: "tok-1", raw: &RawIdentity{ID: "u2", Email: "u2@school.example"}}
	profiles := &fakeProfiles{roles: map[string]string{"u2": "student"}}

	r := NewResolver(sessions, tokens, profiles, newTestCache(t))

	principal, err := r.Resolve(context.Background(), &Credentials{BearerToken: "tok-1"})
	require.NoError(t, err)
	assert.Equal(t, "u2", principal.ID)
	assert.Equal(t, permission.RoleStudent, principal.Role)
}

func TestResolver_SessionTakesPrecedence(t *testing.T) {
	sessions := &fakeSessions{cookie: "sess-1", raw: &RawIdentity{ID: "session-user"}}
	tokens := &fakeTokens{token: "tok-1", raw: &RawIdentity{ID: "token-user"}}
	profiles := &fakeProfiles{roles: map[string]string{"session-user": "admin", "token-user": "student"}}

	r := NewResolver(sessions, tokens, profiles, newTestCache(t))

	principal, err := r.Resolve(context.Background(), &Credentials{
		SessionCookie: "sess-1",
		BearerToken:   "tok-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "session-user", principal.ID)
	assert.Equal(t, 0, tokens.calls)
}

func TestResolver_SessionFailureFallsThroughToBearer(t *testing.T) {
	sessions := &fakeSessions{err: errors.New("session backend down")}
	tokens := &fakeTokens{token: "tok-1", raw: &RawIdentity{ID: "u2"}}
	profiles := &fakeProfiles{roles: map[string]string{"u2": "student"}}

	r := NewResolver(sessions, tokens, profiles, newTestCache(t))

	principal, err := r.Resolve(context.Background(), &Credentials{
		SessionCookie: "sess-1",
		BearerToken:   "tok-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "u2", principal.ID)
}

func TestResolver_NoCredentials(t *testing.T) {
	r := NewResolver(&fakeSessions{}, &fakeTokens{}, &fakeProfiles{}, newTestCache(t))

	_, err := r.Resolve(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCredentials)

	_, err = r.Resolve(context.Background(), &Credentials{})
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestResolver_InvalidCredentials(t *testing.T) {
	sessions := &fakeSessions{cookie: "valid"}
	r := NewResolver(sessions, &fakeTokens{}, &fakeProfiles{}, newTestCache(t))

	_, err := r.Resolve(context.Background(), &Credentials{SessionCookie: "forged"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.NotErrorIs(t, err, ErrNoCredentials)
}

func TestResolver_AllStrategiesError(t *testing.T) {
	sessions := &fakeSessions{err: errors.New("session backend down")}
	tokens := &fakeTokens{err: errors.New("token backend down")}

	r := NewResolver(sessions, tokens, &fakeProfiles{}, newTestCache(t))

	_, err := r.Resolve(context.Background(), &Credentials{SessionCookie: "x", BearerToken: "y"})
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestResolver_RoleIsCached(t *testing.T) {
	sessions := &fakeSessions{cookie: "sess-1", raw: &RawIdentity{ID: "u1"}}
	profiles := &fakeProfiles{roles: map[string]string{"u1": "teacher"}}
	c := newTestCache(t)

	r := NewResolver(sessions, &fakeTokens{}, profiles, c)

	for i := 0; i < 3; i++ {
		principal, err := r.Resolve(context.Background(), &Credentials{SessionCookie: "sess-1"})
		require.NoError(t, err)
		assert.Equal(t, permission.RoleTeacher, principal.Role)
	}

	// One profile lookup; the rest served from cache.
	assert.Equal(t, 1, profiles.calls)

	role, ok := cache.TypedGet[permission.Role](context.Background(), c, CacheNamespace, "profile:u1")
	require.True(t, ok)
	assert.Equal(t, permission.RoleTeacher, role)
}

func TestResolver_RoleCacheExpiry(t *testing.T) {
	sessions := &fakeSessions{cookie: "sess-1", raw: &RawIdentity{ID: "u1"}}
	profiles := &fakeProfiles{roles: map[string]string{"u1": "teacher"}}

	r := NewResolver(sessions, &fakeTokens{}, profiles, newTestCache(t),
		WithRoleTTL(10*time.Millisecond))

	_, err := r.Resolve(context.Background(), &Credentials{SessionCookie: "sess-1"})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = r.Resolve(context.Background(), &Credentials{SessionCookie: "sess-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, profiles.calls)
}

func TestResolver_Invalidate(t *testing.T) {
	sessions := &fakeSessions{cookie: "sess-1", raw: &RawIdentity{ID: "u1"}}
	profiles := &fakeProfiles{roles: map[string]string{"u1": "teacher"}}

	r := NewResolver(sessions, &fakeTokens{}, profiles, newTestCache(t))

	ctx := context.Background()

	_, err := r.Resolve(ctx, &Credentials{SessionCookie: "sess-1"})
	require.NoError(t, err)

	// A role change takes effect after invalidation.
	profiles.roles["u1"] = "admin"
	r.Invalidate(ctx, "u1")

	principal, err := r.Resolve(ctx, &Credentials{SessionCookie: "sess-1"})
	require.NoError(t, err)
	assert.Equal(t, permission.RoleAdmin, principal.Role)
	assert.Equal(t, 2, profiles.calls)
}

func TestResolver_ProfileLookupFailure(t *testing.T) {
	sessions := &fakeSessions{cookie: "sess-1", raw: &RawIdentity{ID: "u1"}}
	profiles := &fakeProfiles{err: errors.New("db down")}

	r := NewResolver(sessions, &fakeTokens{}, profiles, newTestCache(t))

	_, err := r.Resolve(context.Background(), &Credentials{SessionCookie: "sess-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProfileLookup)
}

func TestResolver_UnknownRoleFailsClosed(t *testing.T) {
	sessions := &fakeSessions{cookie: "sess-1", raw: &RawIdentity{ID: "u1"}}
	profiles := &fakeProfiles{roles: map[string]string{"u1": "superuser"}}

	r := NewResolver(sessions, &fakeTokens{}, profiles, newTestCache(t))

	_, err := r.Resolve(context.Background(), &Credentials{SessionCookie: "sess-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProfileLookup)
}

func TestAuthError_Unwrap(t *testing.T) {
	err := &AuthError{Err: ErrAuthenticationFailed, Strategy: "session"}

	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.Contains(t, err.Error(), "session")
}
