package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/personaforge/backend/internal/repos"
	"github.com/personaforge/backend/internal/repos/testutil"
	"github.com/personaforge/backend/internal/requestdata"
)

func newAuthService(t *testing.T) AuthService {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	log := testutil.Logger(t)
	gdb := testutil.DB(t)
	return NewAuthService(gdb, log, repos.NewUserRepo(gdb, log), repos.NewUserTokenRepo(gdb, log))
}

func TestAuth_RegisterLoginRoundTrip(t *testing.T) {
	as := newAuthService(t)
	ctx := context.Background()

	user, tokens, err := as.Register(ctx, "Reader@Example.com", "long-enough-pw", "Reader")
	require.NoError(t, err)
	require.Equal(t, "reader@example.com", user.Email)
	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.RefreshToken)

	// Stored password is hashed.
	require.NotEqual(t, "long-enough-pw", user.Password)

	_, _, err = as.Register(ctx, "reader@example.com", "long-enough-pw", "Dup")
	require.Error(t, err)

	_, loginTokens, err := as.Login(ctx, "reader@example.com", "long-enough-pw")
	require.NoError(t, err)
	require.NotEmpty(t, loginTokens.AccessToken)

	_, _, err = as.Login(ctx, "reader@example.com", "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = as.Login(ctx, "nobody@example.com", "whatever")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuth_AccessTokenSetsIdentity(t *testing.T) {
	as := newAuthService(t)
	ctx := context.Background()

	user, tokens, err := as.Register(ctx, "ctx@example.com", "long-enough-pw", "")
	require.NoError(t, err)

	withIdentity, err := as.SetContextFromToken(ctx, tokens.AccessToken)
	require.NoError(t, err)
	rd := requestdata.GetRequestData(withIdentity)
	require.NotNil(t, rd)
	require.Equal(t, user.ID, rd.UserID)

	_, err = as.SetContextFromToken(ctx, "garbage.token.value")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuth_RefreshRotates(t *testing.T) {
	as := newAuthService(t)
	ctx := context.Background()

	_, tokens, err := as.Register(ctx, "rotate@example.com", "long-enough-pw", "")
	require.NoError(t, err)

	next, err := as.Refresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, tokens.RefreshToken, next.RefreshToken)

	// The old refresh token is single-use.
	_, err = as.Refresh(ctx, tokens.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuth_LogoutRevokesAll(t *testing.T) {
	as := newAuthService(t)
	ctx := context.Background()

	user, tokens, err := as.Register(ctx, "bye@example.com", "long-enough-pw", "")
	require.NoError(t, err)
	require.NoError(t, as.Logout(ctx, user.ID))

	_, err = as.Refresh(ctx, tokens.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidToken)

	require.NoError(t, as.Logout(ctx, uuid.New()))
}
