package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"youthexchange/internal/domain"
)

func TestIdentityService_SignUpAndSignIn(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	session, err := env.identity.SignUp(ctx, "  Maria@Example.com ", "s3cret-pass", "Maria")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "maria@example.com", session.Principal.Email)
	assert.True(t, session.Principal.HasRole(domain.RoleCodeGuardian))
	assert.False(t, session.Principal.HasRole(domain.RoleCodeAdmin))

	claims, err := env.identity.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.Principal.ID, claims.PrincipalID)

	again, err := env.identity.SignIn(ctx, "MARIA@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, session.Principal.ID, again.Principal.ID)

	_, err = env.identity.SignUp(ctx, "maria@example.com", "other-pass", "")
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)
}

func TestIdentityService_Rejects(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	_, err := env.identity.SignUp(ctx, "leo@example.com", "s3cret-pass", "Leo")
	require.NoError(t, err)

	tests := []struct {
		name    string
		run     func() error
		wantErr error
	}{
		{"sign up bad email", func() error {
			_, err := env.identity.SignUp(ctx, "leo", "s3cret-pass", "")
			return err
		}, domain.ErrValidation},
		{"sign up short password", func() error {
			_, err := env.identity.SignUp(ctx, "ana@example.com", "short", "")
			return err
		}, domain.ErrValidation},
		{"sign in unknown email", func() error {
			_, err := env.identity.SignIn(ctx, "nobody@example.com", "s3cret-pass")
			return err
		}, domain.ErrInvalidCredentials},
		{"sign in wrong password", func() error {
			_, err := env.identity.SignIn(ctx, "leo@example.com", "wrong-pass")
			return err
		}, domain.ErrInvalidCredentials},
		{"authenticate garbage", func() error {
			_, err := env.identity.Authenticate(ctx, "garbage")
			return err
		}, domain.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.run(), tt.wantErr)
		})
	}
}

func TestIdentityService_SignOutRevokesSession(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	var events []domain.AuthEvent
	unsubscribe := env.identity.OnAuthStateChange(func(ev domain.AuthEvent) {
		events = append(events, ev)
	})

	session, err := env.identity.SignUp(ctx, "leo@example.com", "s3cret-pass", "Leo")
	require.NoError(t, err)
	require.NoError(t, env.identity.SignOut(ctx, session.Token))

	_, err = env.identity.Authenticate(ctx, session.Token)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	require.Len(t, events, 2)
	assert.Equal(t, domain.AuthSignedIn, events[0].Kind)
	assert.Equal(t, domain.AuthSignedOut, events[1].Kind)
	assert.Equal(t, session.Principal.ID, events[1].PrincipalID)

	unsubscribe()
	unsubscribe()
	_, err = env.identity.SignIn(ctx, "leo@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestIdentityService_EnsureAdmin(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, env.identity.EnsureAdmin(ctx, "Admin@Example.com", "admin-pass"))
	require.NoError(t, env.identity.EnsureAdmin(ctx, "admin@example.com", "ignored-pass"))

	session, err := env.identity.SignIn(ctx, "admin@example.com", "admin-pass")
	require.NoError(t, err)
	assert.True(t, session.Principal.HasRole(domain.RoleCodeAdmin))

	_, err = env.identity.SignUp(ctx, "leo@example.com", "s3cret-pass", "Leo")
	require.NoError(t, err)
	require.NoError(t, env.identity.EnsureAdmin(ctx, "leo@example.com", ""))
	leo, err := env.identity.SignIn(ctx, "leo@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.True(t, leo.Principal.HasRole(domain.RoleCodeAdmin))
	assert.True(t, leo.Principal.HasRole(domain.RoleCodeGuardian))

	assert.ErrorIs(t, env.identity.EnsureAdmin(ctx, "new@example.com", "short"), domain.ErrValidation)
}
