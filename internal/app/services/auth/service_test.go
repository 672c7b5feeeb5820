package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "motorent/internal/domain/auth"
	domainuser "motorent/internal/domain/user"
	"motorent/internal/infra/security"
	"motorent/internal/infra/storage/memory"
)

func newService() (*Service, *memory.UserRepository, *memory.SessionStore) {
	users := memory.NewUserRepository()
	sessions := memory.NewSessionStore()
	svc := &Service{
		Users:     users,
		Sessions:  sessions,
		Passwords: security.BcryptHasher{Cost: 4},
		Tokens:    security.RandomTokenGenerator{},
	}
	return svc, users, sessions
}

func TestRegisterIssuesRenterSession(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterParams{
		Email:    "Linh.Tran@Example.com",
		Name:     "Linh Tran",
		Password: "s3cret-pass",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	assert.Equal(t, "linh.tran@example.com", res.User.Email)
	assert.Equal(t, []domainuser.Role{domainuser.RoleRenter}, res.User.Roles)
	assert.Equal(t, domainuser.KYCNotSubmitted, res.User.KYC)
	assert.True(t, res.User.Active)

	resolved, err := svc.ResolveToken(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, resolved.User.ID)
}

func TestRegisterRejectsShortPasswordAndDuplicates(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterParams{Email: "a@b.c", Name: "A", Password: "short"})
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	_, err = svc.Register(ctx, RegisterParams{Email: "a@b.c", Name: "A", Password: "long-enough"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, RegisterParams{Email: "a@b.c", Name: "B", Password: "long-enough"})
	assert.ErrorIs(t, err, domainuser.ErrEmailAlreadyUsed)
}

func TestLoginVerifiesPassword(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterParams{Email: "a@b.c", Name: "A", Password: "long-enough"})
	require.NoError(t, err)

	res, err := svc.Login(ctx, LoginParams{Email: "a@b.c", Password: "long-enough"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)

	_, err = svc.Login(ctx, LoginParams{Email: "a@b.c", Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, LoginParams{Email: "nobody@b.c", Password: "long-enough"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginRejectsDeactivatedAccounts(t *testing.T) {
	svc, users, _ := newService()
	ctx := context.Background()

	reg, err := svc.Register(ctx, RegisterParams{Email: "a@b.c", Name: "A", Password: "long-enough"})
	require.NoError(t, err)

	reg.User.Active = false
	require.NoError(t, users.Save(ctx, reg.User))

	_, err = svc.Login(ctx, LoginParams{Email: "a@b.c", Password: "long-enough"})
	assert.ErrorIs(t, err, domainuser.ErrInactive)

	// Existing sessions die with the account.
	_, err = svc.ResolveToken(ctx, reg.Token)
	assert.ErrorIs(t, err, domainuser.ErrInactive)
}

func TestLogoutInvalidatesSession(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	reg, err := svc.Register(ctx, RegisterParams{Email: "a@b.c", Name: "A", Password: "long-enough"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, reg.Token))

	_, err = svc.ResolveToken(ctx, reg.Token)
	assert.ErrorIs(t, err, domainauth.ErrSessionNotFound)
}

func TestResolveTokenExpiry(t *testing.T) {
	svc, _, sessions := newService()
	svc.SessionTTL = time.Minute
	ctx := context.Background()

	reg, err := svc.Register(ctx, RegisterParams{Email: "a@b.c", Name: "A", Password: "long-enough"})
	require.NoError(t, err)

	session, err := sessions.Get(ctx, domainauth.Token(reg.Token))
	require.NoError(t, err)
	session.ExpiresAt = time.Now().UTC().Add(-time.Second)
	require.NoError(t, sessions.Save(ctx, session))

	_, err = svc.ResolveToken(ctx, reg.Token)
	assert.ErrorIs(t, err, domainauth.ErrSessionNotFound)
}
