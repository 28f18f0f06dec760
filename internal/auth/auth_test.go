package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cropwise/auth-service/internal/apperr"
	"github.com/cropwise/auth-service/internal/directory"
	"github.com/cropwise/auth-service/internal/password"
	"github.com/cropwise/auth-service/internal/refresh"
	"github.com/cropwise/auth-service/internal/store"
	"github.com/cropwise/auth-service/internal/token"
)

type fixture struct {
	auth *Authenticator
	dir  *directory.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	hasher, err := password.NewHasher(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	require.NoError(t, err)

	signer, err := token.NewSigner(token.Config{
		Secret:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:    "irrigation-backend",
		AccessTTL: 15 * time.Minute,
		Leeway:    time.Second,
	})
	require.NoError(t, err)

	mgr, err := refresh.NewManager(store.NewMemory(), 7*24*time.Hour)
	require.NoError(t, err)

	dir := directory.NewMemory()
	a, err := New(Config{
		Directory: dir,
		Hasher:    hasher,
		Signer:    signer,
		Refresh:   mgr,
		AccessTTL: 15 * time.Minute,
	})
	require.NoError(t, err)

	return &fixture{auth: a, dir: dir}
}

func (f *fixture) register(t *testing.T, username, pw, role string) *Summary {
	t.Helper()
	s, err := f.auth.Register(context.Background(), RegisterInput{
		Username: username,
		Password: pw,
		Role:     role,
	})
	require.NoError(t, err)
	return s
}

func TestRegister(t *testing.T) {
	f := newFixture(t)

	s := f.register(t, "farmer_wang", "pw123456", "")
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "farmer_wang", s.Username)
	assert.Equal(t, directory.RoleFarmer, s.Role, "role defaults to FARMER")
	assert.Equal(t, directory.StatusActive, s.Status)

	stored, err := f.dir.FindByUsername(context.Background(), "farmer_wang")
	require.NoError(t, err)
	assert.NotEqual(t, "pw123456", stored.PasswordHash, "plaintext must not be stored")
	assert.NotEmpty(t, stored.PasswordHash)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   RegisterInput
	}{
		{"short username", RegisterInput{Username: "ab", Password: "pw123456"}},
		{"bad username chars", RegisterInput{Username: "has space", Password: "pw123456"}},
		{"short password", RegisterInput{Username: "valid_user", Password: "pw1"}},
		{"long password", RegisterInput{Username: "valid_user", Password: "pw1234567890123456789"}},
		{"unknown role", RegisterInput{Username: "valid_user", Password: "pw123456", Role: "SUPERUSER"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.auth.Register(ctx, tc.in)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestRegisterConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.register(t, "farmer_wang", "pw123456", "")

	_, err := f.auth.Register(ctx, RegisterInput{Username: "farmer_wang", Password: "other123"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	_, err = f.auth.Register(ctx, RegisterInput{
		Username: "other_user", Password: "pw123456", PhoneNumber: "13800000001",
	})
	require.NoError(t, err)
	_, err = f.auth.Register(ctx, RegisterInput{
		Username: "third_user", Password: "pw123456", PhoneNumber: "13800000001",
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "farmer_wang", "pw123456", directory.RoleFarmer)

	pair, err := f.auth.Login(ctx, "farmer_wang", "pw123456", refresh.Metadata{DeviceInfo: "android"})
	require.NoError(t, err)

	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64(900), pair.ExpiresIn)
	assert.Equal(t, "farmer_wang", pair.Principal.Username)

	assert.True(t, f.auth.VerifyAccessToken(pair.AccessToken))

	claims, err := f.auth.VerifyAndClaims(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, pair.Principal.ID, claims.PrincipalID)
	assert.Equal(t, directory.RoleFarmer, claims.Role)
}

func TestLoginFailuresAreUniform(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "farmer_wang", "pw123456", "")

	_, unknownErr := f.auth.Login(ctx, "no_such_user", "pw123456", refresh.Metadata{})
	require.Error(t, unknownErr)
	_, wrongErr := f.auth.Login(ctx, "farmer_wang", "wrong-password", refresh.Metadata{})
	require.Error(t, wrongErr)

	// Same kind, same client message: the response must not reveal whether
	// the username exists.
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(unknownErr))
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(wrongErr))
	assert.Equal(t, apperr.ClientMessage(unknownErr), apperr.ClientMessage(wrongErr))
}

func TestLoginBlockedForInactive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "farmer_wang", "pw123456", "")

	for _, status := range []string{directory.StatusInactive, directory.StatusBanned} {
		p, err := f.dir.FindByID(ctx, s.ID)
		require.NoError(t, err)
		p.Status = status
		require.NoError(t, f.dir.Update(ctx, p))

		_, err = f.auth.Login(ctx, "farmer_wang", "pw123456", refresh.Metadata{})
		require.Error(t, err, "status %s", status)
		assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	}
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "farmer_wang", "pw123456", "")

	pair, err := f.auth.Login(ctx, "farmer_wang", "pw123456", refresh.Metadata{})
	require.NoError(t, err)

	refreshed, err := f.auth.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.True(t, f.auth.VerifyAccessToken(refreshed.AccessToken))
	assert.Equal(t, pair.RefreshToken, refreshed.RefreshToken, "refresh value is not rotated")
	assert.Equal(t, pair.Principal.ID, refreshed.Principal.ID)

	// Still redeemable afterwards.
	_, err = f.auth.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshInvalidToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.auth.Refresh(context.Background(), "never-issued")
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestRefreshChecksAccountStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "farmer_wang", "pw123456", "")

	pair, err := f.auth.Login(ctx, "farmer_wang", "pw123456", refresh.Metadata{})
	require.NoError(t, err)

	p, err := f.dir.FindByID(ctx, s.ID)
	require.NoError(t, err)
	p.Status = directory.StatusBanned
	require.NoError(t, f.dir.Update(ctx, p))

	_, err = f.auth.Refresh(ctx, pair.RefreshToken)
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err), "ban takes effect at next refresh")
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "farmer_wang", "pw123456", "")

	pair, err := f.auth.Login(ctx, "farmer_wang", "pw123456", refresh.Metadata{})
	require.NoError(t, err)

	require.NoError(t, f.auth.Logout(ctx, pair.RefreshToken))

	_, err = f.auth.Refresh(ctx, pair.RefreshToken)
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	// Logging out twice is a no-op, not an error.
	require.NoError(t, f.auth.Logout(ctx, pair.RefreshToken))
}

func TestLogoutUnknownToken(t *testing.T) {
	f := newFixture(t)

	err := f.auth.Logout(context.Background(), "never-issued")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestRevokeAllSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.register(t, "farmer_wang", "pw123456", "")

	var pairs []*TokenPair
	for i := 0; i < 3; i++ {
		pair, err := f.auth.Login(ctx, "farmer_wang", "pw123456", refresh.Metadata{})
		require.NoError(t, err)
		pairs = append(pairs, pair)
	}

	n, err := f.auth.RevokeAllSessions(ctx, s.ID, refresh.ReasonSecurityEvent)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Refresh tokens die immediately. Outstanding access tokens keep
	// verifying until their own expiry; that staleness window is bounded
	// by the access TTL and is deliberate.
	for _, pair := range pairs {
		_, err := f.auth.Refresh(ctx, pair.RefreshToken)
		require.Error(t, err)
		assert.True(t, f.auth.VerifyAccessToken(pair.AccessToken))
	}

	n, err = f.auth.RevokeAllSessions(ctx, s.ID, refresh.ReasonSecurityEvent)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestVerifyAccessTokenRejectsGarbage(t *testing.T) {
	f := newFixture(t)

	assert.False(t, f.auth.VerifyAccessToken(""))
	assert.False(t, f.auth.VerifyAccessToken("not-a-jwt"))
	assert.False(t, f.auth.VerifyAccessToken("aaaa.bbbb.cccc"))
}
