package identity

import (
	"context"
	"testing"
	"time"

	"github.com/example/lensshop/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProvider(t *testing.T) *JWTProvider {
	t.Helper()
	p, err := NewJWTProvider(config.IdentityConfig{
		Secret:   "test-secret",
		Issuer:   "lens-test",
		TokenTTL: time.Hour,
	})
	require.NoError(t, err)
	return p
}

func TestMintAndAuthenticate(t *testing.T) {
	p := newProvider(t)

	token, err := p.Mint("principal-1")
	require.NoError(t, err)

	id, err := p.Authenticate(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, "principal-1", id.Principal)
	assert.Equal(t, token, id.Token)
	assert.False(t, id.Anonymous())
}

func TestAuthenticate_Expired(t *testing.T) {
	p := newProvider(t)
	issued := time.Now().Add(-2 * time.Hour)
	p.now = func() time.Time { return issued }

	token, err := p.Mint("principal-1")
	require.NoError(t, err)

	p.now = time.Now
	_, err = p.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestAuthenticate_WrongSecret(t *testing.T) {
	other, err := NewJWTProvider(config.IdentityConfig{Secret: "other", Issuer: "lens-test"})
	require.NoError(t, err)
	token, err := other.Mint("principal-1")
	require.NoError(t, err)

	_, err = newProvider(t).Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestAuthenticate_Empty(t *testing.T) {
	_, err := newProvider(t).Authenticate(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestMint_RequiresPrincipal(t *testing.T) {
	_, err := newProvider(t).Mint("")
	assert.ErrorIs(t, err, ErrAnonymous)
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := NewContext(context.Background(), Identity{Principal: "p"})
	id, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "p", id.Principal)

	_, ok = FromContext(NewContext(context.Background(), Identity{}))
	assert.False(t, ok)
}

func TestNewJWTProvider_Validation(t *testing.T) {
	_, err := NewJWTProvider(config.IdentityConfig{Issuer: "x"})
	assert.Error(t, err)
	_, err = NewJWTProvider(config.IdentityConfig{Secret: "x"})
	assert.Error(t, err)
}
