package session_test

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/enregistreuse/caisse-mcp/pkg/session"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://broker.test"
	testAudience = "https://broker.test"
)

type signer struct {
	key    jwk.Key
	public jwk.Set
}

func newSigner(t *testing.T) *signer {
	t.Helper()
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	key, err := jwk.FromRaw(raw)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, "test-key"))
	require.NoError(t, key.Set(jwk.AlgorithmKey, jwa.RS256))

	public, err := key.PublicKey()
	require.NoError(t, err)
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(public))

	return &signer{key: key, public: set}
}

func (s *signer) mint(t *testing.T, mutate func(jwt.Token)) string {
	t.Helper()
	token := jwt.New()
	now := time.Now()
	claims := map[string]any{
		jwt.SubjectKey:    "alice",
		jwt.IssuerKey:     testIssuer,
		jwt.AudienceKey:   testAudience,
		jwt.IssuedAtKey:   now,
		jwt.ExpirationKey: now.Add(time.Hour),
		"scope":           "mcp:invoke shop:read sales:write",
		"shop":            map[string]any{"id": "shop-5"},
		"api":             map[string]any{"key": "key-5"},
	}
	for name, value := range claims {
		require.NoError(t, token.Set(name, value))
	}
	if mutate != nil {
		mutate(token)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, s.key))
	require.NoError(t, err)
	return string(signed)
}

func TestBearerRoundTrip(t *testing.T) {
	s := newSigner(t)
	v := session.NewBearerValidator(s.public, testIssuer, testAudience)

	state, err := v.Validate("Bearer " + s.mint(t, nil))
	require.NoError(t, err)

	assert.True(t, state.Authenticated)
	assert.Equal(t, "alice", state.Login)
	assert.Equal(t, "shop-5", state.ShopID)
	assert.Equal(t, "key-5", state.APIKey)
	assert.True(t, state.HasScope("shop:read"))
	assert.True(t, state.HasScope("sales:write"))
}

func TestBearerAcceptsRawToken(t *testing.T) {
	s := newSigner(t)
	v := session.NewBearerValidator(s.public, testIssuer, testAudience)

	state, err := v.Validate(s.mint(t, nil))
	require.NoError(t, err)
	assert.True(t, state.Authenticated)
}

func TestBearerRejections(t *testing.T) {
	s := newSigner(t)
	other := newSigner(t)
	v := session.NewBearerValidator(s.public, testIssuer, testAudience)

	t.Run("empty header", func(t *testing.T) {
		_, err := v.Validate("")
		assert.Error(t, err)
	})

	t.Run("wrong signing key", func(t *testing.T) {
		_, err := v.Validate(other.mint(t, nil))
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		token := s.mint(t, func(tok jwt.Token) {
			require.NoError(t, tok.Set(jwt.ExpirationKey, time.Now().Add(-time.Minute)))
		})
		_, err := v.Validate(token)
		assert.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		token := s.mint(t, func(tok jwt.Token) {
			require.NoError(t, tok.Set(jwt.IssuerKey, "https://elsewhere.test"))
		})
		_, err := v.Validate(token)
		assert.Error(t, err)
	})

	t.Run("missing invoke scope", func(t *testing.T) {
		token := s.mint(t, func(tok jwt.Token) {
			require.NoError(t, tok.Set("scope", "shop:read"))
		})
		_, err := v.Validate(token)
		assert.Error(t, err)
	})

	t.Run("missing upstream identity", func(t *testing.T) {
		token := s.mint(t, func(tok jwt.Token) {
			require.NoError(t, tok.Set("shop", map[string]any{}))
		})
		_, err := v.Validate(token)
		assert.Error(t, err)
	})
}
