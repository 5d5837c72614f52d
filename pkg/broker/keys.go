package broker

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"os"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// KeyID tags the active signing key in issued tokens and in the
// published key set. There is exactly one active key; no rotation
// window.
const KeyID = "caisse-mcp-1"

// KeyMaterial owns the RS256 signing key pair and the publishable
// verification key set. It is built once at startup and lives for the
// process lifetime.
type KeyMaterial struct {
	signingKey jwk.Key
	publicSet  jwk.Set
	ephemeral  bool
}

// NewEphemeralKeyMaterial generates a volatile RSA key pair. Tokens
// signed with it become unverifiable after a restart, so this mode is
// for development only and is logged as such.
func NewEphemeralKeyMaterial() (*KeyMaterial, error) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	key, err := jwk.FromRaw(rsaKey)
	if err != nil {
		return nil, fmt.Errorf("wrap rsa key: %w", err)
	}
	material, err := newKeyMaterial(key)
	if err != nil {
		return nil, err
	}
	material.ephemeral = true
	slog.Warn("Generated ephemeral signing key, tokens will not survive a restart", "kid", KeyID)
	return material, nil
}

// NewKeyMaterialFromPEM imports an operator-supplied private key.
// Malformed material is a hard error: falling back to an ephemeral key
// here would silently break token verification across restarts.
func NewKeyMaterialFromPEM(pemData []byte) (*KeyMaterial, error) {
	key, err := jwk.ParseKey(pemData, jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("parse signing key pem: %w", err)
	}
	return newKeyMaterial(key)
}

// NewKeyMaterialFromPEMFile imports the key from a file path.
func NewKeyMaterialFromPEMFile(path string) (*KeyMaterial, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key file: %w", err)
	}
	return NewKeyMaterialFromPEM(data)
}

func newKeyMaterial(key jwk.Key) (*KeyMaterial, error) {
	if err := key.Set(jwk.KeyIDKey, KeyID); err != nil {
		return nil, fmt.Errorf("set kid: %w", err)
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		return nil, fmt.Errorf("set alg: %w", err)
	}
	if err := key.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, fmt.Errorf("set use: %w", err)
	}

	public, err := key.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	set := jwk.NewSet()
	if err := set.AddKey(public); err != nil {
		return nil, fmt.Errorf("build public set: %w", err)
	}

	return &KeyMaterial{signingKey: key, publicSet: set}, nil
}

// SigningKey returns the private signing key.
func (k *KeyMaterial) SigningKey() jwk.Key {
	return k.signingKey
}

// PublicSet returns the publishable key set; it contains public
// material only and is always sufficient to verify tokens signed by
// the active key.
func (k *KeyMaterial) PublicSet() jwk.Set {
	return k.publicSet
}

// Ephemeral reports whether the key pair was generated at boot.
func (k *KeyMaterial) Ephemeral() bool {
	return k.ephemeral
}
