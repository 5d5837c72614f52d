package oauth2

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
)

// Error codes returned by the authorization and token endpoints,
// see RFC 6749 section 5.2. expired_code is a finer-grained variant of
// invalid_grant kept for compatibility with existing POS clients.
const (
	ErrorInvalidRequest       = "invalid_request"
	ErrorInvalidClient        = "invalid_client"
	ErrorInvalidGrant         = "invalid_grant"
	ErrorUnsupportedGrantType = "unsupported_grant_type"
	ErrorExpiredCode          = "expired_code"
	ErrorServerError          = "server_error"
)

// GrantTypeAuthorizationCode is the only grant type the broker supports.
const GrantTypeAuthorizationCode = "authorization_code"

type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

type CodeChallengeMethod string

const (
	CodeChallengeMethodS256 CodeChallengeMethod = "S256"
)

// GenerateCode returns an opaque single-use authorization code with
// 256 bits of entropy, encoded as base64url without padding.
func GenerateCode() string {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		panic("Random number generation failed")
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

const letters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-"

// GenerateCodeVerifier returns a 128 character PKCE code verifier,
// see RFC 7636 section 4.1.
func GenerateCodeVerifier() string {
	n := 128
	ret := make([]byte, n)
	for i := 0; i < n; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
		if err != nil {
			panic("Random number generation failed")
		}
		ret[i] = letters[num.Int64()]
	}

	return string(ret)
}

// S256ChallengeFromVerifier derives the S256 code challenge for a verifier.
func S256ChallengeFromVerifier(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}
