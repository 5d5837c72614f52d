package session

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

var bearerPattern = regexp.MustCompile(`^(?i:Bearer)\s+(.+)$`)

// BearerValidator verifies broker-issued access tokens against the
// published verification key set and turns their claims into an
// AuthState.
type BearerValidator struct {
	keys     jwk.Set
	issuer   string
	audience string
	// requiredScope must be granted for the token to be usable at all.
	requiredScope string
}

func NewBearerValidator(keys jwk.Set, issuer, audience string) *BearerValidator {
	return &BearerValidator{
		keys:          keys,
		issuer:        issuer,
		audience:      audience,
		requiredScope: "mcp:invoke",
	}
}

// Validate parses an Authorization header value ("Bearer <jwt>" or a
// bare token), verifies signature, issuer, audience and expiry, and
// extracts the embedded upstream identity.
func (v *BearerValidator) Validate(authorization string) (*AuthState, error) {
	if authorization == "" {
		return nil, fmt.Errorf("missing token")
	}
	raw := authorization
	if m := bearerPattern.FindStringSubmatch(authorization); m != nil {
		raw = m[1]
	}

	token, err := jwt.Parse(
		[]byte(raw),
		jwt.WithKeySet(v.keys),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithValidate(true),
	)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}

	claims := token.PrivateClaims()
	scope, _ := claims["scope"].(string)
	scopes := strings.Fields(scope)

	state := &AuthState{
		Login:  token.Subject(),
		ShopID: nestedClaim(claims, "shop", "id"),
		APIKey: nestedClaim(claims, "api", "key"),
		Scopes: scopes,
	}
	if !state.HasScope(v.requiredScope) {
		return nil, fmt.Errorf("insufficient scope: %s required", v.requiredScope)
	}
	if state.ShopID == "" || state.APIKey == "" {
		return nil, fmt.Errorf("token carries no upstream identity")
	}
	state.Authenticated = true
	return state, nil
}

func nestedClaim(claims map[string]any, outer, inner string) string {
	object, ok := claims[outer].(map[string]any)
	if !ok {
		return ""
	}
	value, ok := object[inner].(string)
	if !ok {
		return ""
	}
	return value
}
