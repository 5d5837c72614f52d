package broker

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/enregistreuse/caisse-mcp/pkg/broker/store"
	"github.com/enregistreuse/caisse-mcp/pkg/oauth2"
	"github.com/labstack/echo/v4"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// TokenEndpoint redeems an authorization code for an access token.
//
// The checks run in a fixed order, each with its own error code. The
// pending record is consumed (deleted) the moment it is looked up,
// before expiry and PKCE verification: a replayed code can never
// succeed twice, and a client's malformed retry cannot resurrect a code
// a third party might also have captured.
func (s *Server) TokenEndpoint(c echo.Context) error {
	grantType := c.FormValue("grant_type")
	code := c.FormValue("code")
	codeVerifier := c.FormValue("code_verifier")
	clientID := c.FormValue("client_id")
	redirectURI := c.FormValue("redirect_uri")

	if grantType != oauth2.GrantTypeAuthorizationCode {
		return c.JSON(http.StatusBadRequest, &oauth2.Error{Code: oauth2.ErrorUnsupportedGrantType})
	}
	if code == "" || codeVerifier == "" {
		return c.JSON(http.StatusBadRequest, &oauth2.Error{Code: oauth2.ErrorInvalidRequest})
	}

	record, err := s.codes.ConsumeCode(c.Request().Context(), code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusBadRequest, &oauth2.Error{Code: oauth2.ErrorInvalidGrant})
		}
		return echo.NewHTTPError(http.StatusInternalServerError, &oauth2.Error{
			Code:        oauth2.ErrorServerError,
			Description: "code store unavailable",
		})
	}

	if record.Expired(s.now()) {
		return c.JSON(http.StatusBadRequest, &oauth2.Error{Code: oauth2.ErrorExpiredCode})
	}
	if clientID != record.ClientID || redirectURI != record.RedirectURI {
		return c.JSON(http.StatusBadRequest, &oauth2.Error{Code: oauth2.ErrorInvalidClient})
	}
	// PKCE mismatch and unknown code answer identically so the caller
	// cannot tell which sub-condition failed.
	if oauth2.S256ChallengeFromVerifier(codeVerifier) != record.CodeChallenge {
		return c.JSON(http.StatusBadRequest, &oauth2.Error{Code: oauth2.ErrorInvalidGrant})
	}

	accessToken, err := s.issueAccessToken(record)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, &oauth2.Error{
			Code:        oauth2.ErrorServerError,
			Description: "unable to issue access token",
		})
	}

	return c.JSON(http.StatusOK, &oauth2.TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokenTTL.Seconds()),
		Scope:       record.Scope,
	})
}

func (s *Server) issueAccessToken(record *store.PendingCode) (string, error) {
	now := s.now()

	token := jwt.New()
	claims := map[string]any{
		jwt.SubjectKey:    record.Login,
		jwt.IssuerKey:     s.issuer,
		jwt.AudienceKey:   s.audience,
		jwt.IssuedAtKey:   now,
		jwt.ExpirationKey: now.Add(s.tokenTTL),
		"scope":           record.Scope,
		"shop":            map[string]any{"id": record.ShopID},
		"api":             map[string]any{"key": record.APIKey},
	}
	for name, value := range claims {
		if err := token.Set(name, value); err != nil {
			return "", fmt.Errorf("set claim %s: %w", name, err)
		}
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, s.keys.SigningKey()))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return string(signed), nil
}
