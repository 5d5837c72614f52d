package broker

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Metadata is the authorization server metadata document,
// see https://datatracker.ietf.org/doc/html/rfc8414
type Metadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	JwksURI                           string   `json:"jwks_uri"`
	RegistrationEndpoint              string   `json:"registration_endpoint"`
	ScopesSupported                   []string `json:"scopes_supported"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
}

// ProtectedResourceMetadata describes this process as an OAuth2
// protected resource, see RFC 9728. MCP clients use it to locate the
// authorization server.
type ProtectedResourceMetadata struct {
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers"`
	ScopesSupported      []string `json:"scopes_supported"`
}

// ScopesSupported are the scopes the broker grants and the guard
// recognizes.
var ScopesSupported = []string{"mcp:invoke", "shop:read", "sales:write"}

func (s *Server) metadata() *Metadata {
	return &Metadata{
		Issuer:                            s.issuer,
		AuthorizationEndpoint:             s.issuer + "/oauth/authorize",
		TokenEndpoint:                     s.issuer + "/oauth/token",
		JwksURI:                           s.issuer + "/oauth/jwks.json",
		RegistrationEndpoint:              s.issuer + "/oauth/register",
		ScopesSupported:                   ScopesSupported,
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code"},
		TokenEndpointAuthMethodsSupported: []string{"none"},
		CodeChallengeMethodsSupported:     []string{"S256"},
	}
}

func (s *Server) MetadataEndpoint(c echo.Context) error {
	return c.JSON(http.StatusOK, s.metadata())
}

func (s *Server) ProtectedResourceEndpoint(c echo.Context) error {
	return c.JSON(http.StatusOK, &ProtectedResourceMetadata{
		Resource:             s.audience,
		AuthorizationServers: []string{s.issuer},
		ScopesSupported:      ScopesSupported,
	})
}

// JWKSEndpoint publishes the verification key set; public material
// only.
func (s *Server) JWKSEndpoint(c echo.Context) error {
	return c.JSON(http.StatusOK, s.keys.PublicSet())
}

type registrationRequest struct {
	ClientID     string   `json:"client_id"`
	RedirectURIs []string `json:"redirect_uris"`
}

type registrationResponse struct {
	ClientID                string   `json:"client_id"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	RedirectURIs            []string `json:"redirect_uris"`
}

// RegisterEndpoint implements minimal dynamic client registration: all
// clients are public, identified by their redirect URI set alone.
func (s *Server) RegisterEndpoint(c echo.Context) error {
	var req registrationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_client_metadata"})
	}
	if len(req.RedirectURIs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_redirect_uri"})
	}

	client, err := s.RegisterClient(c.Request().Context(), req.ClientID, req.RedirectURIs)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	return c.JSON(http.StatusCreated, &registrationResponse{
		ClientID:                client.ID,
		TokenEndpointAuthMethod: "none",
		RedirectURIs:            client.RedirectURIs,
	})
}
