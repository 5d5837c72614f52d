// Package broker implements the authorization server that bridges the
// legacy credential-only worker API into OAuth2 Authorization Code +
// PKCE. It issues short-lived RS256 bearer tokens carrying the upstream
// shop identity, for consumption by the invocation guard.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/enregistreuse/caisse-mcp/pkg/broker/store"
	"github.com/enregistreuse/caisse-mcp/pkg/upstream"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	// DefaultCodeTTL bounds the authorize-to-token window.
	DefaultCodeTTL = 5 * time.Minute
	// DefaultTokenTTL is the access token lifetime. There is no
	// revocation; expiry is the only invalidation.
	DefaultTokenTTL = time.Hour
	// DefaultScope is granted when the authorize request names none.
	DefaultScope = "mcp:invoke"

	// codeGrace keeps consumed-after-expiry records distinguishable
	// from unknown codes: the store holds a record slightly longer
	// than its logical expiry so the token endpoint can answer
	// expired_code instead of invalid_grant.
	codeGrace = time.Minute
)

// CredentialVerifier resolves a login/password pair into the upstream
// identity. *upstream.Client is the production implementation.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, login, password string) (*upstream.Identity, error)
}

type Server struct {
	issuer   string
	audience string
	keys     *KeyMaterial
	clients  store.ClientStore
	codes    store.CodeStore
	verifier CredentialVerifier
	codeTTL  time.Duration
	tokenTTL time.Duration

	// now is swappable in tests
	now func() time.Time
}

type Option func(*Server) error

func NewServer(opts ...Option) (*Server, error) {
	s := &Server{
		codeTTL:  DefaultCodeTTL,
		tokenTTL: DefaultTokenTTL,
		now:      time.Now,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.issuer == "" {
		return nil, fmt.Errorf("broker: issuer is required")
	}
	if s.audience == "" {
		s.audience = s.issuer
	}
	if s.keys == nil {
		return nil, fmt.Errorf("broker: no signing key material configured")
	}
	if s.clients == nil || s.codes == nil {
		memory := store.NewMemoryStore()
		if s.clients == nil {
			s.clients = memory
		}
		if s.codes == nil {
			s.codes = memory
		}
	}
	if s.verifier == nil {
		return nil, fmt.Errorf("broker: no credential verifier configured")
	}

	return s, nil
}

func WithIssuer(issuer string) Option {
	return func(s *Server) error {
		s.issuer = issuer
		return nil
	}
}

func WithAudience(audience string) Option {
	return func(s *Server) error {
		s.audience = audience
		return nil
	}
}

func WithKeyMaterial(keys *KeyMaterial) Option {
	return func(s *Server) error {
		s.keys = keys
		return nil
	}
}

// WithSigningKeyFromPEMFile selects the persistent-keys startup mode.
// A missing or malformed key file fails startup; there is no silent
// ephemeral fallback once explicit key material was configured.
func WithSigningKeyFromPEMFile(path string) Option {
	return func(s *Server) error {
		keys, err := NewKeyMaterialFromPEMFile(path)
		if err != nil {
			return err
		}
		s.keys = keys
		return nil
	}
}

// WithEphemeralSigningKey selects the dev-ephemeral startup mode.
func WithEphemeralSigningKey() Option {
	return func(s *Server) error {
		keys, err := NewEphemeralKeyMaterial()
		if err != nil {
			return err
		}
		s.keys = keys
		return nil
	}
}

func WithClientStore(clients store.ClientStore) Option {
	return func(s *Server) error {
		s.clients = clients
		return nil
	}
}

func WithCodeStore(codes store.CodeStore) Option {
	return func(s *Server) error {
		s.codes = codes
		return nil
	}
}

func WithCredentialVerifier(verifier CredentialVerifier) Option {
	return func(s *Server) error {
		s.verifier = verifier
		return nil
	}
}

func WithCodeTTL(ttl time.Duration) Option {
	return func(s *Server) error {
		s.codeTTL = ttl
		return nil
	}
}

// WithDevClient pre-seeds a registered client, typically the local
// development client from config.
func WithDevClient(clientID string, redirectURIs ...string) Option {
	return func(s *Server) error {
		if s.clients == nil {
			s.clients = store.NewMemoryStore()
		}
		client := &store.Client{ID: clientID, RedirectURIs: redirectURIs, Public: true}
		if err := s.clients.SaveClient(context.Background(), client); err != nil {
			return fmt.Errorf("seed dev client: %w", err)
		}
		slog.Info("Seeded development client", "client_id", clientID, "redirect_uris", redirectURIs)
		return nil
	}
}

// Issuer returns the configured issuer URL.
func (s *Server) Issuer() string {
	return s.issuer
}

// Audience returns the audience stamped into issued tokens.
func (s *Server) Audience() string {
	return s.audience
}

// Keys exposes the key material, for wiring the bearer validator.
func (s *Server) Keys() *KeyMaterial {
	return s.keys
}

func ErrorLogMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		if err != nil {
			slog.Error("Broker error", "error", err, "path", c.Path(), "remote_addr", c.RealIP())
		}
		return err
	}
}

// MountRoutes installs the broker endpoints on an echo instance.
func (s *Server) MountRoutes(e *echo.Echo) {
	e.Use(ErrorLogMiddleware)
	e.GET("/oauth/authorize", s.AuthorizationEndpoint)
	e.POST("/oauth/authorize", s.LoginEndpoint)
	e.POST("/oauth/token", s.TokenEndpoint)
	e.GET("/oauth/jwks.json", s.JWKSEndpoint)
	e.POST("/oauth/register", s.RegisterEndpoint)
	e.GET("/.well-known/oauth-authorization-server", s.MetadataEndpoint)
	e.GET("/.well-known/openid-configuration", s.MetadataEndpoint)
	e.GET("/.well-known/oauth-protected-resource", s.ProtectedResourceEndpoint)
}

// RegisterClient stores a client registration. A missing id is
// generated; re-registration under an existing id overwrites the
// redirect URIs wholesale.
func (s *Server) RegisterClient(ctx context.Context, clientID string, redirectURIs []string) (*store.Client, error) {
	if clientID == "" {
		clientID = "pub-" + uuid.NewString()
	}
	client := &store.Client{ID: clientID, RedirectURIs: redirectURIs, Public: true}
	if err := s.clients.SaveClient(ctx, client); err != nil {
		return nil, fmt.Errorf("save client: %w", err)
	}
	return client, nil
}

// validateClient checks that the client exists and the redirect URI is
// registered verbatim. Both failure cases collapse into one answer so
// an unregistered redirect URI does not reveal whether the client id
// exists.
func (s *Server) validateClient(ctx context.Context, clientID, redirectURI string) (*store.Client, bool) {
	if clientID == "" || redirectURI == "" {
		return nil, false
	}
	client, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		return nil, false
	}
	if !client.AllowsRedirectURI(redirectURI) {
		return nil, false
	}
	return client, true
}
