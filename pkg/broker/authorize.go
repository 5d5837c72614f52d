package broker

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/enregistreuse/caisse-mcp/pkg/broker/store"
	"github.com/enregistreuse/caisse-mcp/pkg/oauth2"
	"github.com/enregistreuse/caisse-mcp/pkg/upstream"
	"github.com/labstack/echo/v4"
)

var loginFormTemplate = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html lang="fr">
<body>
<form method="post" action="/oauth/authorize" style="font-family:sans-serif;max-width:420px;margin:3rem auto">
  <h3>Connexion</h3>
  <input type="hidden" name="client_id" value="{{.ClientID}}"/>
  <input type="hidden" name="redirect_uri" value="{{.RedirectURI}}"/>
  <input type="hidden" name="state" value="{{.State}}"/>
  <input type="hidden" name="code_challenge" value="{{.CodeChallenge}}"/>
  <input type="hidden" name="code_challenge_method" value="{{.CodeChallengeMethod}}"/>
  <input type="hidden" name="scope" value="{{.Scope}}"/>
  <label>Login<br/><input name="login" autofocus required/></label><br/><br/>
  <label>Mot de passe<br/><input name="password" type="password" required/></label><br/><br/>
  <button type="submit">Se connecter</button>
</form>
</body>
</html>
`))

type authorizeRequest struct {
	ClientID            string
	RedirectURI         string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	Scope               string
}

func bindAuthorizeRequest(c echo.Context) authorizeRequest {
	req := authorizeRequest{
		ClientID:            c.FormValue("client_id"),
		RedirectURI:         c.FormValue("redirect_uri"),
		State:               c.FormValue("state"),
		CodeChallenge:       c.FormValue("code_challenge"),
		CodeChallengeMethod: c.FormValue("code_challenge_method"),
		Scope:               c.FormValue("scope"),
	}
	if req.Scope == "" {
		req.Scope = DefaultScope
	}
	if req.CodeChallengeMethod == "" {
		req.CodeChallengeMethod = string(oauth2.CodeChallengeMethodS256)
	}
	return req
}

// AuthorizationEndpoint renders the credential collection form. Nothing
// is persisted at this step; all parameters travel through the form as
// hidden fields.
func (s *Server) AuthorizationEndpoint(c echo.Context) error {
	req := bindAuthorizeRequest(c)

	if _, ok := s.validateClient(c.Request().Context(), req.ClientID, req.RedirectURI); !ok {
		return c.JSON(http.StatusBadRequest, &oauth2.Error{
			Code:        oauth2.ErrorInvalidClient,
			Description: "unknown client_id or redirect_uri",
		})
	}
	if req.CodeChallengeMethod != string(oauth2.CodeChallengeMethodS256) {
		return c.JSON(http.StatusBadRequest, &oauth2.Error{
			Code:        oauth2.ErrorInvalidRequest,
			Description: "only S256 code_challenge_method is supported",
		})
	}

	var page strings.Builder
	if err := loginFormTemplate.Execute(&page, req); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}
	return c.HTML(http.StatusOK, page.String())
}

// LoginEndpoint performs the credential exchange: it re-validates the
// client, verifies the login against the upstream worker API and, on
// success, issues a single-use authorization code bound to the PKCE
// challenge.
func (s *Server) LoginEndpoint(c echo.Context) error {
	req := bindAuthorizeRequest(c)
	login := c.FormValue("login")
	password := c.FormValue("password")

	if _, ok := s.validateClient(c.Request().Context(), req.ClientID, req.RedirectURI); !ok {
		return c.JSON(http.StatusBadRequest, &oauth2.Error{
			Code:        oauth2.ErrorInvalidClient,
			Description: "unknown client_id or redirect_uri",
		})
	}
	// PKCE is mandatory: every client is public.
	if req.CodeChallenge == "" {
		return c.JSON(http.StatusBadRequest, &oauth2.Error{
			Code:        oauth2.ErrorInvalidRequest,
			Description: "missing PKCE code_challenge",
		})
	}
	if req.CodeChallengeMethod != string(oauth2.CodeChallengeMethodS256) {
		return c.JSON(http.StatusBadRequest, &oauth2.Error{
			Code:        oauth2.ErrorInvalidRequest,
			Description: "only S256 code_challenge_method is supported",
		})
	}
	if login == "" || password == "" {
		return c.JSON(http.StatusBadRequest, &oauth2.Error{
			Code:        oauth2.ErrorInvalidRequest,
			Description: "missing login or password",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), upstream.DefaultTimeout)
	defer cancel()

	identity, err := s.verifier.VerifyCredentials(ctx, login, password)
	if err != nil {
		if errors.Is(err, upstream.ErrBadCredentials) {
			// No record is created on rejection.
			return c.JSON(http.StatusUnauthorized, &oauth2.Error{
				Code:        "access_denied",
				Description: "bad credentials",
			})
		}
		// Transport failures are not a wrong-password answer.
		return c.JSON(http.StatusBadGateway, &oauth2.Error{
			Code:        oauth2.ErrorServerError,
			Description: "credential verification unavailable",
		})
	}

	code := oauth2.GenerateCode()
	record := &store.PendingCode{
		ClientID:      req.ClientID,
		RedirectURI:   req.RedirectURI,
		CodeChallenge: req.CodeChallenge,
		Login:         login,
		ShopID:        identity.ShopID,
		APIKey:        identity.APIKey,
		Scope:         req.Scope,
		ExpiresAt:     s.now().Add(s.codeTTL),
	}
	// The store keeps the record slightly past its logical expiry so a
	// late redemption is reported as expired_code, not invalid_grant.
	if err := s.codes.SaveCode(c.Request().Context(), code, record, s.codeTTL+codeGrace); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, &oauth2.Error{
			Code:        oauth2.ErrorServerError,
			Description: "unable to persist authorization code",
		})
	}

	target, err := url.Parse(req.RedirectURI)
	if err != nil {
		return c.JSON(http.StatusBadRequest, &oauth2.Error{
			Code:        oauth2.ErrorInvalidClient,
			Description: "unparsable redirect_uri",
		})
	}
	params := target.Query()
	params.Set("code", code)
	if req.State != "" {
		// state is opaque to the broker and echoed verbatim
		params.Set("state", req.State)
	}
	target.RawQuery = params.Encode()

	return c.Redirect(http.StatusFound, target.String())
}
