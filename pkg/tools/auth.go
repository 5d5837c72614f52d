package tools

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/enregistreuse/caisse-mcp/pkg/guard"
	"github.com/enregistreuse/caisse-mcp/pkg/i18n"
	"github.com/enregistreuse/caisse-mcp/pkg/session"
	"github.com/enregistreuse/caisse-mcp/pkg/upstream"
	"github.com/mark3labs/mcp-go/mcp"
)

// RegisterAuthTools installs the in-session credential exchange. The
// tool is public by necessity: it is how a session becomes
// authenticated in the first place.
func RegisterAuthTools(reg *guard.Registry, client *upstream.Client) {
	tool := mcp.NewTool("auth_get_token",
		mcp.WithDescription(i18n.T("tools.auth_get_token.description")),
		mcp.WithString("login",
			mcp.Required(),
			mcp.Description("Account login for caisse.enregistreuse.fr"),
		),
		mcp.WithString("password",
			mcp.Required(),
			mcp.Description("Account password"),
		),
	)

	reg.Register(tool, guard.Policy{Public: true}, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		login, err := request.RequireString("login")
		if err != nil {
			return mcp.NewToolResultError("login argument is required"), nil
		}
		password, err := request.RequireString("password")
		if err != nil {
			return mcp.NewToolResultError("password argument is required"), nil
		}

		identity, err := client.VerifyCredentials(ctx, login, password)
		if err != nil {
			if errors.Is(err, upstream.ErrBadCredentials) {
				return mcp.NewToolResultError("invalid login or password"), nil
			}
			slog.Error("credential exchange failed", "error", err)
			return mcp.NewToolResultError("upstream unavailable, try again later"), nil
		}

		// The session sticks to this connection, so subsequent tool
		// calls resolve it without resending credentials.
		reg.Sessions().Set(session.ConnectionIDFromContext(ctx), &session.AuthState{
			Authenticated: true,
			Login:         login,
			ShopID:        identity.ShopID,
			APIKey:        identity.APIKey,
			Scopes:        []string{session.WildcardScope},
		})

		payload, err := json.MarshalIndent(identity, "", "  ")
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(payload)), nil
	})
}
