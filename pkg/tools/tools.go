// Package tools registers the MCP tool catalog over the legacy worker
// API. Every tool goes through the guard registry with an explicit
// policy; handlers receive their auth state from the call context and
// never take credentials as arguments.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/enregistreuse/caisse-mcp/pkg/guard"
	"github.com/enregistreuse/caisse-mcp/pkg/session"
	"github.com/enregistreuse/caisse-mcp/pkg/upstream"
	"github.com/mark3labs/mcp-go/mcp"
)

// Scopes enforced by the tool policies. A wildcard session holds all
// of them.
const (
	ScopeShopRead   = "shop:read"
	ScopeSalesWrite = "sales:write"
)

// RegisterAll installs the complete tool catalog.
func RegisterAll(reg *guard.Registry, client *upstream.Client) {
	RegisterPingTool(reg)
	RegisterAuthTools(reg, client)
	RegisterDataTools(reg, client)
	RegisterSalesTools(reg, client)
}

// RegisterPingTool installs the unauthenticated liveness probe.
func RegisterPingTool(reg *guard.Registry) {
	tool := mcp.NewTool("ping",
		mcp.WithDescription("Check that the server is reachable"),
	)
	reg.Register(tool, guard.Policy{Public: true}, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("pong"), nil
	})
}

// resolveAuth returns the upstream identifiers for the current call.
// Guarded tools always have them; the error path only fires for public
// tools called without any session.
func resolveAuth(ctx context.Context) (shopID, apiKey string, err error) {
	state, ok := session.AuthStateFromContext(ctx)
	if !ok || state.ShopID == "" || state.APIKey == "" {
		return "", "", fmt.Errorf("missing credentials: sign in with auth_get_token or set SHOPID/APIKEY")
	}
	return state.ShopID, state.APIKey, nil
}

// workerResult wraps a raw worker response. JSON bodies are
// re-indented the way clients expect; CSV and HTML pass through
// verbatim.
func workerResult(body []byte) *mcp.CallToolResult {
	var decoded any
	if err := json.Unmarshal(body, &decoded); err == nil {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, body, "", "  "); err == nil {
			return mcp.NewToolResultText(pretty.String())
		}
	}
	return mcp.NewToolResultText(string(body))
}

// argString reads an optional string argument, tolerating numeric
// values the way loosely typed clients send them.
func argString(request mcp.CallToolRequest, key, fallback string) string {
	value, ok := request.GetArguments()[key]
	if !ok || value == nil {
		return fallback
	}
	switch v := value.(type) {
	case string:
		if v == "" {
			return fallback
		}
		return v
	default:
		return fmt.Sprint(v)
	}
}

// argInt reads an integer argument. JSON numbers arrive as float64;
// numeric strings are accepted because several MCP clients stringify
// enum-like values.
func argInt(request mcp.CallToolRequest, key string) (int, bool, error) {
	value, ok := request.GetArguments()[key]
	if !ok || value == nil {
		return 0, false, nil
	}
	switch v := value.(type) {
	case float64:
		return int(v), true, nil
	case int:
		return v, true, nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false, fmt.Errorf("%s must be an integer", key)
		}
		return n, true, nil
	default:
		return 0, false, fmt.Errorf("%s must be an integer", key)
	}
}

// argBool reads a required boolean argument.
func argBool(request mcp.CallToolRequest, key string) (bool, error) {
	value, ok := request.GetArguments()[key]
	if !ok || value == nil {
		return false, fmt.Errorf("%s argument is required", key)
	}
	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("%s must be a boolean", key)
	}
	return b, nil
}
