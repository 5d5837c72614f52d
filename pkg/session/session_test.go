package session_test

import (
	"context"
	"testing"

	"github.com/enregistreuse/caisse-mcp/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasScope(t *testing.T) {
	state := &session.AuthState{Scopes: []string{"shop:read"}}
	assert.True(t, state.HasScope("shop:read"))
	assert.False(t, state.HasScope("sales:write"))

	wildcard := &session.AuthState{Scopes: []string{session.WildcardScope}}
	assert.True(t, wildcard.HasScope("sales:write"))
	assert.True(t, wildcard.HasAllScopes([]string{"shop:read", "sales:write"}))

	var nilState *session.AuthState
	assert.False(t, nilState.HasScope("shop:read"))
	assert.True(t, nilState.HasAllScopes(nil), "no requirements always pass")
}

func TestConnectionIDDefaultsToStdio(t *testing.T) {
	assert.Equal(t, session.StdioConnectionKey, session.ConnectionIDFromContext(context.Background()))

	ctx := session.WithConnectionID(context.Background(), "http-1")
	assert.Equal(t, "http-1", session.ConnectionIDFromContext(ctx))
}

func TestManagerIsolatesConnections(t *testing.T) {
	m := session.NewManager()
	m.Set("a", &session.AuthState{Authenticated: true, ShopID: "1", APIKey: "k"})

	_, ok := m.Get("b")
	assert.False(t, ok)

	state, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", state.ShopID)

	m.Clear("a")
	_, ok = m.Get("a")
	assert.False(t, ok)
}

func TestResolveOrder(t *testing.T) {
	t.Setenv("SHOPID", "")
	t.Setenv("APIKEY", "")
	t.Setenv("MCP_SHOPID", "")
	t.Setenv("MCP_APIKEY", "")

	m := session.NewManager()

	assert.Nil(t, m.Resolve(context.Background()), "nothing configured resolves to nil")

	t.Setenv("SHOPID", "env-shop")
	t.Setenv("APIKEY", "env-key")
	state := m.Resolve(context.Background())
	require.NotNil(t, state)
	assert.Equal(t, "env-shop", state.ShopID)
	assert.Equal(t, []string{session.WildcardScope}, state.Scopes)

	m.Set(session.StdioConnectionKey, &session.AuthState{Authenticated: true, ShopID: "ambient-shop", APIKey: "k"})
	state = m.Resolve(context.Background())
	require.NotNil(t, state)
	assert.Equal(t, "ambient-shop", state.ShopID, "ambient session beats env")

	ctx := session.WithAuthState(context.Background(), &session.AuthState{Authenticated: true, ShopID: "bearer-shop", APIKey: "k"})
	state = m.Resolve(ctx)
	require.NotNil(t, state)
	assert.Equal(t, "bearer-shop", state.ShopID, "context state beats ambient session")
}

func TestFromEnvRequiresBothIdentifiers(t *testing.T) {
	t.Setenv("SHOPID", "shop-only")
	t.Setenv("APIKEY", "")
	t.Setenv("MCP_SHOPID", "")
	t.Setenv("MCP_APIKEY", "")
	assert.Nil(t, session.FromEnv())

	t.Setenv("APIKEY", "key")
	state := session.FromEnv()
	require.NotNil(t, state)
	assert.True(t, state.Authenticated)

	t.Setenv("SHOPID", "")
	t.Setenv("APIKEY", "")
	t.Setenv("MCP_SHOPID", "m-shop")
	t.Setenv("MCP_APIKEY", "m-key")
	state = session.FromEnv()
	require.NotNil(t, state)
	assert.Equal(t, "m-shop", state.ShopID, "MCP_ prefixed variables are honored")
}
