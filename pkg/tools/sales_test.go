package tools_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/enregistreuse/caisse-mcp/pkg/guard"
	"github.com/enregistreuse/caisse-mcp/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCtx() context.Context {
	return session.WithAuthState(context.Background(), &session.AuthState{
		Authenticated: true,
		ShopID:        "shop-1",
		APIKey:        "key-1",
		Scopes:        []string{"sales:write"},
	})
}

func TestSalesCreate(t *testing.T) {
	var body map[string]any
	srv, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/workers/createOrder.php", r.URL.Path)
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &body))
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "order_id": 1001})
	})

	result, err := call(t, srv, writeCtx(), "sales_create", map[string]any{
		"payment":        "5",
		"deliveryMethod": float64(2),
		"publicComment":  "sans oignons",
		"items": []any{
			map[string]any{"type": "catalog", "productId": float64(12), "quantity": float64(2)},
			map[string]any{"type": "free", "title": "pourboire", "price": float64(3)},
		},
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "1001")

	assert.Equal(t, "shop-1", body["idboutique"], "shop id comes from the session, never from arguments")
	assert.Equal(t, "key-1", body["key"])
	assert.Equal(t, float64(5), body["payment"], "stringified payment mode is normalized")
	assert.Equal(t, "sans oignons", body["publicComment"])
	require.Len(t, body["items"], 2)
}

func TestSalesCreateRequiresWriteScope(t *testing.T) {
	srv, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("upstream must not be called")
	})

	_, err := call(t, srv, readCtx(), "sales_create", map[string]any{
		"items": []any{map[string]any{"type": "free", "price": float64(1)}},
	})

	var guardErr *guard.Error
	require.True(t, errors.As(err, &guardErr))
	assert.Equal(t, guard.CodeAuthorizationDenied, guardErr.Code)
}

func TestSalesCreateValidatesItems(t *testing.T) {
	srv, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("upstream must not be called")
	})

	cases := map[string]map[string]any{
		"no items": {},
		"empty items": {
			"items": []any{},
		},
		"catalog without product": {
			"items": []any{map[string]any{"type": "catalog"}},
		},
		"dept without price": {
			"items": []any{map[string]any{"type": "dept", "departmentId": float64(3), "title": "divers"}},
		},
		"unknown item type": {
			"items": []any{map[string]any{"type": "bundle"}},
		},
		"delivery method out of range": {
			"deliveryMethod": float64(7),
			"items":          []any{map[string]any{"type": "free", "price": float64(1)}},
		},
	}

	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			result, err := call(t, srv, writeCtx(), "sales_create", args)
			require.NoError(t, err)
			assert.True(t, result.IsError)
		})
	}
}
