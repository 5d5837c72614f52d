package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CAISSE_MCP_CONFIG", "")
	t.Setenv("ADDRESS", "")
	t.Setenv("ISSUER", "")
	t.Setenv("UPSTREAM_BASE_URL", "")
	t.Setenv("SIGNING_KEY_FILE", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDIS_KEY_PREFIX", "")

	config, err := loadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":8787", config.Address)
	assert.Equal(t, "http://localhost:8787", config.Issuer)
	require.NotNil(t, config.DevClient)
	assert.Equal(t, "mcp-client", config.DevClient.ClientID)
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("ADDRESS", "")
	t.Setenv("ISSUER", "")
	t.Setenv("UPSTREAM_BASE_URL", "")
	t.Setenv("REDIS_URL", "")

	path := filepath.Join(t.TempDir(), "caisse-mcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
address: ":9000"
issuer: "https://broker.example.com"
redis_url: "redis://localhost:6379/0"
dev_client:
  client_id: local-dev
  redirect_uris:
    - http://localhost:5173/cb
`), 0o600))

	config, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", config.Address)
	assert.Equal(t, "https://broker.example.com", config.Issuer)
	assert.Equal(t, "redis://localhost:6379/0", config.RedisURL)
	require.NotNil(t, config.DevClient)
	assert.Equal(t, []string{"http://localhost:5173/cb"}, config.DevClient.RedirectURIs)
}

func TestEnvOverridesConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "caisse-mcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("address: \":9000\"\nissuer: \"https://file.example.com\"\n"), 0o600))

	t.Setenv("ISSUER", "https://env.example.com")
	t.Setenv("ADDRESS", "")
	t.Setenv("UPSTREAM_BASE_URL", "")
	t.Setenv("REDIS_URL", "")

	config, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", config.Issuer)
	assert.Equal(t, ":9000", config.Address)
}

func TestExplicitMissingConfigFails(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestInvalidIssuerRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "caisse-mcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("issuer: \"not a url\"\n"), 0o600))

	t.Setenv("ISSUER", "")
	t.Setenv("ADDRESS", "")

	_, err := loadConfig(path)
	assert.Error(t, err)
}
