package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/enregistreuse/caisse-mcp/pkg/upstream"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config/caisse-mcp.yaml"

type DevClientConfig struct {
	ClientID     string   `yaml:"client_id" validate:"required"`
	RedirectURIs []string `yaml:"redirect_uris" validate:"required,min=1"`
}

type Config struct {
	Address         string           `yaml:"address" validate:"required"`
	Issuer          string           `yaml:"issuer" validate:"required,url"`
	UpstreamBaseURL string           `yaml:"upstream_base_url" validate:"omitempty,url"`
	SigningKeyFile  string           `yaml:"signing_key_file"`
	RedisURL        string           `yaml:"redis_url"`
	RedisKeyPrefix  string           `yaml:"redis_key_prefix"`
	DevClient       *DevClientConfig `yaml:"dev_client"`
}

func defaultConfig() *Config {
	return &Config{
		Address:         ":8787",
		Issuer:          "http://localhost:8787",
		UpstreamBaseURL: upstream.DefaultBaseURL,
		DevClient: &DevClientConfig{
			ClientID:     "mcp-client",
			RedirectURIs: []string{"http://localhost:1234/callback"},
		},
	}
}

// loadConfig reads the YAML config and applies environment overrides.
// A missing file at the default path is not an error; an explicitly
// requested file must exist.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	explicit := path != ""
	if !explicit {
		path = getEnv("CAISSE_MCP_CONFIG", defaultConfigPath)
		explicit = path != defaultConfigPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("unmarshal config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// run on defaults
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	applyEnvOverrides(config)

	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return config, nil
}

// applyEnvOverrides lets deployment secrets bypass the config file.
func applyEnvOverrides(config *Config) {
	config.Address = getEnv("ADDRESS", config.Address)
	config.Issuer = getEnv("ISSUER", config.Issuer)
	config.UpstreamBaseURL = getEnv("UPSTREAM_BASE_URL", config.UpstreamBaseURL)
	config.SigningKeyFile = getEnv("SIGNING_KEY_FILE", config.SigningKeyFile)
	config.RedisURL = getEnv("REDIS_URL", config.RedisURL)
	config.RedisKeyPrefix = getEnv("REDIS_KEY_PREFIX", config.RedisKeyPrefix)
}

func getEnv(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}
