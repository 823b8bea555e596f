package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full configuration surface of the adapter. There are no
// baked-in service URLs: every endpoint must come from the loaded file or
// the environment.
type Config struct {
	Tree        TreeConfig        `mapstructure:"tree"`
	Collection  CollectionConfig  `mapstructure:"collection"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	HTTP        HTTPConfig        `mapstructure:"http"`
}

// TreeConfig addresses the JSON-tree realtime database.
type TreeConfig struct {
	BaseURL string `mapstructure:"baseURL"`
	// RulesPath is the resource holding the database rules document,
	// relative to BaseURL.
	RulesPath string `mapstructure:"rulesPath"`
}

// CollectionConfig addresses the document-collection store.
type CollectionConfig struct {
	BaseURL string `mapstructure:"baseURL"`
}

// CredentialsConfig drives the bearer-token provider for outbound calls.
type CredentialsConfig struct {
	TokenURL     string `mapstructure:"tokenURL"`
	APIKey       string `mapstructure:"apiKey"`
	RefreshToken string `mapstructure:"refreshToken"`
	// AuthParamName is the query-string parameter the token is attached
	// under, "auth" or "access_token" depending on the credential type.
	AuthParamName string `mapstructure:"authParamName"`
	// RefreshMargin is subtracted from the token lifetime when computing
	// the cache deadline.
	RefreshMargin time.Duration `mapstructure:"refreshMargin"`
}

// HTTPConfig tunes the shared heimdall transport.
type HTTPConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryCount int           `mapstructure:"retryCount"`
}

// Load reads configuration from the given file, applying
// IDENTITYSTORE_-prefixed environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("IDENTITYSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("tree.rulesPath", ".settings/rules")
	v.SetDefault("credentials.authParamName", "auth")
	v.SetDefault("credentials.refreshMargin", 30*time.Second)
	v.SetDefault("http.timeout", 10*time.Second)
	v.SetDefault("http.retryCount", 3)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration addresses at least one backing
// database and a token endpoint when credentials are configured.
func (c *Config) Validate() error {
	if c.Tree.BaseURL == "" && c.Collection.BaseURL == "" {
		return errors.New("no database configured: tree.baseURL or collection.baseURL is required")
	}
	if c.Credentials.APIKey != "" && c.Credentials.TokenURL == "" {
		return errors.New("credentials.tokenURL is required when credentials.apiKey is set")
	}
	switch c.Credentials.AuthParamName {
	case "auth", "access_token":
	default:
		return fmt.Errorf("credentials.authParamName must be %q or %q, got %q",
			"auth", "access_token", c.Credentials.AuthParamName)
	}
	return nil
}
