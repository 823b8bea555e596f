package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "identitystore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
tree:
  baseURL: https://db.example.test
collection:
  baseURL: https://docs.example.test
credentials:
  tokenURL: https://token.example.test/v1/token
  apiKey: key-123
  refreshToken: refresh-123
  authParamName: access_token
http:
  timeout: 5s
  retryCount: 2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://db.example.test", cfg.Tree.BaseURL)
	assert.Equal(t, ".settings/rules", cfg.Tree.RulesPath)
	assert.Equal(t, "https://docs.example.test", cfg.Collection.BaseURL)
	assert.Equal(t, "access_token", cfg.Credentials.AuthParamName)
	assert.Equal(t, 30*time.Second, cfg.Credentials.RefreshMargin)
	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 2, cfg.HTTP.RetryCount)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `
tree:
  baseURL: https://db.example.test
`)
	t.Setenv("IDENTITYSTORE_TREE_BASEURL", "https://other.example.test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.test", cfg.Tree.BaseURL)
}

func TestLoadRejectsMissingDatabase(t *testing.T) {
	path := writeConfig(t, `
http:
  timeout: 5s
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "no database configured")
}

func TestLoadRejectsCredentialsWithoutTokenURL(t *testing.T) {
	path := writeConfig(t, `
tree:
  baseURL: https://db.example.test
credentials:
  apiKey: key-123
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "tokenURL is required")
}

func TestValidateAuthParamName(t *testing.T) {
	cfg := &Config{Tree: TreeConfig{BaseURL: "https://db.example.test"}}
	cfg.Credentials.AuthParamName = "bearer"
	assert.ErrorContains(t, cfg.Validate(), "authParamName")

	cfg.Credentials.AuthParamName = "auth"
	assert.NoError(t, cfg.Validate())
}
