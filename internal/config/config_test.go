package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.ProviderTimeout())
	assert.Equal(t, 300*time.Second, cfg.DefaultTTL())
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 9090
pipeline:
  provider_timeout_ms: 2500
  default_ttl_seconds: 60
providers:
  github_token: file-token
cache:
  redis_addr: localhost:6379
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2500*time.Millisecond, cfg.ProviderTimeout())
	assert.Equal(t, time.Minute, cfg.DefaultTTL())
	assert.Equal(t, "file-token", cfg.Providers.GitHubToken)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\nproviders:\n  github_token: file-token\n"), 0o600))

	t.Setenv("PORT", "7070")
	t.Setenv("GITHUB_TOKEN", "env-token")
	t.Setenv("DATABASE_URL", "postgres://localhost/trust")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "env-token", cfg.Providers.GitHubToken)
	assert.Equal(t, "postgres://localhost/trust", cfg.Database.URL)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
