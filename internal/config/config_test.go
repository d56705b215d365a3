package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "telemq.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaultsForOmittedFields(t *testing.T) {
	path := writeConfigFile(t, `
listeners:
  tcp: ":1884"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":1884", cfg.Listeners.TCP)
	assert.Equal(t, "/mqtt", cfg.Listeners.WSPath)
	assert.Equal(t, "file", cfg.Store.Backend)
	assert.Equal(t, "./session_state_store.json", cfg.Store.Path)
	assert.Equal(t, "file", cfg.Auth.Source)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
store:
  backend: redis
  redis_url: redis://localhost:6379/0
  redis_key: telemq:sessions
auth:
  source: http
  http_endpoint: https://auth.example.com/connect
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Store.RedisURL)
	assert.Equal(t, "http", cfg.Auth.Source)
	assert.Equal(t, "https://auth.example.com/connect", cfg.Auth.HTTPEndpoint)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAMLReturnsError(t *testing.T) {
	path := writeConfigFile(t, "listeners: [this is not a mapping")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestParseFlagsReadsConfigFlag(t *testing.T) {
	path := writeConfigFile(t, `
listeners:
  tcp: ":1885"
`)

	cfg, err := ParseFlags([]string{"-config", path})
	require.NoError(t, err)
	assert.Equal(t, ":1885", cfg.Listeners.TCP)
}
