package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconops/vigil/pkg/config"
	"github.com/beaconops/vigil/pkg/token"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "LOG_LEVEL", "STEP_TIMEOUT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg := config.Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.StepTimeout)
	assert.Equal(t, 10, cfg.RateLimitRPS)
	assert.Equal(t, 20, cfg.RateLimitBurst)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STEP_TIMEOUT", "30s")
	t.Setenv("RATE_LIMIT_RPS", "50")
	t.Setenv("SQLITE_PATH", "/var/lib/vigil/consents.db")

	cfg := config.Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.StepTimeout)
	assert.Equal(t, 50, cfg.RateLimitRPS)
	assert.Equal(t, "/var/lib/vigil/consents.db", cfg.SQLitePath)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("STEP_TIMEOUT", "soon")
	t.Setenv("RATE_LIMIT_RPS", "many")

	cfg := config.Load()
	assert.Equal(t, 10*time.Second, cfg.StepTimeout)
	assert.Equal(t, 10, cfg.RateLimitRPS)
}

func TestLoadScopePolicy_EmptyPathUsesDefault(t *testing.T) {
	policy, err := config.LoadScopePolicy("")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, policy.MaxTTL)
	assert.Contains(t, policy.Allowed[token.AgentScheduling], "calendar.write")
}

func TestLoadScopePolicy_FromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
max_ttl: 15m
allowed:
  scheduling:
    - calendar.read
  notification:
    - notify.send
    - contacts.read
`), 0o600))

	policy, err := config.LoadScopePolicy(path)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, policy.MaxTTL)
	assert.Equal(t, []string{"calendar.read"}, policy.Allowed[token.AgentScheduling])
	assert.Equal(t, []string{"notify.send", "contacts.read"}, policy.Allowed[token.AgentNotification])
	assert.Empty(t, policy.Allowed[token.AgentDetection])
}

func TestLoadScopePolicy_BadTTL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_ttl: soon\n"), 0o600))

	_, err := config.LoadScopePolicy(path)
	assert.Error(t, err)
}

func TestLoadScopePolicy_MissingFile(t *testing.T) {
	_, err := config.LoadScopePolicy("/nonexistent/policy.yaml")
	assert.Error(t, err)
}
