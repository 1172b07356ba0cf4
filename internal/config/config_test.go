package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.servicetitan.io", cfg.ServiceTitan.BaseURL)
	assert.Equal(t, "https://auth.servicetitan.io/connect/token", cfg.ServiceTitan.AuthURL)
	assert.InDelta(t, 5.0, cfg.ServiceTitan.RPS, 0.001)
	assert.Equal(t, 14, cfg.Sync.HorizonDays)
	assert.Equal(t, 30, cfg.Sync.LookbackDays)
	assert.Equal(t, 10, cfg.Sync.EnrichTimeoutSecs)
	assert.Equal(t, 4, cfg.Sync.EnrichWorkers)
	assert.Equal(t, "America/Chicago", cfg.Sync.Timezone)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
servicetitan:
  client_id: cid
  client_secret: csec
  app_key: ak
  tenant_id: "12345"
sync:
  horizon_days: 7
  timezone: America/New_York
server:
  port: 9090
  shared_secret: sekrit
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.NoError(t, cfg.ServiceTitan.Validate())
	assert.Equal(t, "12345", cfg.ServiceTitan.TenantID)
	assert.Equal(t, 7, cfg.Sync.HorizonDays)
	assert.Equal(t, 30, cfg.Sync.LookbackDays, "unset keys keep defaults")
	assert.Equal(t, "America/New_York", cfg.Sync.Timezone)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sekrit", cfg.Server.SharedSecret)
	assert.Equal(t, "debug", cfg.Log.Level)

	loc, err := cfg.Sync.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())
}

func TestValidate_MissingCredentials(t *testing.T) {
	err := ServiceTitanConfig{ClientID: "cid"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")
}

func TestInitLogger(t *testing.T) {
	assert.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "nope", Format: "json"}))
}
