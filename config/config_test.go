package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/notewatch/pkg/db"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, DefaultBotName, cfg.Lifecycle.BotName)
	assert.Equal(t, DefaultTickInterval, cfg.TickInterval)
	assert.Equal(t, DefaultLookahead, cfg.Lookahead)
	assert.Nil(t, cfg.Database)
	assert.NoError(t, cfg.Validate())
}

func TestConfigDirEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("NOTEWATCH_CONFIG_DIR", dir)

	got, err := ConfigDir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	path, err := ConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultConfigFile), path)
}

func TestLoadConfigDefaultsWhenNoFile(t *testing.T) {
	t.Setenv("NOTEWATCH_CONFIG_DIR", t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultTickInterval, cfg.TickInterval)
	assert.Equal(t, DefaultBotName, cfg.Lifecycle.BotName)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("NOTEWATCH_CONFIG_DIR", dir)

	content := `lifecycle:
  grant_id: grant_1
  bot_name: Scribe
redis:
  addr: localhost:6379
tick_interval: 30s
lookahead: 12h
metrics_addr: ":9090"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(content), 0600))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "grant_1", cfg.Lifecycle.GrantID)
	assert.Equal(t, "Scribe", cfg.Lifecycle.BotName)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 30*time.Second, cfg.TickInterval)
	assert.Equal(t, 12*time.Hour, cfg.Lookahead)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("NOTEWATCH_CONFIG_DIR", dir)

	content := `lifecycle:
  grant_id: from_file
tick_interval: 30s
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(content), 0600))

	t.Setenv("NOTEWATCH_GRANT_ID", "from_env")
	t.Setenv("NOTEWATCH_TICK_INTERVAL", "90s")
	t.Setenv("NOTEWATCH_DEBUG", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "from_env", cfg.Lifecycle.GrantID)
	assert.Equal(t, 90*time.Second, cfg.TickInterval)
	assert.True(t, cfg.Debug)
}

func TestLoadConfigDatabaseFromEnv(t *testing.T) {
	t.Setenv("NOTEWATCH_CONFIG_DIR", t.TempDir())
	t.Setenv("NOTEWATCH_DB_HOST", "db.internal")
	t.Setenv("NOTEWATCH_DB_PORT", "5433")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg.Database)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("NOTEWATCH_CONFIG_DIR", dir)

	content := "tick_interval: soon\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(content), 0600))

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "tick_interval")
}

func TestSaveConfigRoundTrip(t *testing.T) {
	t.Setenv("NOTEWATCH_CONFIG_DIR", t.TempDir())

	cfg := DefaultConfig()
	cfg.Lifecycle.GrantID = "grant_1"
	cfg.TickInterval = 45 * time.Second
	cfg.Database = &db.Config{Host: "localhost", Port: 5432, Database: "notewatch", User: "notewatch"}
	require.NoError(t, SaveConfig(cfg))

	path, err := ConfigPath()
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "grant_1", loaded.Lifecycle.GrantID)
	assert.Equal(t, 45*time.Second, loaded.TickInterval)
	require.NotNil(t, loaded.Database)
	assert.Equal(t, "localhost", loaded.Database.Host)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TickInterval = 0
	assert.ErrorContains(t, cfg.Validate(), "tick_interval")

	cfg = DefaultConfig()
	cfg.Lookahead = -time.Hour
	assert.ErrorContains(t, cfg.Validate(), "lookahead")

	cfg = DefaultConfig()
	cfg.Database = &db.Config{}
	assert.ErrorContains(t, cfg.Validate(), "database")
}
