package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("NOTEWATCH_DB_HOST", "db.internal")
	t.Setenv("NOTEWATCH_DB_PORT", "5433")
	t.Setenv("NOTEWATCH_DB_NAME", "capture")
	t.Setenv("NOTEWATCH_DB_USER", "svc")
	t.Setenv("NOTEWATCH_DB_PASSWORD", "hunter2")
	t.Setenv("NOTEWATCH_DB_SSLMODE", "require")

	cfg := ConfigFromEnv()
	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 5433, cfg.Port)
	assert.Equal(t, "capture", cfg.Database)
	assert.Equal(t, "svc", cfg.User)
	assert.Equal(t, "hunter2", cfg.Password)
	assert.Equal(t, "require", cfg.SSLMode)
}

func TestConnectionString(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password = "p@ss word"

	s := cfg.ConnectionString()
	assert.Contains(t, s, "postgres://notewatch:")
	assert.Contains(t, s, "@localhost:5432/notewatch")
	assert.Contains(t, s, "sslmode=disable")
	assert.NotContains(t, s, "p@ss word", "password is URL-escaped")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"missing host", func(c *Config) { c.Host = "" }, "host is required"},
		{"bad port", func(c *Config) { c.Port = 0 }, "invalid database port"},
		{"missing database", func(c *Config) { c.Database = "" }, "name is required"},
		{"missing user", func(c *Config) { c.User = "" }, "user is required"},
		{"inverted pool bounds", func(c *Config) { c.MaxConns = 1; c.MinConns = 5 }, "must be >="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMigrationsAreOrdered(t *testing.T) {
	require.NotEmpty(t, Migrations)
	for i := 1; i < len(Migrations); i++ {
		assert.Greater(t, Migrations[i].Version, Migrations[i-1].Version)
	}
	for _, m := range Migrations {
		assert.NotEmpty(t, m.Version)
		assert.NotEmpty(t, m.SQL)
	}
}
