package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultStaticDir, cfg.StaticDir)
	assert.Equal(t, "licenses.txt", cfg.LicenseFile)
	assert.Equal(t, SessionStoreMemory, cfg.SessionStore)
	assert.Equal(t, 24*time.Hour, cfg.SessionMaxAge)
	assert.Equal(t, "webhelp_session", cfg.CookieName)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Metrics)
	assert.Empty(t, cfg.SessionSecrets)
	assert.Equal(t, "localhost", cfg.DB.Host)
}

func TestLoadFromEnv(t *testing.T) {
	secret := strings.Repeat("s", MinSessionSecretLen)
	previous := strings.Repeat("p", MinSessionSecretLen)

	t.Setenv("WEBHELP_PORT", "9090")
	t.Setenv("WEBHELP_STATIC_DIR", "/srv/help")
	t.Setenv("WEBHELP_SESSION_SECRET", secret+","+previous)
	t.Setenv("WEBHELP_SESSION_MAX_AGE", "2h")
	t.Setenv("WEBHELP_SESSION_STORE", "postgres")
	t.Setenv("WEBHELP_DB_HOST", "db.internal")
	t.Setenv("WEBHELP_DB_PASS", "hunter2")
	t.Setenv("WEBHELP_METRICS", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "/srv/help", cfg.StaticDir)
	assert.Equal(t, []string{secret, previous}, cfg.SessionSecrets)
	assert.Equal(t, 2*time.Hour, cfg.SessionMaxAge)
	assert.Equal(t, SessionStorePostgres, cfg.SessionStore)
	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, "hunter2", cfg.DB.Password)
	assert.True(t, cfg.Metrics)

	pairs := cfg.SessionKeyPairs()
	require.Len(t, pairs, 4)
	assert.Equal(t, []byte(secret), pairs[0])
	assert.Nil(t, pairs[1])
	assert.Equal(t, []byte(previous), pairs[2])
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:          DefaultPort,
			StaticDir:     DefaultStaticDir,
			LicenseFile:   "licenses.txt",
			SessionStore:  SessionStoreMemory,
			SessionMaxAge: time.Hour,
			CookieName:    "webhelp_session",
			LogLevel:      "info",
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"port too low", func(c *Config) { c.Port = 0 }, "port"},
		{"port too high", func(c *Config) { c.Port = 70000 }, "port"},
		{"empty static dir", func(c *Config) { c.StaticDir = "" }, "static directory"},
		{"empty license file", func(c *Config) { c.LicenseFile = "" }, "license file"},
		{"empty cookie name", func(c *Config) { c.CookieName = "" }, "cookie name"},
		{"short max age", func(c *Config) { c.SessionMaxAge = time.Millisecond }, "max age"},
		{"short secret", func(c *Config) { c.SessionSecrets = []string{"short"} }, "session secrets"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
		{"unknown store", func(c *Config) { c.SessionStore = "redis" }, "unsupported session store"},
		{"postgres without password", func(c *Config) { c.SessionStore = SessionStorePostgres }, "WEBHELP_DB_PASS"},
		{"postgres without secret", func(c *Config) {
			c.SessionStore = SessionStorePostgres
			c.DB.Password = "hunter2"
		}, "WEBHELP_SESSION_SECRET"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := valid()
			test.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.errMsg)
		})
	}
}
