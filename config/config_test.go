package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/legit-games/eveauth/models"
)

func withConfigDir(t *testing.T, files map[string]string) {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	t.Setenv("CONFIG_DIR", dir)
	t.Setenv("APP_ENV", "test")
}

func TestLoadDefaultsAndEnv(t *testing.T) {
	withConfigDir(t, nil)
	t.Setenv("EVEAUTH_KIU__SECRET", "0123456789abcdef0123")
	t.Setenv("EVEAUTH_REFRESHER__WORKERS", "2")
	t.Setenv("EVEAUTH_SIGNING__SKEW", "30s")

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "0123456789abcdef0123", c.Kiu.Secret)
	require.Equal(t, 2, c.Refresher.Workers)
	require.Equal(t, 60, c.Refresher.Interval)
	require.Equal(t, 30*time.Second, c.Signing.Skew)
	require.Equal(t, []string{"core.application.authorize.*"}, c.DefaultPermissions)
	require.Equal(t, "test", c.Env)
}

func TestLoadFileLayers(t *testing.T) {
	withConfigDir(t, map[string]string{
		"config.yaml": `
kiu:
  secret: base-secret-0123456789
recommended_key_mask: 8
recommended_key_kind: Account
login_history_days: 7
`,
		"config.test.yaml": `
recommended_key_mask: 33554432
`,
	})

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "base-secret-0123456789", c.Kiu.Secret)
	require.Equal(t, int64(33554432), c.RecommendedKeyMask)
	require.Equal(t, models.KeyPolicy{RecommendedMask: 33554432, RecommendedKind: models.KeyAccount}, c.KeyPolicy())
	require.Equal(t, 7*24*time.Hour, c.LoginHistoryTTL())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"defaults with secret", func(c *Config) {}, true},
		{"missing secret", func(c *Config) { c.Kiu.Secret = "" }, false},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, false},
		{"more workers than buckets", func(c *Config) { c.Refresher.Workers = 61 }, false},
		{"bad key kind", func(c *Config) { c.RecommendedKeyKind = "Alliance" }, false},
		{"smtp without host", func(c *Config) { c.Mail.Provider = "smtp" }, false},
		{"smtp with host", func(c *Config) {
			c.Mail.Provider = "smtp"
			c.Mail.SMTP.Host = "mail.example.com"
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			c.Kiu.Secret = "0123456789abcdef"
			tt.mutate(&c)
			err := c.Validate()
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}
