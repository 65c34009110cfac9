package aegis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	require.Equal(t, 1, cfg.Session.MaxSessions)
	require.Equal(t, 24*time.Hour, cfg.Session.Lifetime)
	require.Equal(t, time.Hour, cfg.Token.Timeout)
	require.Equal(t, time.Duration(0), cfg.Token.ClockSkew)
	require.Equal(t, 10*time.Minute, cfg.Token.RemainingRefreshInterval)
	require.Equal(t, RefreshPolicyReject, cfg.Token.RefreshPolicy)
	require.Equal(t, "ag", cfg.Cache.KeyPrefix)
	require.NoError(t, cfg.Validate())
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("AEGIS_SESSION_MAX_SESSIONS", "5")
	t.Setenv("AEGIS_SESSION_REJECT_WHEN_FULL", "true")
	t.Setenv("AEGIS_TOKEN_TIMEOUT", "30m")
	t.Setenv("AEGIS_TOKEN_CLOCK_SKEW", "5s")
	t.Setenv("AEGIS_TOKEN_REFRESH_POLICY", "refresh_token")
	t.Setenv("AEGIS_CACHE_KEY_PREFIX", "authsvc")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)

	require.Equal(t, 5, cfg.Session.MaxSessions)
	require.True(t, cfg.Session.ExceptionIfMaximumExceeded)
	require.Equal(t, 30*time.Minute, cfg.Token.Timeout)
	require.Equal(t, 5*time.Second, cfg.Token.ClockSkew)
	require.Equal(t, RefreshPolicyRefreshToken, cfg.Token.RefreshPolicy)
	require.Equal(t, "authsvc", cfg.Cache.KeyPrefix)

	// Untouched fields keep their defaults.
	require.Equal(t, 24*time.Hour, cfg.Session.Lifetime)
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max sessions", func(c *Config) { c.Session.MaxSessions = 0 }},
		{"below unlimited", func(c *Config) { c.Session.MaxSessions = -2 }},
		{"zero session lifetime", func(c *Config) { c.Session.Lifetime = 0 }},
		{"zero token timeout", func(c *Config) { c.Token.Timeout = 0 }},
		{"negative skew", func(c *Config) { c.Token.ClockSkew = -time.Second }},
		{"unknown policy", func(c *Config) { c.Token.RefreshPolicy = "rotate-maybe" }},
		{"refresh policy without ttl", func(c *Config) {
			c.Token.RefreshPolicy = RefreshPolicyRefreshToken
			c.Token.RefreshTokenTTL = 0
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}

	unlimited := defaultConfig()
	unlimited.Session.MaxSessions = -1
	require.NoError(t, unlimited.Validate())
}

func TestCloneConfigIsolatesKeys(t *testing.T) {
	cfg := defaultConfig()
	cfg.Token.PrivateKey = []byte("secret")

	cloned := cloneConfig(cfg)
	cloned.Token.PrivateKey[0] = 'X'

	require.Equal(t, byte('s'), cfg.Token.PrivateKey[0])
}
