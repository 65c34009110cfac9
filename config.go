package aegis

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/aegisauth/aegis/internal/flows"
)

// RefreshPolicy selects what Renew does with an eligible token.
type RefreshPolicy string

const (
	// RefreshPolicyReject never mints a successor; expired tokens stay
	// rejected and the caller must force full re-authentication.
	RefreshPolicyReject RefreshPolicy = "reject"
	// RefreshPolicyAutoRenew mints a successor in place once the token
	// enters the renewal window.
	RefreshPolicyAutoRenew RefreshPolicy = "auto_renew"
	// RefreshPolicyRefreshToken requires a refresh id; its binding is
	// atomically rotated to the successor's jti.
	RefreshPolicyRefreshToken RefreshPolicy = "refresh_token"
)

// Config carries all engine settings. Instances are configured during
// initialization and treated as immutable afterwards.
type Config struct {
	Session SessionConfig
	Token   TokenConfig
	Cache   CacheConfig
	Events  EventsConfig
	Metrics MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig bounds and times the per-principal session registry.
type SessionConfig struct {
	// MaxSessions caps simultaneously active sessions per principal.
	// -1 means unlimited.
	MaxSessions int `env:"AEGIS_SESSION_MAX_SESSIONS"`

	// ExceptionIfMaximumExceeded refuses a login at the cap instead of
	// evicting the least-recently-used sessions.
	ExceptionIfMaximumExceeded bool `env:"AEGIS_SESSION_REJECT_WHEN_FULL"`

	// Lifetime is the per-session TTL in the registry.
	Lifetime time.Duration `env:"AEGIS_SESSION_LIFETIME"`
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig drives the token lifecycle state machine.
type TokenConfig struct {
	SigningMethod string `env:"AEGIS_TOKEN_SIGNING_METHOD"` // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string `env:"AEGIS_TOKEN_ISSUER"`

	// Timeout is the token lifetime.
	Timeout time.Duration `env:"AEGIS_TOKEN_TIMEOUT"`

	// ClockSkew is grace time after nominal expiry during which a token
	// still validates.
	ClockSkew time.Duration `env:"AEGIS_TOKEN_CLOCK_SKEW"`

	// RemainingRefreshInterval opens the renewal window: a token becomes
	// renew-eligible when its remaining effective lifetime drops below it.
	RemainingRefreshInterval time.Duration `env:"AEGIS_TOKEN_REFRESH_INTERVAL"`

	// AlwaysRefresh rotates on every refresh-token renewal, even when the
	// token is not yet inside the renewal window.
	AlwaysRefresh bool `env:"AEGIS_TOKEN_ALWAYS_REFRESH"`

	RefreshPolicy RefreshPolicy `env:"AEGIS_TOKEN_REFRESH_POLICY"`

	// RefreshTokenTTL is the refresh binding's lifetime, independent of
	// the access token's.
	RefreshTokenTTL time.Duration `env:"AEGIS_TOKEN_REFRESH_TTL"`
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheConfig namespaces all Redis keys.
type CacheConfig struct {
	KeyPrefix string `env:"AEGIS_CACHE_KEY_PREFIX"`
}

// EventsConfig controls the asynchronous lifecycle-event dispatcher.
type EventsConfig struct {
	Enabled    bool `env:"AEGIS_EVENTS_ENABLED"`
	BufferSize int  `env:"AEGIS_EVENTS_BUFFER_SIZE"`
	DropIfFull bool `env:"AEGIS_EVENTS_DROP_IF_FULL"`
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool `env:"AEGIS_METRICS_ENABLED"`
}

// DefaultConfig returns the documented defaults: one session per principal,
// one-hour tokens, zero clock skew, reject renewal policy.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			MaxSessions: 1,
			Lifetime:    24 * time.Hour,
		},
		Token: TokenConfig{
			SigningMethod:            "ed25519",
			Timeout:                  time.Hour,
			ClockSkew:                0,
			RemainingRefreshInterval: 10 * time.Minute,
			RefreshPolicy:            RefreshPolicyReject,
			RefreshTokenTTL:          720 * time.Hour,
		},
		Cache: CacheConfig{
			KeyPrefix: "ag",
		},
		Events: EventsConfig{
			BufferSize: 256,
		},
	}
}

// ConfigFromEnv returns the default configuration overridden by AEGIS_*
// environment variables. Signing keys are never read from the environment;
// set them on the returned Config.
func ConfigFromEnv() (Config, error) {
	cfg := defaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot honor.
func (c *Config) Validate() error {
	if c.Session.MaxSessions == 0 || c.Session.MaxSessions < -1 {
		return errors.New("session MaxSessions must be -1 or >= 1")
	}
	if c.Session.Lifetime <= 0 {
		return errors.New("session Lifetime must be positive")
	}
	if c.Token.Timeout <= 0 {
		return errors.New("token Timeout must be positive")
	}
	if c.Token.ClockSkew < 0 {
		return errors.New("token ClockSkew must not be negative")
	}
	if c.Token.RemainingRefreshInterval < 0 {
		return errors.New("token RemainingRefreshInterval must not be negative")
	}
	switch c.Token.RefreshPolicy {
	case RefreshPolicyReject, RefreshPolicyAutoRenew:
	case RefreshPolicyRefreshToken:
		if c.Token.RefreshTokenTTL <= 0 {
			return errors.New("refresh_token policy requires a positive RefreshTokenTTL")
		}
	default:
		return errors.New("unknown RefreshPolicy")
	}
	return nil
}

func (p RefreshPolicy) flowPolicy() flows.RenewPolicy {
	switch p {
	case RefreshPolicyAutoRenew:
		return flows.PolicyAutoRenew
	case RefreshPolicyRefreshToken:
		return flows.PolicyRefreshToken
	default:
		return flows.PolicyReject
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
