package aegis

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aegisauth/aegis/internal/events"
	"github.com/aegisauth/aegis/internal/metrics"
	"github.com/aegisauth/aegis/session"
	"github.com/aegisauth/aegis/token"
)

// Builder assembles an [Engine]. A Builder is single-use: Build consumes it.
type Builder struct {
	config      Config
	redis       redis.UniversalClient
	logger      *zap.Logger
	sink        events.Sink
	fingerprint FingerprintComparator

	built bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the shared Redis client backing every store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the engine logger. Defaults to [zap.NewNop].
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithEventSink enables lifecycle events and routes them to sink.
func (b *Builder) WithEventSink(sink events.Sink) *Builder {
	b.sink = sink
	b.config.Events.Enabled = true
	return b
}

// WithFingerprintComparator overrides the constant-time digest comparison
// used by [Engine.VerifyFingerprint].
func (b *Builder) WithFingerprintComparator(cmp FingerprintComparator) *Builder {
	b.fingerprint = cmp
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the engine. The Builder must
// not be reused afterwards.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	codec, err := token.NewCodec(token.Config{
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
		PublicKey:     cloneBytes(cfg.Token.PublicKey),
		Issuer:        cfg.Token.Issuer,
	})
	if err != nil {
		return nil, err
	}

	registry := session.NewRegistry(b.redis, cfg.Cache.KeyPrefix, cfg.Session.Lifetime)

	fingerprint := b.fingerprint
	if fingerprint == nil {
		fingerprint = constantTimeComparator{}
	}

	engine := &Engine{
		config:      cfg,
		logger:      logger,
		registry:    registry,
		controller:  session.NewController(registry),
		fixation:    session.NewFixationGuard(registry, logger),
		codec:       codec,
		revocation:  newRevocationStore(b.redis, cfg.Cache.KeyPrefix),
		refresh:     newRefreshStore(b.redis, cfg.Cache.KeyPrefix),
		fingerprint: fingerprint,
		metrics:     metrics.New(metrics.Config{Enabled: cfg.Metrics.Enabled}),
		dispatcher: events.NewDispatcher(events.Config{
			Enabled:    cfg.Events.Enabled,
			BufferSize: cfg.Events.BufferSize,
			DropIfFull: cfg.Events.DropIfFull,
		}, b.sink),
	}

	b.built = true

	return engine, nil
}
