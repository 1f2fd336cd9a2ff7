package streamauth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/streamauth/internal/audit"
	"github.com/MrEthical07/streamauth/internal/limiters"
	"github.com/MrEthical07/streamauth/internal/metrics"
	"github.com/MrEthical07/streamauth/internal/rate"
	"github.com/MrEthical07/streamauth/internal/stores"
	"github.com/MrEthical07/streamauth/jwt"
	"github.com/MrEthical07/streamauth/password"
	"github.com/MrEthical07/streamauth/presence"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder is single use: Build may be
// called once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userStore   UserStore
	deviceStore DeviceStore
	auditSink   AuditSink
	logger      *slog.Logger
	now         func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The value is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the shared fast store. A single node client, a cluster
// client or a failover client may be used; presence keys carry hash tags so
// per-content keys stay in one slot.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the durable user store.
func (b *Builder) WithUserStore(s UserStore) *Builder {
	b.userStore = s
	return b
}

// WithDeviceStore sets the durable device store.
func (b *Builder) WithDeviceStore(s DeviceStore) *Builder {
	b.deviceStore = s
	return b
}

// WithAuditSink sets the audit sink and enables the audit dispatcher.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithLogger sets the structured logger. The default discards output.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the engine clock. It is meant for tests that need to
// move past lock windows or token expiry without sleeping.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validate and refresh latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
//
// Build returns an error when the configuration is unsafe or a required
// dependency is missing. It performs no I/O.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.userStore == nil {
		return nil, errors.New("user store required")
	}
	if b.deviceStore == nil {
		return nil, errors.New("device store required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	engine := &Engine{
		config:  cloneConfig(cfg),
		redis:   b.redis,
		users:   b.userStore,
		devices: b.deviceStore,
		now:     now,
		logger:  logger.With("module", "streamauth"),
	}

	// -------- JWT --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessSecret:  cloneBytes(cfg.JWT.AccessSecret),
		RefreshSecret: cloneBytes(cfg.JWT.RefreshSecret),
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		MaxFutureIAT:  cfg.JWT.MaxFutureIAT,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	// -------- PASSWORD --------
	primary, err := password.NewBcrypt(cfg.Password.BcryptCost)
	if err != nil {
		return nil, err
	}
	var legacy *password.Argon2
	if cfg.Password.AcceptLegacyArgon2 {
		legacy, err = password.NewArgon2(password.Argon2Config{
			Memory:      cfg.Password.Argon2Memory,
			Time:        cfg.Password.Argon2Time,
			Parallelism: cfg.Password.Argon2Parallelism,
			SaltLength:  cfg.Password.Argon2SaltLength,
			KeyLength:   cfg.Password.Argon2KeyLength,
		})
		if err != nil {
			return nil, err
		}
	}
	engine.passwords = password.NewMulti(primary, legacy)

	// -------- FAST STORE --------
	engine.lockout = limiters.NewLockoutLimiter(b.redis, limiters.LockoutConfig{
		Threshold:  cfg.Lockout.Threshold,
		Duration:   cfg.Lockout.Duration,
		CounterTTL: cfg.Lockout.CounterTTL,
		KeyPrefix:  cfg.Lockout.KeyPrefix,
	})
	engine.rateLimiter = rate.New(b.redis, rate.Config{
		EnableIPThrottle:      cfg.Security.EnableIPThrottle,
		MaxLoginAttemptsPerIP: cfg.Security.MaxLoginAttemptsPerIP,
		LoginWindow:           cfg.Security.LoginWindow,
		EnableRefreshThrottle: cfg.Security.EnableRefreshThrottle,
		MaxRefreshAttempts:    cfg.Security.MaxRefreshAttempts,
		RefreshWindow:         cfg.Security.RefreshWindow,
		KeyPrefix:             cfg.Security.RateLimitPrefix,
	})
	engine.ledger = stores.NewRevocationLedger(b.redis, cfg.Store.RevocationPrefix)

	// -------- PRESENCE --------
	engine.broadcaster = presence.NewRedisBroadcaster(b.redis, cfg.Presence.ChannelPrefix)
	engine.tracker = presence.NewTracker(b.redis, presence.Config{
		KeyPrefix: cfg.Presence.KeyPrefix,
		ViewerTTL: cfg.Presence.ViewerTTL,
	}, engine.broadcaster,
		presence.WithClock(now),
		presence.WithBroadcastErrorHandler(engine.onBroadcastError),
	)

	// -------- AUDIT / METRICS --------
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = metrics.New(metrics.Config{
		Enabled:       cfg.Metrics.Enabled,
		EnableLatency: cfg.Metrics.EnableLatencyHistograms,
	})

	engine.initFlowDeps()

	b.built = true

	return engine, nil
}
