package streamauth

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Config defines the full engine policy. Build it from [DefaultConfig],
// adjust the fields you need, and hand it to [Builder.WithConfig]. The
// engine keeps a private copy; later changes to the value have no effect.
type Config struct {
	JWT      JWTConfig
	Lockout  LockoutConfig
	Devices  DeviceConfig
	Presence PresenceConfig
	Password PasswordConfig
	Security SecurityConfig
	Store    StoreConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls the two token classes. Access and refresh tokens are
// both HS256 but must use distinct secrets.
type JWTConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
}

// maxAccessTTL bounds how long a revoked session's access token can outlive
// its refresh token.
const maxAccessTTL = time.Hour

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls the failed-attempt state machine. The failure
// count is kept for CounterTTL after the most recent failure; an account
// that sees no failure for that long starts again from zero.
type LockoutConfig struct {
	Threshold  int
	Duration   time.Duration
	CounterTTL time.Duration
	KeyPrefix  string
}

/*
====================================
DEVICE CONFIG
====================================
*/

// DeviceConfig controls the per-user device quota.
type DeviceConfig struct {
	MaxPerUser        int
	DefaultDeviceType DeviceType
}

/*
====================================
PRESENCE CONFIG
====================================
*/

// PresenceConfig controls viewer sets and broadcasts. ViewerTTL > 0 turns
// on heartbeat mode; SweepInterval is only used by the sweeper.
type PresenceConfig struct {
	KeyPrefix       string
	ChannelPrefix   string
	ViewerTTL       time.Duration
	SweepInterval   time.Duration
	MaxContentIDLen int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig controls hashing. New hashes are bcrypt; when
// AcceptLegacyArgon2 is set, Argon2id hashes still verify and are upgraded
// on the next successful login if UpgradeOnLogin is set.
type PasswordConfig struct {
	BcryptCost         int
	UpgradeOnLogin     bool
	AcceptLegacyArgon2 bool
	Argon2Memory       uint32
	Argon2Time         uint32
	Argon2Parallelism  uint8
	Argon2SaltLength   uint32
	Argon2KeyLength    uint32
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig controls request throttles.
type SecurityConfig struct {
	EnableIPThrottle      bool
	MaxLoginAttemptsPerIP int
	LoginWindow           time.Duration
	EnableRefreshThrottle bool
	MaxRefreshAttempts    int
	RefreshWindow         time.Duration
	RateLimitPrefix       string
	MaxClockSkew          time.Duration
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig bounds every Redis and durable store call.
type StoreConfig struct {
	OperationTimeout time.Duration
	RevocationPrefix string
	DefaultRole      string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters and histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the reference policy: lock after 5 failures for 30
// minutes, 15 minute access tokens, 7 day refresh tokens, 5 devices per
// user, bcrypt cost 12 and a 2 second store timeout. Secrets are left empty
// and must be set before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:    15 * time.Minute,
			RefreshTTL:   7 * 24 * time.Hour,
			Issuer:       "streamauth",
			Leeway:       30 * time.Second,
			MaxFutureIAT: 10 * time.Minute,
		},
		Lockout: LockoutConfig{
			Threshold:  5,
			Duration:   30 * time.Minute,
			CounterTTL: 24 * time.Hour,
			KeyPrefix:  "lockout:",
		},
		Devices: DeviceConfig{
			MaxPerUser:        5,
			DefaultDeviceType: DeviceWeb,
		},
		Presence: PresenceConfig{
			KeyPrefix:       "presence:",
			ChannelPrefix:   "viewers:",
			SweepInterval:   30 * time.Second,
			MaxContentIDLen: 128,
		},
		Password: PasswordConfig{
			BcryptCost:         12,
			UpgradeOnLogin:     true,
			AcceptLegacyArgon2: false,
			Argon2Memory:       65536,
			Argon2Time:         3,
			Argon2Parallelism:  2,
			Argon2SaltLength:   16,
			Argon2KeyLength:    32,
		},
		Security: SecurityConfig{
			EnableIPThrottle:      true,
			MaxLoginAttemptsPerIP: 20,
			LoginWindow:           15 * time.Minute,
			EnableRefreshThrottle: true,
			MaxRefreshAttempts:    60,
			RefreshWindow:         15 * time.Minute,
			RateLimitPrefix:       "ratelimit:",
			MaxClockSkew:          30 * time.Second,
		},
		Store: StoreConfig{
			OperationTimeout: 2 * time.Second,
			RevocationPrefix: "revoked:",
			DefaultRole:      "viewer",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects unsafe or inconsistent settings. Build calls it; callers
// loading configuration from files should call it early to fail at startup.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.AccessSecret) < 32 {
		return errors.New("JWT AccessSecret must be at least 32 bytes")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		return errors.New("JWT RefreshSecret must be at least 32 bytes")
	}
	if string(c.JWT.AccessSecret) == string(c.JWT.RefreshSecret) {
		return errors.New("JWT AccessSecret and RefreshSecret must differ")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.AccessTTL > maxAccessTTL {
		return errors.New("JWT AccessTTL must be <= 1h")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be > AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if c.JWT.MaxFutureIAT < 0 {
		return errors.New("JWT MaxFutureIAT must be >= 0")
	}
	if c.JWT.Audience != "" && strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Audience must not be blank")
	}

	// Lockout
	if c.Lockout.Threshold < 1 {
		return errors.New("Lockout Threshold must be >= 1")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}
	if c.Lockout.CounterTTL < 0 {
		return errors.New("Lockout CounterTTL must be >= 0")
	}

	// Devices
	if c.Devices.MaxPerUser < 1 {
		return errors.New("Devices MaxPerUser must be >= 1")
	}
	switch c.Devices.DefaultDeviceType {
	case DeviceMobile, DeviceWeb, DeviceTV, DeviceTablet, DeviceOther:
	default:
		return errors.New("Devices DefaultDeviceType is not a known device type")
	}

	// Presence
	if c.Presence.ViewerTTL < 0 {
		return errors.New("Presence ViewerTTL must be >= 0")
	}
	if c.Presence.ViewerTTL > 0 && c.Presence.SweepInterval <= 0 {
		return errors.New("Presence SweepInterval must be > 0 when ViewerTTL is set")
	}
	if c.Presence.MaxContentIDLen < 1 {
		return errors.New("Presence MaxContentIDLen must be >= 1")
	}

	// Password
	if c.Password.BcryptCost < 12 || c.Password.BcryptCost > bcrypt.MaxCost {
		return errors.New("Password BcryptCost must be between 12 and 31")
	}
	if c.Password.AcceptLegacyArgon2 {
		if c.Password.Argon2Memory < 8*1024 {
			return errors.New("Password Argon2Memory must be >= 8192 KB")
		}
		if c.Password.Argon2Time < 1 || c.Password.Argon2Parallelism < 1 {
			return errors.New("Password Argon2Time and Argon2Parallelism must be >= 1")
		}
		if c.Password.Argon2SaltLength < 16 || c.Password.Argon2KeyLength < 16 {
			return errors.New("Password Argon2 salt and key length must be >= 16")
		}
	}

	// Security
	if c.Security.EnableIPThrottle {
		if c.Security.MaxLoginAttemptsPerIP < 1 {
			return errors.New("Security MaxLoginAttemptsPerIP must be >= 1 when IP throttle is enabled")
		}
		if c.Security.LoginWindow <= 0 {
			return errors.New("Security LoginWindow must be > 0 when IP throttle is enabled")
		}
	}
	if c.Security.EnableRefreshThrottle {
		if c.Security.MaxRefreshAttempts < 1 {
			return errors.New("Security MaxRefreshAttempts must be >= 1 when refresh throttle is enabled")
		}
		if c.Security.RefreshWindow <= 0 {
			return errors.New("Security RefreshWindow must be > 0 when refresh throttle is enabled")
		}
	}
	if c.Security.MaxClockSkew < 0 {
		return errors.New("Security MaxClockSkew must be >= 0")
	}

	// Store
	if c.Store.OperationTimeout <= 0 {
		return errors.New("Store OperationTimeout must be > 0")
	}
	if strings.TrimSpace(c.Store.DefaultRole) == "" {
		return errors.New("Store DefaultRole must not be empty")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
