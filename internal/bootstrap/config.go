// Package bootstrap resolves server configuration and assembles the
// streamauth runtime: Redis, Postgres, the engine, the HTTP API, the
// optional Kafka audit sink and the optional presence sweeper.
package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/streamauth"
	"gopkg.in/yaml.v3"
)

// Config is the resolved server configuration.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration

	RedisURL    string
	PostgresDSN string
	MaxDBConns  int

	KafkaBrokers []string
	KafkaTopic   string

	TrustForwardedFor bool
	SecureCookies     bool

	LogLevel  slog.Level
	LogFormat string

	Engine streamauth.Config
}

// configFile mirrors the YAML schema. Zero values leave defaults in place.
type configFile struct {
	Server struct {
		Addr              string        `yaml:"addr"`
		ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
		TrustForwardedFor *bool         `yaml:"trust_forwarded_for"`
		SecureCookies     *bool         `yaml:"secure_cookies"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Dependencies struct {
		RedisURL    string `yaml:"redis_url"`
		PostgresDSN string `yaml:"postgres_dsn"`
		MaxDBConns  int    `yaml:"max_db_conns"`
	} `yaml:"dependencies"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
	Auth struct {
		AccessTTL        time.Duration `yaml:"access_ttl"`
		RefreshTTL       time.Duration `yaml:"refresh_ttl"`
		Issuer           string        `yaml:"issuer"`
		Audience         string        `yaml:"audience"`
		LockoutThreshold int           `yaml:"lockout_threshold"`
		LockoutDuration  time.Duration `yaml:"lockout_duration"`
		MaxDevices       int           `yaml:"max_devices"`
		BcryptCost       int           `yaml:"bcrypt_cost"`
		DefaultRole      string        `yaml:"default_role"`
	} `yaml:"auth"`
	Presence struct {
		ViewerTTL     time.Duration `yaml:"viewer_ttl"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"presence"`
	Metrics struct {
		Enabled           *bool `yaml:"enabled"`
		LatencyHistograms *bool `yaml:"latency_histograms"`
	} `yaml:"metrics"`
	Audit struct {
		Enabled    *bool `yaml:"enabled"`
		BufferSize int   `yaml:"buffer_size"`
	} `yaml:"audit"`
}

// DefaultConfig returns server defaults around [streamauth.DefaultConfig].
func DefaultConfig() Config {
	engine := streamauth.DefaultConfig()
	engine.Metrics.Enabled = true
	engine.Metrics.EnableLatencyHistograms = true
	return Config{
		HTTPAddr:        ":8080",
		ShutdownTimeout: 10 * time.Second,
		RedisURL:        "redis://localhost:6379/0",
		MaxDBConns:      20,
		KafkaTopic:      "streamauth.audit",
		LogLevel:        slog.LevelInfo,
		LogFormat:       "json",
		Engine:          engine,
	}
}

// LoadConfig resolves configuration in priority order: defaults, then the
// YAML file at path (skipped when path is empty or missing), then
// STREAMAUTH_* environment variables. Secrets come from the environment
// only.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := applyFile(&cfg, raw); err != nil {
				return Config{}, err
			}
		case !errors.Is(err, os.ErrNotExist):
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.PostgresDSN == "" {
		return Config{}, errors.New("missing STREAMAUTH_POSTGRES_DSN")
	}
	if cfg.RedisURL == "" {
		return Config{}, errors.New("missing STREAMAUTH_REDIS_URL")
	}
	if err := cfg.Engine.Validate(); err != nil {
		return Config{}, fmt.Errorf("engine config: %w", err)
	}
	return cfg, nil
}

func applyFile(cfg *Config, raw []byte) error {
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if f.Server.Addr != "" {
		cfg.HTTPAddr = f.Server.Addr
	}
	if f.Server.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = f.Server.ShutdownTimeout
	}
	if f.Server.TrustForwardedFor != nil {
		cfg.TrustForwardedFor = *f.Server.TrustForwardedFor
	}
	if f.Server.SecureCookies != nil {
		cfg.SecureCookies = *f.Server.SecureCookies
	}
	if f.Log.Level != "" {
		level, err := parseLevel(f.Log.Level)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	if f.Log.Format != "" {
		cfg.LogFormat = f.Log.Format
	}
	if f.Dependencies.RedisURL != "" {
		cfg.RedisURL = f.Dependencies.RedisURL
	}
	if f.Dependencies.PostgresDSN != "" {
		cfg.PostgresDSN = f.Dependencies.PostgresDSN
	}
	if f.Dependencies.MaxDBConns > 0 {
		cfg.MaxDBConns = f.Dependencies.MaxDBConns
	}
	if len(f.Kafka.Brokers) > 0 {
		cfg.KafkaBrokers = f.Kafka.Brokers
	}
	if f.Kafka.Topic != "" {
		cfg.KafkaTopic = f.Kafka.Topic
	}

	e := &cfg.Engine
	if f.Auth.AccessTTL > 0 {
		e.JWT.AccessTTL = f.Auth.AccessTTL
	}
	if f.Auth.RefreshTTL > 0 {
		e.JWT.RefreshTTL = f.Auth.RefreshTTL
	}
	if f.Auth.Issuer != "" {
		e.JWT.Issuer = f.Auth.Issuer
	}
	if f.Auth.Audience != "" {
		e.JWT.Audience = f.Auth.Audience
	}
	if f.Auth.LockoutThreshold > 0 {
		e.Lockout.Threshold = f.Auth.LockoutThreshold
	}
	if f.Auth.LockoutDuration > 0 {
		e.Lockout.Duration = f.Auth.LockoutDuration
	}
	if f.Auth.MaxDevices > 0 {
		e.Devices.MaxPerUser = f.Auth.MaxDevices
	}
	if f.Auth.BcryptCost > 0 {
		e.Password.BcryptCost = f.Auth.BcryptCost
	}
	if f.Auth.DefaultRole != "" {
		e.Store.DefaultRole = f.Auth.DefaultRole
	}
	if f.Presence.ViewerTTL > 0 {
		e.Presence.ViewerTTL = f.Presence.ViewerTTL
	}
	if f.Presence.SweepInterval > 0 {
		e.Presence.SweepInterval = f.Presence.SweepInterval
	}
	if f.Metrics.Enabled != nil {
		e.Metrics.Enabled = *f.Metrics.Enabled
	}
	if f.Metrics.LatencyHistograms != nil {
		e.Metrics.EnableLatencyHistograms = *f.Metrics.LatencyHistograms
	}
	if f.Audit.Enabled != nil {
		e.Audit.Enabled = *f.Audit.Enabled
	}
	if f.Audit.BufferSize > 0 {
		e.Audit.BufferSize = f.Audit.BufferSize
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.HTTPAddr = envOrDefault("STREAMAUTH_HTTP_ADDR", cfg.HTTPAddr)
	cfg.RedisURL = envOrDefault("STREAMAUTH_REDIS_URL", cfg.RedisURL)
	cfg.PostgresDSN = envOrDefault("STREAMAUTH_POSTGRES_DSN", cfg.PostgresDSN)
	cfg.MaxDBConns = envInt("STREAMAUTH_DB_MAX_CONNS", cfg.MaxDBConns)
	cfg.KafkaBrokers = envCSV("STREAMAUTH_KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = envOrDefault("STREAMAUTH_KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.TrustForwardedFor = envBool("STREAMAUTH_TRUST_FORWARDED_FOR", cfg.TrustForwardedFor)
	cfg.SecureCookies = envBool("STREAMAUTH_SECURE_COOKIES", cfg.SecureCookies)
	cfg.LogFormat = envOrDefault("STREAMAUTH_LOG_FORMAT", cfg.LogFormat)
	if raw := os.Getenv("STREAMAUTH_LOG_LEVEL"); raw != "" {
		level, err := parseLevel(raw)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}

	e := &cfg.Engine
	if v := os.Getenv("STREAMAUTH_JWT_ACCESS_SECRET"); v != "" {
		e.JWT.AccessSecret = []byte(v)
	}
	if v := os.Getenv("STREAMAUTH_JWT_REFRESH_SECRET"); v != "" {
		e.JWT.RefreshSecret = []byte(v)
	}
	e.JWT.AccessTTL = envDuration("STREAMAUTH_ACCESS_TTL", e.JWT.AccessTTL)
	e.JWT.RefreshTTL = envDuration("STREAMAUTH_REFRESH_TTL", e.JWT.RefreshTTL)
	e.Lockout.Threshold = envInt("STREAMAUTH_LOCKOUT_THRESHOLD", e.Lockout.Threshold)
	e.Lockout.Duration = envDuration("STREAMAUTH_LOCKOUT_DURATION", e.Lockout.Duration)
	e.Devices.MaxPerUser = envInt("STREAMAUTH_MAX_DEVICES", e.Devices.MaxPerUser)
	e.Password.BcryptCost = envInt("STREAMAUTH_BCRYPT_COST", e.Password.BcryptCost)
	e.Presence.ViewerTTL = envDuration("STREAMAUTH_PRESENCE_VIEWER_TTL", e.Presence.ViewerTTL)
	e.Metrics.Enabled = envBool("STREAMAUTH_METRICS_ENABLED", e.Metrics.Enabled)
	e.Audit.Enabled = envBool("STREAMAUTH_AUDIT_ENABLED", e.Audit.Enabled)
	return nil
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return fallback
	}
}

// envCSV parses comma-separated env vars and removes empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
