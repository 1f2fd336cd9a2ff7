package bootstrap

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	accessSecret  = "access-secret-0123456789abcdefghijkl"
	refreshSecret = "refresh-secret-0123456789abcdefghijk"
)

func setSecrets(t *testing.T) {
	t.Setenv("STREAMAUTH_JWT_ACCESS_SECRET", accessSecret)
	t.Setenv("STREAMAUTH_JWT_REFRESH_SECRET", refreshSecret)
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "streamauth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaultsWithEnvOnly(t *testing.T) {
	setSecrets(t)
	t.Setenv("STREAMAUTH_POSTGRES_DSN", "postgres://localhost/streamauth")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, 5, cfg.Engine.Lockout.Threshold)
	assert.Equal(t, 30*time.Minute, cfg.Engine.Lockout.Duration)
	assert.Equal(t, 15*time.Minute, cfg.Engine.JWT.AccessTTL)
	assert.Equal(t, 5, cfg.Engine.Devices.MaxPerUser)
	assert.True(t, cfg.Engine.Metrics.Enabled)
	assert.Equal(t, []byte(accessSecret), cfg.Engine.JWT.AccessSecret)
}

func TestLoadConfigFileThenEnvOverride(t *testing.T) {
	setSecrets(t)
	path := writeFile(t, `
server:
  addr: ":9090"
  shutdown_timeout: 3s
  trust_forwarded_for: true
log:
  level: debug
  format: text
dependencies:
  redis_url: redis://cache:6379/1
  postgres_dsn: postgres://db/streamauth
kafka:
  brokers: ["k1:9092", "k2:9092"]
auth:
  access_ttl: 10m
  max_devices: 3
  lockout_duration: 45m
presence:
  viewer_ttl: 2m
  sweep_interval: 20s
metrics:
  latency_histograms: false
`)
	t.Setenv("STREAMAUTH_MAX_DEVICES", "4")
	t.Setenv("STREAMAUTH_KAFKA_BROKERS", "k3:9092, ,k4:9092")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.TrustForwardedFor)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "redis://cache:6379/1", cfg.RedisURL)
	assert.Equal(t, []string{"k3:9092", "k4:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 10*time.Minute, cfg.Engine.JWT.AccessTTL)
	assert.Equal(t, 4, cfg.Engine.Devices.MaxPerUser)
	assert.Equal(t, 45*time.Minute, cfg.Engine.Lockout.Duration)
	assert.Equal(t, 2*time.Minute, cfg.Engine.Presence.ViewerTTL)
	assert.Equal(t, 20*time.Second, cfg.Engine.Presence.SweepInterval)
	assert.False(t, cfg.Engine.Metrics.EnableLatencyHistograms)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	setSecrets(t)
	t.Setenv("STREAMAUTH_POSTGRES_DSN", "postgres://localhost/streamauth")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestLoadConfigRejectsUnsafeSettings(t *testing.T) {
	cases := []struct {
		name string
		file string
		env  map[string]string
	}{
		{
			name: "missing secrets",
			env:  map[string]string{"STREAMAUTH_POSTGRES_DSN": "postgres://db"},
		},
		{
			name: "missing dsn",
			env: map[string]string{
				"STREAMAUTH_JWT_ACCESS_SECRET":  accessSecret,
				"STREAMAUTH_JWT_REFRESH_SECRET": refreshSecret,
			},
		},
		{
			name: "access ttl above cap",
			env: map[string]string{
				"STREAMAUTH_JWT_ACCESS_SECRET":  accessSecret,
				"STREAMAUTH_JWT_REFRESH_SECRET": refreshSecret,
				"STREAMAUTH_POSTGRES_DSN":       "postgres://db",
				"STREAMAUTH_ACCESS_TTL":         "2h",
			},
		},
		{
			name: "weak bcrypt",
			env: map[string]string{
				"STREAMAUTH_JWT_ACCESS_SECRET":  accessSecret,
				"STREAMAUTH_JWT_REFRESH_SECRET": refreshSecret,
				"STREAMAUTH_POSTGRES_DSN":       "postgres://db",
				"STREAMAUTH_BCRYPT_COST":        "8",
			},
		},
		{
			name: "bad log level",
			env: map[string]string{
				"STREAMAUTH_JWT_ACCESS_SECRET":  accessSecret,
				"STREAMAUTH_JWT_REFRESH_SECRET": refreshSecret,
				"STREAMAUTH_POSTGRES_DSN":       "postgres://db",
				"STREAMAUTH_LOG_LEVEL":          "loud",
			},
		},
		{
			name: "malformed yaml",
			file: "server: [",
			env: map[string]string{
				"STREAMAUTH_JWT_ACCESS_SECRET":  accessSecret,
				"STREAMAUTH_JWT_REFRESH_SECRET": refreshSecret,
				"STREAMAUTH_POSTGRES_DSN":       "postgres://db",
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			path := ""
			if tc.file != "" {
				path = writeFile(t, tc.file)
			}
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestEnvHelpersFallback(t *testing.T) {
	t.Setenv("STREAMAUTH_X_INT", "abc")
	t.Setenv("STREAMAUTH_X_BOOL", "maybe")
	t.Setenv("STREAMAUTH_X_DUR", "soon")

	assert.Equal(t, 7, envInt("STREAMAUTH_X_INT", 7))
	assert.True(t, envBool("STREAMAUTH_X_BOOL", true))
	assert.Equal(t, time.Second, envDuration("STREAMAUTH_X_DUR", time.Second))
}
