package streamauth

import (
	"context"
	"log/slog"

	"github.com/MrEthical07/streamauth/internal/security"
)

// SecurityReport is the effective security policy of an Engine. It carries
// no secrets and is meant for startup logging.
type SecurityReport = security.Report

// PasswordPolicyReport describes the password hashing policy.
type PasswordPolicyReport = security.PasswordReport

// SecurityReport returns the effective policy together with warnings for
// settings weaker than the reference defaults.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return security.BuildReport(security.ReportInput{
		AccessSecret:      e.config.JWT.AccessSecret,
		RefreshSecret:     e.config.JWT.RefreshSecret,
		AccessTTL:         e.config.JWT.AccessTTL,
		RefreshTTL:        e.config.JWT.RefreshTTL,
		LockoutThreshold:  e.config.Lockout.Threshold,
		LockoutDuration:   e.config.Lockout.Duration,
		MaxDevicesPerUser: e.config.Devices.MaxPerUser,
		Password: security.PasswordReport{
			Algorithm:          "bcrypt",
			BcryptCost:         e.config.Password.BcryptCost,
			UpgradeOnLogin:     e.config.Password.UpgradeOnLogin,
			AcceptLegacyArgon2: e.config.Password.AcceptLegacyArgon2,
		},
		EnableIPThrottle:      e.config.Security.EnableIPThrottle,
		MaxLoginAttemptsPerIP: e.config.Security.MaxLoginAttemptsPerIP,
		EnableRefreshThrottle: e.config.Security.EnableRefreshThrottle,
		MaxRefreshAttempts:    e.config.Security.MaxRefreshAttempts,
		ViewerTTL:             e.config.Presence.ViewerTTL,
		StoreTimeout:          e.config.Store.OperationTimeout,
		AuditEnabled:          e.config.Audit.Enabled,
	})
}

func reportLogAttrs(r SecurityReport) []slog.Attr {
	return []slog.Attr{
		slog.String("signing_algorithm", r.SigningAlgorithm),
		slog.Duration("access_ttl", r.AccessTTL),
		slog.Duration("refresh_ttl", r.RefreshTTL),
		slog.Bool("distinct_secrets", r.DistinctSecrets),
		slog.Int("lockout_threshold", r.LockoutThreshold),
		slog.Duration("lockout_duration", r.LockoutDuration),
		slog.Int("max_devices_per_user", r.MaxDevicesPerUser),
		slog.Int("bcrypt_cost", r.Password.BcryptCost),
		slog.Bool("login_ip_throttle", r.LoginIPThrottleActive),
		slog.Bool("refresh_throttle", r.RefreshThrottleActive),
		slog.Bool("presence_heartbeat", r.PresenceHeartbeatActive),
		slog.Any("warnings", r.Warnings),
	}
}

// LogSecurityReport writes the effective policy to logger at info level.
func (e *Engine) LogSecurityReport(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	logger.LogAttrs(context.Background(), slog.LevelInfo, "security policy", reportLogAttrs(e.SecurityReport())...)
}
