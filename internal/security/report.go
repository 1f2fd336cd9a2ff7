package security

import "time"

type PasswordReport struct {
	Algorithm          string
	BcryptCost         int
	UpgradeOnLogin     bool
	AcceptLegacyArgon2 bool
}

type Report struct {
	SigningAlgorithm        string
	AccessTTL               time.Duration
	RefreshTTL              time.Duration
	DistinctSecrets         bool
	LockoutThreshold        int
	LockoutDuration         time.Duration
	MaxDevicesPerUser       int
	Password                PasswordReport
	LoginIPThrottleActive   bool
	RefreshThrottleActive   bool
	PresenceHeartbeatActive bool
	StoreTimeout            time.Duration
	AuditEnabled            bool
	Warnings                []string
}

type ReportInput struct {
	AccessSecret          []byte
	RefreshSecret         []byte
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	LockoutThreshold      int
	LockoutDuration       time.Duration
	MaxDevicesPerUser     int
	Password              PasswordReport
	EnableIPThrottle      bool
	MaxLoginAttemptsPerIP int
	EnableRefreshThrottle bool
	MaxRefreshAttempts    int
	ViewerTTL             time.Duration
	StoreTimeout          time.Duration
	AuditEnabled          bool
}

// recommendedAccessTTL is the access lifetime above which the revocation
// staleness window is worth flagging.
const recommendedAccessTTL = 15 * time.Minute

func BuildReport(input ReportInput) Report {
	var warnings []string
	if input.AccessTTL > recommendedAccessTTL {
		warnings = append(warnings, "access tokens outlive logout for more than 15m")
	}
	if !input.EnableIPThrottle {
		warnings = append(warnings, "per-IP login throttle disabled")
	}
	if input.Password.AcceptLegacyArgon2 && !input.Password.UpgradeOnLogin {
		warnings = append(warnings, "legacy argon2 hashes accepted without upgrade on login")
	}
	if !input.AuditEnabled {
		warnings = append(warnings, "audit sink not configured")
	}

	return Report{
		SigningAlgorithm:        "HS256",
		AccessTTL:               input.AccessTTL,
		RefreshTTL:              input.RefreshTTL,
		DistinctSecrets:         len(input.AccessSecret) > 0 && string(input.AccessSecret) != string(input.RefreshSecret),
		LockoutThreshold:        input.LockoutThreshold,
		LockoutDuration:         input.LockoutDuration,
		MaxDevicesPerUser:       input.MaxDevicesPerUser,
		Password:                input.Password,
		LoginIPThrottleActive:   input.EnableIPThrottle && input.MaxLoginAttemptsPerIP > 0,
		RefreshThrottleActive:   input.EnableRefreshThrottle && input.MaxRefreshAttempts > 0,
		PresenceHeartbeatActive: input.ViewerTTL > 0,
		StoreTimeout:            input.StoreTimeout,
		AuditEnabled:            input.AuditEnabled,
		Warnings:                warnings,
	}
}
