package flows

import (
	"context"
	"time"
)

// LogoutFailureKind classifies logout failures for root-level mapping.
type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureDecode
	LogoutFailureRevoke
	LogoutFailureUnbind
)

// LogoutResult reports which user and whether a device binding was removed.
type LogoutResult struct {
	Failure       LogoutFailureKind
	Err           error
	UserID        string
	DeviceRemoved bool
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Now                     func() time.Time
	ParseRefresh            func(string) (string, time.Time, error)
	HashToken               func(string) string
	Revoke                  func(context.Context, string, time.Duration) error
	RemoveDeviceByTokenHash func(context.Context, string, string) (bool, error)
	RemoveAllDevices        func(context.Context, string) (int, error)
}

// RunLogout revokes a refresh token and clears its device binding. The
// ledger write happens first and its failure fails the logout.
func RunLogout(ctx context.Context, refreshToken string, deps LogoutDeps) LogoutResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	userID, expiresAt, err := deps.ParseRefresh(refreshToken)
	if err != nil {
		return LogoutResult{Failure: LogoutFailureDecode, Err: err}
	}

	hash := deps.HashToken(refreshToken)
	if err := deps.Revoke(ctx, hash, expiresAt.Sub(deps.Now())); err != nil {
		return LogoutResult{Failure: LogoutFailureRevoke, Err: err, UserID: userID}
	}

	removed, err := deps.RemoveDeviceByTokenHash(ctx, userID, hash)
	if err != nil {
		return LogoutResult{Failure: LogoutFailureUnbind, Err: err, UserID: userID}
	}

	return LogoutResult{UserID: userID, DeviceRemoved: removed}
}

// RunLogoutAll removes every device binding of userID. Outstanding access
// tokens remain valid until they expire.
func RunLogoutAll(ctx context.Context, userID string, deps LogoutDeps) (int, error) {
	return deps.RemoveAllDevices(ctx, userID)
}
