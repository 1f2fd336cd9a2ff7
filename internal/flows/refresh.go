package flows

import (
	"context"
	"errors"
	"time"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureDecode
	RefreshFailureRateLimited
	RefreshFailureRevoked
	RefreshFailureDeviceNotFound
	RefreshFailureAccountStatus
	RefreshFailureReuse
	RefreshFailureIssue
	RefreshFailureRotate
	RefreshFailureStore
)

// DeviceRef identifies the device holding a refresh token.
type DeviceRef struct {
	UserID   string
	DeviceID string
}

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure  RefreshFailureKind
	Err      error
	UserID   string
	DeviceID string
	Pair     IssuedPair
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Now          func() time.Time
	ParseRefresh func(string) (string, time.Time, error)
	HashToken    func(string) string

	// CheckRate reports whether the subject may refresh now.
	CheckRate func(context.Context, string) (bool, error)

	IsRevoked   func(context.Context, string) (bool, error)
	Claim       func(context.Context, string, time.Duration) (bool, error)
	// Release undoes Claim when the refresh fails after claiming.
	Release     func(context.Context, string) error
	FindDevice  func(context.Context, string) (DeviceRef, bool, error)
	GetUserByID func(context.Context, string) (UserRecord, bool, error)
	IssuePair   func(context.Context, UserRecord) (IssuedPair, error)
	// RotateDevice swaps the device's token hash from old to new only if
	// the device still holds old. It reports whether the swap happened.
	RotateDevice func(ctx context.Context, userID, deviceID, oldHash, newHash string, at time.Time) (bool, error)
}

// RunRefresh exchanges a refresh token for a new pair. The presented token
// is claimed in the revocation ledger before the new pair is bound, so of
// two concurrent refreshes of one token exactly one succeeds. When issuing
// or rotating fails after the claim, the claim is released so the caller
// can retry with the same token.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	userID, expiresAt, err := deps.ParseRefresh(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}

	if deps.CheckRate != nil {
		allowed, err := deps.CheckRate(ctx, userID)
		if err != nil {
			return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: userID}
		}
		if !allowed {
			return RefreshResult{Failure: RefreshFailureRateLimited, UserID: userID}
		}
	}

	oldHash := deps.HashToken(refreshToken)

	revoked, err := deps.IsRevoked(ctx, oldHash)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: userID}
	}
	if revoked {
		return RefreshResult{Failure: RefreshFailureRevoked, UserID: userID}
	}

	device, found, err := deps.FindDevice(ctx, oldHash)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: userID}
	}
	if !found || device.UserID != userID {
		return RefreshResult{Failure: RefreshFailureDeviceNotFound, UserID: userID}
	}

	user, found, err := deps.GetUserByID(ctx, userID)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: userID, DeviceID: device.DeviceID}
	}
	if !found || !user.Active {
		return RefreshResult{Failure: RefreshFailureAccountStatus, UserID: userID, DeviceID: device.DeviceID}
	}

	now := deps.Now()
	claimed, err := deps.Claim(ctx, oldHash, expiresAt.Sub(now))
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: userID, DeviceID: device.DeviceID}
	}
	if !claimed {
		return RefreshResult{Failure: RefreshFailureReuse, UserID: userID, DeviceID: device.DeviceID}
	}

	pair, err := deps.IssuePair(ctx, user)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: releaseClaim(ctx, deps, oldHash, err), UserID: userID, DeviceID: device.DeviceID}
	}

	rotated, err := deps.RotateDevice(ctx, userID, device.DeviceID, oldHash, deps.HashToken(pair.RefreshToken), now)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: releaseClaim(ctx, deps, oldHash, err), UserID: userID, DeviceID: device.DeviceID}
	}
	if !rotated {
		return RefreshResult{Failure: RefreshFailureRotate, UserID: userID, DeviceID: device.DeviceID}
	}

	return RefreshResult{
		Failure:  RefreshFailureNone,
		UserID:   userID,
		DeviceID: device.DeviceID,
		Pair:     pair,
	}
}

// releaseClaim drops the ledger claim on oldHash and returns cause, joined
// with the release error when the release also fails.
func releaseClaim(ctx context.Context, deps RefreshDeps, oldHash string, cause error) error {
	if deps.Release == nil {
		return cause
	}
	if err := deps.Release(ctx, oldHash); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}
