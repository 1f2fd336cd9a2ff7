package streamauth

import "errors"

var (
	// ErrInvalidCredentials is returned for an unknown identity, a wrong
	// password or an account that is not Active. The three cases are
	// indistinguishable to the caller; audit events keep the distinction.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while the account's lockout window is open.
	ErrAccountLocked = errors.New("account locked")
	// ErrInvalidToken is returned for tokens with a bad signature, wrong
	// algorithm, wrong class or past expiry.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenRevoked is returned for refresh tokens found in the revocation
	// ledger, no longer bound to a device, or already used.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrDeviceQuotaExceeded is returned when binding a new device would
	// exceed the per-user device quota.
	ErrDeviceQuotaExceeded = errors.New("device quota exceeded")
	// ErrStoreUnavailable wraps failures and timeouts from Redis or the
	// durable store. It is retryable.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrLoginRateLimited is returned when the client IP has exhausted its
	// failed-login budget.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrRefreshRateLimited is returned when a user refreshes too often.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrAccountExists is returned by Register for a duplicate email.
	ErrAccountExists = errors.New("account already exists")
	// ErrInvalidRequest is returned for malformed input such as an empty
	// identity or an invalid content id.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrPasswordPolicy is returned by Register when the password is too short or too long.
	ErrPasswordPolicy = errors.New("password does not meet policy")
	// ErrEngineNotReady is returned when the engine was not built correctly.
	ErrEngineNotReady = errors.New("engine not initialized")

	// ErrUserNotFound is returned by UserStore implementations.
	ErrUserNotFound = errors.New("user not found")
	// ErrDeviceNotFound is returned by DeviceStore implementations.
	ErrDeviceNotFound = errors.New("device not found")
)

// IsRetryable reports whether err is a transient infrastructure failure the
// caller may retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
