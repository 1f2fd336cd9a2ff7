package flows

import (
	"context"
	"errors"
	"strings"
	"time"
)

// UserRecord is a flow-local user model.
type UserRecord struct {
	UserID       string
	Email        string
	PasswordHash string
	Role         string
	Active       bool
}

// IssuedPair is a freshly minted access/refresh token pair.
type IssuedPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// BindRequest describes the device a login binds its refresh token to.
type BindRequest struct {
	UserID       string
	DeviceID     string
	DeviceType   string
	RefreshToken string
	IP           string
	UserAgent    string
	At           time.Time
}

// LoginInput is the flow-local login request.
type LoginInput struct {
	Email      string
	Password   string
	DeviceID   string
	DeviceType string
	IP         string
	UserAgent  string
}

// LoginResult is the flow-local login response.
type LoginResult struct {
	UserID   string
	Role     string
	DeviceID string
	Pair     IssuedPair
}

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess        int
	LoginFailure        int
	LoginRateLimited    int
	LoginLockedRejected int
	AccountLocked       int
	DeviceBound         int
	DeviceQuotaExceeded int
	StoreUnavailable    int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	LoginSuccess        string
	LoginFailure        string
	LoginRateLimited    string
	AccountLocked       string
	DeviceQuotaExceeded string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady      error
	InvalidRequest      error
	InvalidCredentials  error
	AccountLocked       error
	LoginRateLimited    error
	DeviceQuotaExceeded error
	StoreUnavailable    error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	PasswordUpgradeOnLogin bool

	Now func() time.Time

	CheckIPRate     func(context.Context, string) (bool, error)
	IncrementIPRate func(context.Context, string) error

	GetUserByEmail     func(context.Context, string) (UserRecord, bool, error)
	RecordLogin        func(context.Context, string, string, string, time.Time) error
	UpdatePasswordHash func(context.Context, string, string) error

	VerifyPassword       func(string, string) (bool, error)
	DummyVerify          func(string)
	PasswordNeedsUpgrade func(string) (bool, error)
	HashPassword         func(string) (string, error)

	// LockoutStatus returns the lock expiry; zero means not locked.
	LockoutStatus func(context.Context, string, time.Time) (time.Time, error)
	// RecordFailure returns the failed count and whether this failure set the lock.
	RecordFailure func(context.Context, string, time.Time) (int, bool, error)
	ResetLockout  func(context.Context, string) error

	IssuePair         func(context.Context, UserRecord) (IssuedPair, error)
	BindDevice        func(context.Context, BindRequest) error
	IsQuotaExceeded   func(error) bool
	NewDeviceID       func() string
	NormalizeID       func(string) (string, bool)
	DefaultDeviceType string

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, userID, identity, deviceID string, err error, metadata func() map[string]string)
	Warn      func(string, ...any)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin verifies credentials under the lockout state machine, issues a
// token pair and binds it to a device.
func RunLogin(ctx context.Context, in LoginInput, deps LoginDeps) (*LoginResult, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, string, error, func() map[string]string) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.DummyVerify == nil {
		deps.DummyVerify = func(string) {}
	}
	if deps.GetUserByEmail == nil ||
		deps.VerifyPassword == nil ||
		deps.LockoutStatus == nil ||
		deps.RecordFailure == nil ||
		deps.ResetLockout == nil ||
		deps.IssuePair == nil ||
		deps.BindDevice == nil {
		return nil, deps.Errors.EngineNotReady
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	failureMeta := func(reason string) func() map[string]string {
		return func() map[string]string {
			return map[string]string{"reason": reason}
		}
	}

	if email == "" || in.Password == "" {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", email, "", deps.Errors.InvalidRequest, failureMeta("empty_credentials"))
		return nil, deps.Errors.InvalidRequest
	}

	deviceID := in.DeviceID
	if deviceID == "" && deps.NewDeviceID != nil {
		deviceID = deps.NewDeviceID()
	} else if deps.NormalizeID != nil {
		normalized, ok := deps.NormalizeID(deviceID)
		if !ok {
			deps.MetricInc(deps.Metrics.LoginFailure)
			deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", email, "", deps.Errors.InvalidRequest, failureMeta("invalid_device_id"))
			return nil, deps.Errors.InvalidRequest
		}
		deviceID = normalized
	}

	if deps.CheckIPRate != nil && in.IP != "" {
		allowed, err := deps.CheckIPRate(ctx, in.IP)
		if err != nil {
			return nil, storeFailure(deps, err)
		}
		if !allowed {
			deps.MetricInc(deps.Metrics.LoginRateLimited)
			deps.EmitAudit(ctx, deps.Events.LoginRateLimited, false, "", email, deviceID, deps.Errors.LoginRateLimited, nil)
			return nil, deps.Errors.LoginRateLimited
		}
	}

	countIPFailure := func() {
		if deps.IncrementIPRate == nil || in.IP == "" {
			return
		}
		if err := deps.IncrementIPRate(ctx, in.IP); err != nil {
			deps.Warn("streamauth: login ip throttle increment failed", "error", err)
		}
	}

	user, found, err := deps.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, storeFailure(deps, err)
	}
	if !found {
		deps.DummyVerify(in.Password)
		countIPFailure()
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", email, deviceID, deps.Errors.InvalidCredentials, failureMeta("user_not_found"))
		return nil, deps.Errors.InvalidCredentials
	}
	if !user.Active {
		_, _ = deps.VerifyPassword(in.Password, user.PasswordHash)
		countIPFailure()
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, user.UserID, email, deviceID, deps.Errors.InvalidCredentials, failureMeta("account_status"))
		return nil, deps.Errors.InvalidCredentials
	}

	now := deps.Now()
	lockedUntil, err := deps.LockoutStatus(ctx, user.UserID, now)
	if err != nil {
		return nil, storeFailure(deps, err)
	}
	if !lockedUntil.IsZero() {
		countIPFailure()
		deps.MetricInc(deps.Metrics.LoginLockedRejected)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, user.UserID, email, deviceID, deps.Errors.AccountLocked, func() map[string]string {
			return map[string]string{
				"reason":       "account_locked",
				"locked_until": lockedUntil.UTC().Format(time.RFC3339),
			}
		})
		return nil, deps.Errors.AccountLocked
	}

	ok, err := deps.VerifyPassword(in.Password, user.PasswordHash)
	if err != nil {
		deps.Warn("streamauth: password verification error", "user_id", user.UserID, "error", err)
	}
	if err != nil || !ok {
		failed, justLocked, recErr := deps.RecordFailure(ctx, user.UserID, now)
		if recErr != nil {
			return nil, storeFailure(deps, recErr)
		}
		countIPFailure()
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, user.UserID, email, deviceID, deps.Errors.InvalidCredentials, failureMeta("password_mismatch"))
		if justLocked {
			deps.MetricInc(deps.Metrics.AccountLocked)
			deps.EmitAudit(ctx, deps.Events.AccountLocked, false, user.UserID, email, deviceID, deps.Errors.AccountLocked, func() map[string]string {
				return map[string]string{"failed_attempts": itoa(failed)}
			})
		}
		return nil, deps.Errors.InvalidCredentials
	}

	if err := deps.ResetLockout(ctx, user.UserID); err != nil {
		return nil, storeFailure(deps, err)
	}

	pair, err := deps.IssuePair(ctx, user)
	if err != nil {
		return nil, err
	}

	deviceType := in.DeviceType
	if deviceType == "" {
		deviceType = deps.DefaultDeviceType
	}
	if err := deps.BindDevice(ctx, BindRequest{
		UserID:       user.UserID,
		DeviceID:     deviceID,
		DeviceType:   deviceType,
		RefreshToken: pair.RefreshToken,
		IP:           in.IP,
		UserAgent:    in.UserAgent,
		At:           now,
	}); err != nil {
		if deps.IsQuotaExceeded != nil && deps.IsQuotaExceeded(err) {
			deps.MetricInc(deps.Metrics.DeviceQuotaExceeded)
			deps.EmitAudit(ctx, deps.Events.DeviceQuotaExceeded, false, user.UserID, email, deviceID, deps.Errors.DeviceQuotaExceeded, nil)
			return nil, deps.Errors.DeviceQuotaExceeded
		}
		return nil, storeFailure(deps, err)
	}
	deps.MetricInc(deps.Metrics.DeviceBound)

	if deps.RecordLogin != nil {
		if err := deps.RecordLogin(ctx, user.UserID, in.IP, deviceID, now); err != nil {
			deps.Warn("streamauth: login record update failed", "user_id", user.UserID, "error", err)
		}
	}

	if deps.PasswordUpgradeOnLogin && deps.PasswordNeedsUpgrade != nil && deps.HashPassword != nil && deps.UpdatePasswordHash != nil {
		if needsUpgrade, err := deps.PasswordNeedsUpgrade(user.PasswordHash); err == nil && needsUpgrade {
			if upgradedHash, err := deps.HashPassword(in.Password); err == nil {
				if err := deps.UpdatePasswordHash(ctx, user.UserID, upgradedHash); err != nil {
					deps.Warn("streamauth: password hash upgrade update failed", "user_id", user.UserID)
				}
			} else {
				deps.Warn("streamauth: password hash upgrade generation failed", "user_id", user.UserID)
			}
		}
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, user.UserID, email, deviceID, nil, nil)

	return &LoginResult{
		UserID:   user.UserID,
		Role:     user.Role,
		DeviceID: deviceID,
		Pair:     pair,
	}, nil
}

func storeFailure(deps LoginDeps, err error) error {
	deps.MetricInc(deps.Metrics.StoreUnavailable)
	if deps.Errors.StoreUnavailable == nil || errors.Is(err, deps.Errors.StoreUnavailable) {
		return err
	}
	return wrapStore(deps.Errors.StoreUnavailable, err)
}
