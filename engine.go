package streamauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/streamauth/internal"
	"github.com/MrEthical07/streamauth/internal/audit"
	"github.com/MrEthical07/streamauth/internal/flows"
	"github.com/MrEthical07/streamauth/internal/limiters"
	"github.com/MrEthical07/streamauth/internal/metrics"
	"github.com/MrEthical07/streamauth/internal/rate"
	"github.com/MrEthical07/streamauth/internal/stores"
	"github.com/MrEthical07/streamauth/jwt"
	"github.com/MrEthical07/streamauth/password"
	"github.com/MrEthical07/streamauth/presence"
	"github.com/redis/go-redis/v9"
)

// Engine is the authentication and presence core. It is safe for concurrent
// use after [Builder.Build]. All shared state lives in Redis and the durable
// stores; the Engine holds no per-user state in memory.
type Engine struct {
	config Config
	redis  redis.UniversalClient

	users   UserStore
	devices DeviceStore

	jwtManager  *jwt.Manager
	passwords   *password.Multi
	lockout     *limiters.LockoutLimiter
	rateLimiter *rate.Limiter
	ledger      *stores.RevocationLedger
	tracker     *presence.Tracker
	broadcaster *presence.RedisBroadcaster

	audit   *audit.Dispatcher
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	flow flows.Service

	dummyOnce sync.Once
	dummyHash string
}

// Close flushes pending audit events. It does not close the Redis client
// or the stores, which the caller owns.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters and
// histograms. It is empty when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
			Sums:       map[MetricID]time.Duration{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricAdd(id MetricID, n int) {
	if e == nil || e.metrics == nil || n <= 0 {
		return
	}
	e.metrics.Add(id, uint64(n))
}

// storeCtx bounds one store round trip.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, e.config.Store.OperationTimeout)
}

func (e *Engine) storeUnavailable(err error) error {
	e.metricInc(MetricStoreUnavailable)
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// Login verifies credentials under the lockout policy, issues a token pair
// and binds the refresh token to the requesting device.
//
// Unknown identities, wrong passwords and non-Active accounts all return
// ErrInvalidCredentials. A locked account returns ErrAccountLocked without
// checking the password. A sixth distinct device returns
// ErrDeviceQuotaExceeded. Store failures return ErrStoreUnavailable.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if e == nil || !e.flow.Initialized() {
		return nil, ErrEngineNotReady
	}

	var deviceType string
	if req.DeviceType != "" {
		deviceType = string(ParseDeviceType(req.DeviceType))
	}

	res, err := e.flow.Login(ctx, flows.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		DeviceID:   req.DeviceID,
		DeviceType: deviceType,
		IP:         clientIPFromContext(ctx),
		UserAgent:  userAgentFromContext(ctx),
	})
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		UserID:   res.UserID,
		Role:     res.Role,
		DeviceID: res.DeviceID,
		Tokens:   tokenPairFromFlow(res.Pair),
	}, nil
}

// Register creates an Active account and returns its user id. It does not
// log the user in.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (string, error) {
	if e == nil || !e.flow.Initialized() {
		return "", ErrEngineNotReady
	}
	return e.flow.Register(ctx, flows.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
}

func tokenPairFromFlow(p flows.IssuedPair) TokenPair {
	return TokenPair{
		AccessToken:      p.AccessToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshToken:     p.RefreshToken,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

func flowUser(u UserRecord) flows.UserRecord {
	return flows.UserRecord{
		UserID:       u.UserID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		Active:       u.Status == AccountActive,
	}
}

func (e *Engine) issuePair(_ context.Context, user flows.UserRecord) (flows.IssuedPair, error) {
	access, accessExp, err := e.jwtManager.CreateAccess(user.UserID, user.Role)
	if err != nil {
		return flows.IssuedPair{}, err
	}
	refresh, refreshExp, err := e.jwtManager.CreateRefresh(user.UserID)
	if err != nil {
		return flows.IssuedPair{}, err
	}
	return flows.IssuedPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (e *Engine) parseRefresh(token string) (string, time.Time, error) {
	claims, err := e.jwtManager.ParseRefresh(token)
	if err != nil {
		return "", time.Time{}, err
	}
	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return claims.Subject, exp, nil
}

// dummyVerify burns one bcrypt comparison for unknown identities so their
// response time matches a real account.
func (e *Engine) dummyVerify(pw string) {
	e.dummyOnce.Do(func() {
		hash, err := e.passwords.Hash(internal.NewTokenID())
		if err != nil {
			e.logger.Warn("dummy hash generation failed", "operation", "login", "error", err)
			return
		}
		e.dummyHash = hash
	})
	if e.dummyHash == "" {
		return
	}
	_, _ = e.passwords.Verify(pw, e.dummyHash)
}

func (e *Engine) getUserByEmail(ctx context.Context, email string) (flows.UserRecord, bool, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()

	u, err := e.users.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return flows.UserRecord{}, false, nil
	}
	if err != nil {
		return flows.UserRecord{}, false, err
	}
	return flowUser(u), true, nil
}

func (e *Engine) getUserByID(ctx context.Context, userID string) (flows.UserRecord, bool, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()

	u, err := e.users.GetUserByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return flows.UserRecord{}, false, nil
	}
	if err != nil {
		return flows.UserRecord{}, false, err
	}
	return flowUser(u), true, nil
}

func (e *Engine) initFlowDeps() {
	metricInc := func(id int) { e.metricInc(MetricID(id)) }
	warn := func(msg string, args ...any) { e.logger.Warn(msg, args...) }

	e.flow = flows.New(flows.Deps{
		Login: flows.LoginDeps{
			PasswordUpgradeOnLogin: e.config.Password.UpgradeOnLogin,
			Now:                    e.now,
			CheckIPRate: func(ctx context.Context, ip string) (bool, error) {
				ctx, cancel := e.storeCtx(ctx)
				defer cancel()
				err := e.rateLimiter.CheckLogin(ctx, ip)
				if errors.Is(err, rate.ErrRateLimited) {
					return false, nil
				}
				return err == nil, err
			},
			IncrementIPRate: func(ctx context.Context, ip string) error {
				ctx, cancel := e.storeCtx(ctx)
				defer cancel()
				return e.rateLimiter.IncrementLogin(ctx, ip)
			},
			GetUserByEmail: e.getUserByEmail,
			RecordLogin: func(ctx context.Context, userID, ip, deviceID string, at time.Time) error {
				ctx, cancel := e.storeCtx(ctx)
				defer cancel()
				return e.users.RecordLogin(ctx, userID, at, ip, deviceID)
			},
			UpdatePasswordHash: func(ctx context.Context, userID, hash string) error {
				ctx, cancel := e.storeCtx(ctx)
				defer cancel()
				return e.users.UpdatePasswordHash(ctx, userID, hash)
			},
			VerifyPassword:       e.passwords.Verify,
			DummyVerify:          e.dummyVerify,
			PasswordNeedsUpgrade: e.passwords.NeedsUpgrade,
			HashPassword:         e.passwords.Hash,
			LockoutStatus: func(ctx context.Context, userID string, now time.Time) (time.Time, error) {
				ctx, cancel := e.storeCtx(ctx)
				defer cancel()
				state, err := e.lockout.Status(ctx, userID, now)
				if err != nil {
					return time.Time{}, err
				}
				if !state.Locked(now) {
					return time.Time{}, nil
				}
				return state.LockedUntil, nil
			},
			RecordFailure: func(ctx context.Context, userID string, now time.Time) (int, bool, error) {
				ctx, cancel := e.storeCtx(ctx)
				defer cancel()
				state, justLocked, err := e.lockout.RecordFailure(ctx, userID, now)
				return state.Failed, justLocked, err
			},
			ResetLockout: func(ctx context.Context, userID string) error {
				ctx, cancel := e.storeCtx(ctx)
				defer cancel()
				return e.lockout.Reset(ctx, userID)
			},
			IssuePair: e.issuePair,
			BindDevice: func(ctx context.Context, req flows.BindRequest) error {
				ctx, cancel := e.storeCtx(ctx)
				defer cancel()
				_, err := e.devices.BindDevice(ctx, DeviceRecord{
					UserID:       req.UserID,
					DeviceID:     req.DeviceID,
					DeviceType:   DeviceType(req.DeviceType),
					TokenHash:    internal.HashToken(req.RefreshToken),
					IP:           req.IP,
					UserAgent:    req.UserAgent,
					LoggedInAt:   req.At,
					LastActiveAt: req.At,
				}, e.config.Devices.MaxPerUser)
				return err
			},
			IsQuotaExceeded: func(err error) bool {
				return errors.Is(err, ErrDeviceQuotaExceeded)
			},
			NewDeviceID:       internal.NewDeviceID,
			NormalizeID:       internal.NormalizeClientID,
			DefaultDeviceType: string(e.config.Devices.DefaultDeviceType),
			MetricInc:         metricInc,
			EmitAudit:         e.emitAudit,
			Warn:              warn,
			Metrics: flows.LoginMetrics{
				LoginSuccess:        int(MetricLoginSuccess),
				LoginFailure:        int(MetricLoginFailure),
				LoginRateLimited:    int(MetricLoginRateLimited),
				LoginLockedRejected: int(MetricLoginLockedRejected),
				AccountLocked:       int(MetricAccountLocked),
				DeviceBound:         int(MetricDeviceBound),
				DeviceQuotaExceeded: int(MetricDeviceQuotaExceeded),
				StoreUnavailable:    int(MetricStoreUnavailable),
			},
			Events: flows.LoginEvents{
				LoginSuccess:        auditEventLoginSuccess,
				LoginFailure:        auditEventLoginFailure,
				LoginRateLimited:    auditEventLoginRateLimited,
				AccountLocked:       auditEventAccountLocked,
				DeviceQuotaExceeded: auditEventDeviceQuotaExceeded,
			},
			Errors: flows.LoginErrors{
				EngineNotReady:      ErrEngineNotReady,
				InvalidRequest:      ErrInvalidRequest,
				InvalidCredentials:  ErrInvalidCredentials,
				AccountLocked:       ErrAccountLocked,
				LoginRateLimited:    ErrLoginRateLimited,
				DeviceQuotaExceeded: ErrDeviceQuotaExceeded,
				StoreUnavailable:    ErrStoreUnavailable,
			},
		},
		Refresh: flows.RefreshDeps{
			Now:          e.now,
			ParseRefresh: e.parseRefresh,
			HashToken:    internal.HashToken,
			CheckRate: func(ctx context.Context, userID string) (bool, error) {
				ctx, cancel := e.storeCtx(ctx)
				defer cancel()
				err := e.rateLimiter.CheckRefresh(ctx, userID)
				if errors.Is(err, rate.ErrRateLimited) {
					return false, nil
				}
				return err == nil, err
			},
			IsRevoked: func(ctx context.Context, hash string) (bool, error) {
				ctx, cancel := e.storeCtx(ctx)
				defer cancel()
				return e.ledger.IsRevoked(ctx, hash)
			},
			Claim: func(ctx context.Context, hash string, ttl time.Duration) (bool, error) {
				ctx, cancel := e.storeCtx(ctx)
				defer cancel()
				return e.ledger.Claim(ctx, hash, ttl)
			},
			Release: func(ctx context.Context, hash string) error {
				ctx, cancel := e.storeCtx(context.WithoutCancel(ctx))
				defer cancel()
				return e.ledger.Release(ctx, hash)
			},
			FindDevice: func(ctx context.Context, hash string) (flows.DeviceRef, bool, error) {
				ctx, cancel := e.storeCtx(ctx)
				defer cancel()
				d, err := e.devices.FindDeviceByTokenHash(ctx, hash)
				if errors.Is(err, ErrDeviceNotFound) {
					return flows.DeviceRef{}, false, nil
				}
				if err != nil {
					return flows.DeviceRef{}, false, err
				}
				return flows.DeviceRef{UserID: d.UserID, DeviceID: d.DeviceID}, true, nil
			},
			GetUserByID: e.getUserByID,
			IssuePair:   e.issuePair,
			RotateDevice: func(ctx context.Context, userID, deviceID, oldHash, newHash string, at time.Time) (bool, error) {
				ctx, cancel := e.storeCtx(ctx)
				defer cancel()
				err := e.devices.RotateDeviceToken(ctx, userID, deviceID, oldHash, newHash, at)
				if errors.Is(err, ErrDeviceNotFound) {
					return false, nil
				}
				return err == nil, err
			},
		},
		Logout: flows.LogoutDeps{
			Now:          e.now,
			ParseRefresh: e.parseRefresh,
			HashToken:    internal.HashToken,
			Revoke: func(ctx context.Context, hash string, ttl time.Duration) error {
				ctx, cancel := e.storeCtx(ctx)
				defer cancel()
				return e.ledger.Revoke(ctx, hash, ttl)
			},
			RemoveDeviceByTokenHash: func(ctx context.Context, userID, hash string) (bool, error) {
				ctx, cancel := e.storeCtx(ctx)
				defer cancel()
				return e.devices.RemoveDeviceByTokenHash(ctx, userID, hash)
			},
			RemoveAllDevices: func(ctx context.Context, userID string) (int, error) {
				ctx, cancel := e.storeCtx(ctx)
				defer cancel()
				return e.devices.RemoveAllDevices(ctx, userID)
			},
		},
		Validate: flows.ValidateDeps{
			ParseAccess:  e.jwtManager.ParseAccess,
			Now:          e.now,
			MaxClockSkew: e.config.Security.MaxClockSkew,
		},
		Account: flows.AccountDeps{
			DefaultRole:  e.config.Store.DefaultRole,
			Now:          e.now,
			NewUserID:    internal.NewUserID,
			HashPassword: e.passwords.Hash,
			CreateUser: func(ctx context.Context, in flows.NewUserInput) error {
				ctx, cancel := e.storeCtx(ctx)
				defer cancel()
				return e.users.CreateUser(ctx, UserRecord{
					UserID:       in.UserID,
					Email:        in.Email,
					PasswordHash: in.PasswordHash,
					Role:         in.Role,
					Status:       AccountActive,
					CreatedAt:    in.CreatedAt,
				})
			},
			IsDuplicate: func(err error) bool {
				return errors.Is(err, ErrAccountExists)
			},
			MetricInc: metricInc,
			EmitAudit: e.emitAudit,
			Metrics: flows.AccountMetrics{
				AccountCreationSuccess:   int(MetricAccountCreationSuccess),
				AccountCreationDuplicate: int(MetricAccountCreationDuplicate),
				StoreUnavailable:         int(MetricStoreUnavailable),
			},
			Events: flows.AccountEvents{
				AccountCreationSuccess:   auditEventAccountCreationSuccess,
				AccountCreationFailure:   auditEventAccountCreationFailure,
				AccountCreationDuplicate: auditEventAccountCreationDuplicate,
			},
			Errors: flows.AccountErrors{
				EngineNotReady:   ErrEngineNotReady,
				InvalidRequest:   ErrInvalidRequest,
				PasswordPolicy:   ErrPasswordPolicy,
				AccountExists:    ErrAccountExists,
				StoreUnavailable: ErrStoreUnavailable,
			},
		},
	})
}
