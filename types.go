package streamauth

import (
	"context"
	"io"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/streamauth/internal/audit"
	internalmetrics "github.com/MrEthical07/streamauth/internal/metrics"
	"github.com/MrEthical07/streamauth/presence"
)

// AccountStatus represents the lifecycle state of a user account.
type AccountStatus uint8

const (
	// AccountActive accounts may log in and refresh.
	AccountActive AccountStatus = iota
	// AccountInactive accounts have not been activated.
	AccountInactive
	// AccountSuspended accounts are blocked by an operator.
	AccountSuspended
	// AccountDeleted accounts are soft-deleted.
	AccountDeleted
)

func (s AccountStatus) String() string {
	switch s {
	case AccountActive:
		return "active"
	case AccountInactive:
		return "inactive"
	case AccountSuspended:
		return "suspended"
	case AccountDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// UserRecord is the durable user row. Lockout counters are not part of it;
// they live in the shared fast store so every instance sees them.
type UserRecord struct {
	UserID          string
	Email           string
	PasswordHash    string
	Role            string
	Status          AccountStatus
	CreatedAt       time.Time
	LastLoginAt     time.Time
	LastLoginIP     string
	LastLoginDevice string
}

// DeviceType classifies a bound device.
type DeviceType string

const (
	DeviceMobile DeviceType = "mobile"
	DeviceWeb    DeviceType = "web"
	DeviceTV     DeviceType = "tv"
	DeviceTablet DeviceType = "tablet"
	DeviceOther  DeviceType = "other"
)

// ParseDeviceType maps a client-supplied string to a DeviceType. Empty
// input is treated as web and unknown values as other.
func ParseDeviceType(s string) DeviceType {
	switch DeviceType(strings.ToLower(strings.TrimSpace(s))) {
	case "", DeviceWeb:
		return DeviceWeb
	case DeviceMobile:
		return DeviceMobile
	case DeviceTV:
		return DeviceTV
	case DeviceTablet:
		return DeviceTablet
	default:
		return DeviceOther
	}
}

// DeviceRecord binds one refresh token to one device of a user. Only the
// SHA-256 hex hash of the refresh token is stored.
type DeviceRecord struct {
	UserID       string
	DeviceID     string
	DeviceType   DeviceType
	TokenHash    string
	IP           string
	UserAgent    string
	LoggedInAt   time.Time
	LastActiveAt time.Time
}

// DeviceInfo is the public view of a bound device, without the token hash.
type DeviceInfo struct {
	DeviceID     string     `json:"deviceId"`
	DeviceType   DeviceType `json:"deviceType"`
	IP           string     `json:"ip,omitempty"`
	UserAgent    string     `json:"userAgent,omitempty"`
	LoggedInAt   time.Time  `json:"loggedInAt"`
	LastActiveAt time.Time  `json:"lastActiveAt"`
}

// UserStore is the durable store for user records.
//
// GetUserByEmail and GetUserByID return ErrUserNotFound for missing users.
// CreateUser returns ErrAccountExists for a duplicate email.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	CreateUser(ctx context.Context, user UserRecord) error
	RecordLogin(ctx context.Context, userID string, at time.Time, ip, deviceID string) error
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
}

// DeviceStore is the durable store for device records.
//
// BindDevice must make count-then-insert atomic per user: when d.DeviceID
// is new and the user already owns maxDevices devices it returns
// ErrDeviceQuotaExceeded and changes nothing. A known DeviceID is updated in
// place. RotateDeviceToken swaps the token hash only if the device still
// holds oldHash and returns ErrDeviceNotFound otherwise.
type DeviceStore interface {
	BindDevice(ctx context.Context, d DeviceRecord, maxDevices int) (created bool, err error)
	FindDeviceByTokenHash(ctx context.Context, tokenHash string) (DeviceRecord, error)
	RotateDeviceToken(ctx context.Context, userID, deviceID, oldHash, newHash string, at time.Time) error
	RemoveDeviceByTokenHash(ctx context.Context, userID, tokenHash string) (bool, error)
	RemoveDevice(ctx context.Context, userID, deviceID string) (bool, error)
	RemoveAllDevices(ctx context.Context, userID string) (int, error)
	ListDevices(ctx context.Context, userID string) ([]DeviceRecord, error)
}

// LoginRequest carries login input. DeviceID may be empty, in which case a
// new device id is generated and returned.
type LoginRequest struct {
	Email      string
	Password   string
	DeviceID   string
	DeviceType string
}

// RegisterRequest carries registration input. Role defaults to the
// configured default role.
type RegisterRequest struct {
	Email    string
	Password string
	Role     string
}

// TokenPair is an access/refresh pair with expiries.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// LoginResult is returned by [Engine.Login].
type LoginResult struct {
	UserID   string
	Role     string
	DeviceID string
	Tokens   TokenPair
}

// RefreshResult is returned by [Engine.Refresh].
type RefreshResult struct {
	UserID   string
	DeviceID string
	Tokens   TokenPair
}

// AuthResult is returned by [Engine.ValidateAccess].
type AuthResult struct {
	UserID    string
	Role      string
	TokenID   string
	ExpiresAt time.Time
}

// LockoutState reports an account's failed-attempt count and lock expiry.
// LockedUntil is zero when the account is not locked.
type LockoutState struct {
	FailedAttempts int       `json:"failedAttempts"`
	LockedUntil    time.Time `json:"lockedUntil,omitempty"`
}

// Locked reports whether the state is locked at now.
func (s LockoutState) Locked(now time.Time) bool {
	return !s.LockedUntil.IsZero() && now.Before(s.LockedUntil)
}

// ViewerUpdate is a live count change for one content item.
type ViewerUpdate = presence.Update

// ViewerSubscription streams ViewerUpdates; close it when done.
type ViewerSubscription = presence.Subscription

// AuditEvent is the structured audit record emitted for every attempt.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the async dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink delivers audit events on a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes audit events as JSON lines.
type JSONWriterSink = internalaudit.JSONWriterSink

// MultiSink fans audit events out to several sinks.
type MultiSink = internalaudit.MultiSink

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing JSON lines to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies an engine counter or histogram.
type MetricID = internalmetrics.MetricID

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

const (
	MetricLoginSuccess             = internalmetrics.MetricLoginSuccess
	MetricLoginFailure             = internalmetrics.MetricLoginFailure
	MetricLoginRateLimited         = internalmetrics.MetricLoginRateLimited
	MetricLoginLockedRejected      = internalmetrics.MetricLoginLockedRejected
	MetricAccountLocked            = internalmetrics.MetricAccountLocked
	MetricAccountUnlocked          = internalmetrics.MetricAccountUnlocked
	MetricRefreshSuccess           = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure           = internalmetrics.MetricRefreshFailure
	MetricRefreshReuseDetected     = internalmetrics.MetricRefreshReuseDetected
	MetricRefreshRateLimited       = internalmetrics.MetricRefreshRateLimited
	MetricDeviceBound              = internalmetrics.MetricDeviceBound
	MetricDeviceQuotaExceeded      = internalmetrics.MetricDeviceQuotaExceeded
	MetricLogout                   = internalmetrics.MetricLogout
	MetricLogoutAll                = internalmetrics.MetricLogoutAll
	MetricAccountCreationSuccess   = internalmetrics.MetricAccountCreationSuccess
	MetricAccountCreationDuplicate = internalmetrics.MetricAccountCreationDuplicate
	MetricWatchStart               = internalmetrics.MetricWatchStart
	MetricWatchStop                = internalmetrics.MetricWatchStop
	MetricPresenceSwept            = internalmetrics.MetricPresenceSwept
	MetricBroadcastFailure         = internalmetrics.MetricBroadcastFailure
	MetricStoreUnavailable         = internalmetrics.MetricStoreUnavailable
	MetricValidateLatency          = internalmetrics.MetricValidateLatency
	MetricRefreshLatency           = internalmetrics.MetricRefreshLatency
	MetricIDCount                  = internalmetrics.MetricIDCount
)

// HistogramBucketCount is the number of latency buckets per histogram.
const HistogramBucketCount = internalmetrics.HistBucketCount
