package limiters

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockoutConfig holds configuration for the automatic account lockout limiter.
type LockoutConfig struct {
	Threshold  int
	Duration   time.Duration
	CounterTTL time.Duration // failures are forgotten after this long without a new one
	KeyPrefix  string
}

var (
	// ErrLockoutUnavailable indicates the lockout backend is unreachable.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
)

const (
	fieldFailed      = "failed"
	fieldLockedUntil = "locked_until"
)

// recordFailureScript applies one failed attempt atomically.
//
// KEYS[1] lockout hash
// ARGV[1] now (unix ms)
// ARGV[2] threshold
// ARGV[3] locked_until to set when the threshold is reached (unix ms)
// ARGV[4] key ttl (ms)
//
// Returns {failed, locked_until, just_locked}.
var recordFailureScript = redis.NewScript(`
local raw = redis.call('HGET', KEYS[1], 'locked_until')
local now = tonumber(ARGV[1])
if raw then
  if tonumber(raw) > now then
    local failed = redis.call('HGET', KEYS[1], 'failed') or '0'
    return {tonumber(failed), raw, 0}
  end
  redis.call('DEL', KEYS[1])
end
local failed = redis.call('HINCRBY', KEYS[1], 'failed', 1)
if failed >= tonumber(ARGV[2]) then
  redis.call('HSET', KEYS[1], 'locked_until', ARGV[3])
  redis.call('PEXPIRE', KEYS[1], ARGV[4])
  return {failed, ARGV[3], 1}
end
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return {failed, '0', 0}
`)

// LockoutState is the failed-attempt counter and lock deadline of one user.
type LockoutState struct {
	Failed      int
	LockedUntil time.Time
}

// Locked reports whether the lock deadline is still in the future at now.
func (s LockoutState) Locked(now time.Time) bool {
	return !s.LockedUntil.IsZero() && now.Before(s.LockedUntil)
}

// LockoutLimiter tracks failed login attempts per user in a Redis hash and
// locks the account for Duration once Threshold consecutive failures are
// reached. A failure or success after an expired lock starts a fresh count.
type LockoutLimiter struct {
	redis  redis.UniversalClient
	config LockoutConfig
}

// NewLockoutLimiter creates a new lockout limiter.
func NewLockoutLimiter(redisClient redis.UniversalClient, cfg LockoutConfig) *LockoutLimiter {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "lockout:"
	}
	if cfg.CounterTTL < cfg.Duration {
		cfg.CounterTTL = cfg.Duration
	}
	return &LockoutLimiter{redis: redisClient, config: cfg}
}

func (l *LockoutLimiter) key(userID string) string {
	return l.config.KeyPrefix + userID
}

// Status returns the current state. An expired lock is reported as a zero
// state because the next attempt will start a fresh count.
func (l *LockoutLimiter) Status(ctx context.Context, userID string, now time.Time) (LockoutState, error) {
	if userID == "" {
		return LockoutState{}, nil
	}

	vals, err := l.redis.HMGet(ctx, l.key(userID), fieldFailed, fieldLockedUntil).Result()
	if err != nil {
		return LockoutState{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}

	state := LockoutState{
		Failed:      int(toInt64(vals[0])),
		LockedUntil: fromUnixMilli(toInt64(vals[1])),
	}
	if !state.LockedUntil.IsZero() && !state.Locked(now) {
		return LockoutState{}, nil
	}
	return state, nil
}

// RecordFailure counts one failed attempt. justLocked is true only for the
// attempt that reached the threshold. While a lock is active the counter is
// left untouched.
func (l *LockoutLimiter) RecordFailure(ctx context.Context, userID string, now time.Time) (state LockoutState, justLocked bool, err error) {
	if userID == "" {
		return LockoutState{}, false, nil
	}

	lockedUntil := now.Add(l.config.Duration).UnixMilli()
	res, err := recordFailureScript.Run(ctx, l.redis,
		[]string{l.key(userID)},
		now.UnixMilli(),
		l.config.Threshold,
		strconv.FormatInt(lockedUntil, 10),
		l.config.CounterTTL.Milliseconds(),
	).Slice()
	if err != nil {
		return LockoutState{}, false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if len(res) != 3 {
		return LockoutState{}, false, fmt.Errorf("%w: unexpected script reply", ErrLockoutUnavailable)
	}

	state = LockoutState{
		Failed:      int(toInt64(res[0])),
		LockedUntil: fromUnixMilli(toInt64(res[1])),
	}
	return state, toInt64(res[2]) == 1, nil
}

// Reset clears the failure counter and any lock (successful login or manual unlock).
func (l *LockoutLimiter) Reset(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}

	if err := l.redis.Del(ctx, l.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func fromUnixMilli(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
