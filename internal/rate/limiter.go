package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	EnableIPThrottle      bool
	MaxLoginAttemptsPerIP int
	LoginWindow           time.Duration
	EnableRefreshThrottle bool
	MaxRefreshAttempts    int
	RefreshWindow         time.Duration
	KeyPrefix             string
}

// Limiter enforces a per-IP budget on failed logins and a per-user budget
// on refresh calls using fixed-window Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "ratelimit:"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckLogin returns ErrRateLimited when the IP has exhausted its failed
// login budget for the current window. Unknown IPs are never throttled.
func (l *Limiter) CheckLogin(ctx context.Context, ip string) error {
	if l == nil || !l.config.EnableIPThrottle || ip == "" {
		return nil
	}

	count, err := l.redis.Get(ctx, l.loginIPKey(ip)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(l.config.MaxLoginAttemptsPerIP) {
		return ErrRateLimited
	}
	return nil
}

// IncrementLogin records one failed login from ip.
func (l *Limiter) IncrementLogin(ctx context.Context, ip string) error {
	if l == nil || !l.config.EnableIPThrottle || ip == "" {
		return nil
	}

	_, err := l.incrementWithTTL(ctx, l.loginIPKey(ip), l.config.LoginWindow)
	return err
}

// CheckRefresh counts one refresh call for userID and returns
// ErrRateLimited once the window budget is exceeded.
func (l *Limiter) CheckRefresh(ctx context.Context, userID string) error {
	if l == nil || !l.config.EnableRefreshThrottle || userID == "" {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.refreshKey(userID), l.config.RefreshWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxRefreshAttempts) {
		return ErrRateLimited
	}

	return nil
}

// LoginAttempts returns the failed login count recorded for ip.
func (l *Limiter) LoginAttempts(ctx context.Context, ip string) (int, error) {
	if l == nil || ip == "" {
		return 0, nil
	}
	count, err := l.redis.Get(ctx, l.loginIPKey(ip)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return incr.Val(), nil
}

func (l *Limiter) loginIPKey(ip string) string {
	return l.config.KeyPrefix + "login:ip:" + ip
}

func (l *Limiter) refreshKey(userID string) string {
	return l.config.KeyPrefix + "refresh:" + userID
}
