//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrEthical07/streamauth"
)

// TestRedisCompat_LockoutThreshold validates the Lua lockout counter across backends.
func TestRedisCompat_LockoutThreshold(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			engine := newEngine(t, rdb, testConfig(), nil, nil)
			ctx := context.Background()
			email := uniqueEmail("lock")
			userID, err := engine.Register(ctx, streamauth.RegisterRequest{Email: email, Password: testPassword})
			if err != nil {
				t.Fatalf("register: %v", err)
			}

			for i := 0; i < 5; i++ {
				_, err := engine.Login(ctx, streamauth.LoginRequest{Email: email, Password: "wrong-password-x"})
				if !errors.Is(err, streamauth.ErrInvalidCredentials) {
					t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
				}
			}
			if _, err := engine.Login(ctx, streamauth.LoginRequest{Email: email, Password: testPassword}); !errors.Is(err, streamauth.ErrAccountLocked) {
				t.Fatalf("expected ErrAccountLocked, got %v", err)
			}

			state, err := engine.LockoutStatus(ctx, userID)
			if err != nil {
				t.Fatalf("status: %v", err)
			}
			if state.FailedAttempts != 5 || !state.Locked(time.Now()) {
				t.Fatalf("unexpected lockout state %+v", state)
			}

			if err := engine.Unlock(ctx, userID); err != nil {
				t.Fatalf("unlock: %v", err)
			}
			if _, err := engine.Login(ctx, streamauth.LoginRequest{Email: email, Password: testPassword}); err != nil {
				t.Fatalf("login after unlock: %v", err)
			}
		})
	}
}

// TestRedisCompat_RefreshRotation validates rotation and reuse detection across backends.
func TestRedisCompat_RefreshRotation(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			engine := newEngine(t, rdb, testConfig(), nil, nil)
			ctx := context.Background()
			first := registerAndLogin(t, engine, uniqueEmail("rot"), "tv-1")

			rotated, err := engine.Refresh(ctx, first.Tokens.RefreshToken)
			if err != nil {
				t.Fatalf("refresh: %v", err)
			}
			if rotated.Tokens.RefreshToken == first.Tokens.RefreshToken {
				t.Fatal("refresh token should change on rotation")
			}

			if _, err := engine.Refresh(ctx, first.Tokens.RefreshToken); !errors.Is(err, streamauth.ErrTokenRevoked) {
				t.Fatalf("expected ErrTokenRevoked on replay, got %v", err)
			}
			if _, err := engine.Refresh(ctx, rotated.Tokens.RefreshToken); err != nil {
				t.Fatalf("current token should still refresh: %v", err)
			}
		})
	}
}

// TestRedisCompat_LogoutLedgerTTL validates revocation entries expire with the token.
func TestRedisCompat_LogoutLedgerTTL(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			engine := newEngine(t, rdb, testConfig(), nil, nil)
			ctx := context.Background()
			res := registerAndLogin(t, engine, uniqueEmail("ledger"), "tv-1")

			if err := engine.Logout(ctx, res.Tokens.RefreshToken); err != nil {
				t.Fatalf("logout: %v", err)
			}
			if err := engine.Logout(ctx, res.Tokens.RefreshToken); err != nil {
				t.Fatalf("second logout should be idempotent: %v", err)
			}
			if _, err := engine.Refresh(ctx, res.Tokens.RefreshToken); !errors.Is(err, streamauth.ErrTokenRevoked) {
				t.Fatalf("expected ErrTokenRevoked after logout, got %v", err)
			}
		})
	}
}

// TestRedisCompat_PresenceCounts validates set membership and idempotence across backends.
func TestRedisCompat_PresenceCounts(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			engine := newEngine(t, rdb, testConfig(), nil, nil)
			ctx := context.Background()
			contentID := uniqueID("compat")

			for i := 0; i < 3; i++ {
				if _, err := engine.StartWatching(ctx, contentID, fmt.Sprintf("viewer-%d", i)); err != nil {
					t.Fatalf("start: %v", err)
				}
			}
			n, err := engine.StartWatching(ctx, contentID, "viewer-0")
			if err != nil || n != 3 {
				t.Fatalf("duplicate start: n=%d err=%v", n, err)
			}
			n, err = engine.StopWatching(ctx, contentID, "viewer-1")
			if err != nil || n != 2 {
				t.Fatalf("stop: n=%d err=%v", n, err)
			}
			n, err = engine.StopWatching(ctx, contentID, "viewer-1")
			if err != nil || n != 2 {
				t.Fatalf("repeated stop: n=%d err=%v", n, err)
			}
		})
	}
}

// TestRedisCompat_ViewerBroadcast validates Pub/Sub delivery across backends.
func TestRedisCompat_ViewerBroadcast(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			engine := newEngine(t, rdb, testConfig(), nil, nil)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			contentID := uniqueID("bcast")

			sub, err := engine.SubscribeViewers(ctx, contentID)
			if err != nil {
				t.Fatalf("subscribe: %v", err)
			}
			defer sub.Close()

			if _, err := engine.StartWatching(ctx, contentID, "viewer-a"); err != nil {
				t.Fatalf("start: %v", err)
			}

			select {
			case u := <-sub.Updates:
				if u.ContentID != contentID || u.Count != 1 {
					t.Fatalf("unexpected update %+v", u)
				}
			case <-ctx.Done():
				t.Fatal("no broadcast received")
			}
		})
	}
}
