//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/MrEthical07/streamauth"
	"github.com/MrEthical07/streamauth/store/postgres"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newPostgresEngine(t *testing.T) *streamauth.Engine {
	t.Helper()

	dsn := os.Getenv("STREAMAUTH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("STREAMAUTH_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	db, err := postgres.Connect(ctx, dsn, postgres.PoolConfig{MaxOpenConns: 16})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := postgres.Migrate(ctx, db, nil); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := postgres.New(db)
	return newEngine(t, rdb, testConfig(), store, store)
}

// TestStoreConsistency_DeviceQuotaUnderConcurrency checks that concurrent
// logins from new devices never exceed the per-user quota.
func TestStoreConsistency_DeviceQuotaUnderConcurrency(t *testing.T) {
	engine := newPostgresEngine(t)
	ctx := context.Background()

	email := uniqueEmail("quota")
	userID, err := engine.Register(ctx, streamauth.RegisterRequest{Email: email, Password: testPassword})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	const attempts = 10
	var ok, rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := engine.Login(ctx, streamauth.LoginRequest{
				Email:    email,
				Password: testPassword,
				DeviceID: fmt.Sprintf("device-%d", i),
			})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, streamauth.ErrDeviceQuotaExceeded):
				rejected.Add(1)
			default:
				t.Errorf("login %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if ok.Load() != 5 || rejected.Load() != attempts-5 {
		t.Fatalf("expected 5 admitted and %d rejected, got %d and %d", attempts-5, ok.Load(), rejected.Load())
	}

	devices, err := engine.Devices(ctx, userID)
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	if len(devices) != 5 {
		t.Fatalf("expected 5 bound devices, got %d", len(devices))
	}
}

// TestStoreConsistency_RefreshAndLogoutAll runs the token lifecycle against
// the relational store.
func TestStoreConsistency_RefreshAndLogoutAll(t *testing.T) {
	engine := newPostgresEngine(t)
	ctx := context.Background()

	email := uniqueEmail("lifecycle")
	tv := registerAndLogin(t, engine, email, "tv-1")
	phone, err := engine.Login(ctx, streamauth.LoginRequest{Email: email, Password: testPassword, DeviceID: "phone-1"})
	if err != nil {
		t.Fatalf("Login phone: %v", err)
	}

	rotated, err := engine.Refresh(ctx, tv.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if rotated.DeviceID != "tv-1" {
		t.Fatalf("expected tv-1, got %q", rotated.DeviceID)
	}

	n, err := engine.LogoutAll(ctx, tv.UserID)
	if err != nil {
		t.Fatalf("LogoutAll: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 devices removed, got %d", n)
	}

	for _, token := range []string{rotated.Tokens.RefreshToken, phone.Tokens.RefreshToken} {
		if _, err := engine.Refresh(ctx, token); !errors.Is(err, streamauth.ErrTokenRevoked) {
			t.Fatalf("expected ErrTokenRevoked after LogoutAll, got %v", err)
		}
	}
}
