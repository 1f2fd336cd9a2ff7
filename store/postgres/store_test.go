package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/streamauth"
	"github.com/MrEthical07/streamauth/store/postgres"
	"github.com/google/uuid"
)

func newStore(t *testing.T) *postgres.Store {
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
	if err := postgres.Migrate(ctx, db, nil); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := db.Exec("TRUNCATE devices, users").Error; err != nil {
		t.Fatalf("truncate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return postgres.New(db)
}

func createUser(t *testing.T, s *postgres.Store, email string) string {
	t.Helper()

	id := uuid.NewString()
	err := s.CreateUser(context.Background(), streamauth.UserRecord{
		UserID:       id,
		Email:        email,
		PasswordHash: "$2a$12$placeholder",
		Role:         "viewer",
		Status:       streamauth.AccountActive,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return id
}

func device(userID, deviceID string) streamauth.DeviceRecord {
	now := time.Now().UTC()
	return streamauth.DeviceRecord{
		UserID:       userID,
		DeviceID:     deviceID,
		DeviceType:   streamauth.DeviceTV,
		TokenHash:    "hash-" + userID + "-" + deviceID,
		LoggedInAt:   now,
		LastActiveAt: now,
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	s := newStore(t)
	createUser(t, s, "dup@example.com")

	err := s.CreateUser(context.Background(), streamauth.UserRecord{
		UserID:    uuid.NewString(),
		Email:     " DUP@example.com ",
		Role:      "viewer",
		CreatedAt: time.Now().UTC(),
	})
	if !errors.Is(err, streamauth.ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}

	u, err := s.GetUserByEmail(context.Background(), "Dup@Example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if u.Status != streamauth.AccountActive {
		t.Fatalf("expected active, got %v", u.Status)
	}
}

func TestRecordLoginAndStatus(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	id := createUser(t, s, "rec@example.com")

	at := time.Now().UTC().Truncate(time.Second)
	if err := s.RecordLogin(ctx, id, at, "203.0.113.7", "tv-1"); err != nil {
		t.Fatalf("RecordLogin: %v", err)
	}
	if err := s.SetStatus(ctx, id, streamauth.AccountSuspended); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	u, err := s.GetUserByID(ctx, id)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if !u.LastLoginAt.Equal(at) || u.LastLoginIP != "203.0.113.7" || u.LastLoginDevice != "tv-1" {
		t.Fatalf("unexpected login record: %+v", u)
	}
	if u.Status != streamauth.AccountSuspended {
		t.Fatalf("expected suspended, got %v", u.Status)
	}
	if err := s.RecordLogin(ctx, "missing", at, "", ""); !errors.Is(err, streamauth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestBindDeviceQuotaConcurrent(t *testing.T) {
	s := newStore(t)
	id := createUser(t, s, "quota@example.com")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		quota   int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.BindDevice(context.Background(), device(id, fmt.Sprintf("d%d", i)), 5)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && ok:
				created++
			case errors.Is(err, streamauth.ErrDeviceQuotaExceeded):
				quota++
			default:
				t.Errorf("unexpected bind result: %v %v", ok, err)
			}
		}(i)
	}
	wg.Wait()

	if created != 5 || quota != 7 {
		t.Fatalf("expected 5 created and 7 rejected, got %d and %d", created, quota)
	}
}

func TestBindKnownDeviceAndRotate(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	id := createUser(t, s, "rotate@example.com")

	d := device(id, "tv-1")
	if created, err := s.BindDevice(ctx, d, 1); err != nil || !created {
		t.Fatalf("first bind: %v %v", created, err)
	}
	d.TokenHash = "rebound"
	if created, err := s.BindDevice(ctx, d, 1); err != nil || created {
		t.Fatalf("rebind: %v %v", created, err)
	}

	if err := s.RotateDeviceToken(ctx, id, "tv-1", "stale", "next", time.Now()); !errors.Is(err, streamauth.ErrDeviceNotFound) {
		t.Fatalf("expected compare-and-swap miss, got %v", err)
	}
	if err := s.RotateDeviceToken(ctx, id, "tv-1", "rebound", "next", time.Now()); err != nil {
		t.Fatalf("RotateDeviceToken: %v", err)
	}
	got, err := s.FindDeviceByTokenHash(ctx, "next")
	if err != nil || got.DeviceID != "tv-1" {
		t.Fatalf("FindDeviceByTokenHash: %+v %v", got, err)
	}
}

func TestRemoveDevices(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	id := createUser(t, s, "remove@example.com")

	for _, did := range []string{"a", "b", "c"} {
		if _, err := s.BindDevice(ctx, device(id, did), 5); err != nil {
			t.Fatalf("BindDevice(%s): %v", did, err)
		}
	}

	removed, err := s.RemoveDeviceByTokenHash(ctx, id, "hash-"+id+"-a")
	if err != nil || !removed {
		t.Fatalf("RemoveDeviceByTokenHash: %v %v", removed, err)
	}
	if removed, _ := s.RemoveDevice(ctx, id, "a"); removed {
		t.Fatal("device a already removed")
	}
	n, err := s.RemoveAllDevices(ctx, id)
	if err != nil || n != 2 {
		t.Fatalf("RemoveAllDevices: %d %v", n, err)
	}
	list, err := s.ListDevices(ctx, id)
	if err != nil || len(list) != 0 {
		t.Fatalf("ListDevices: %v %v", list, err)
	}
}
