package streamauth_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/streamauth"
	"github.com/MrEthical07/streamauth/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "correct-horse-battery"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().Truncate(time.Second)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() streamauth.Config {
	cfg := streamauth.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-0123456789abcdefghijkl")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-0123456789abcdefghijk")
	return cfg
}

type testEnv struct {
	engine *streamauth.Engine
	store  *memory.Store
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	clock  *fakeClock
}

type envOption func(*streamauth.Builder)

func newTestEnv(t testing.TB, cfg streamauth.Config, opts ...envOption) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := memory.New()
	clock := newFakeClock()

	b := streamauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(store).
		WithDeviceStore(store).
		WithClock(clock.Now)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})

	return &testEnv{engine: engine, store: store, mr: mr, rdb: rdb, clock: clock}
}

// deadRedisEngine builds an engine sharing cfg but pointing at an address
// nothing listens on.
func deadRedisEngine(t *testing.T, cfg streamauth.Config, store *memory.Store) *streamauth.Engine {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	engine, err := streamauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(store).
		WithDeviceStore(store).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
	})
	return engine
}

func (env *testEnv) register(t testing.TB, email string) string {
	t.Helper()

	userID, err := env.engine.Register(context.Background(), streamauth.RegisterRequest{
		Email:    email,
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return userID
}

func (env *testEnv) login(ctx context.Context, email, password, deviceID string) (*streamauth.LoginResult, error) {
	return env.engine.Login(ctx, streamauth.LoginRequest{
		Email:    email,
		Password: password,
		DeviceID: deviceID,
	})
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
