//go:build integration
// +build integration

package test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/streamauth"
	"github.com/MrEthical07/streamauth/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const testPassword = "correct-horse-battery"

// redisMode describes which Redis backend a suite is running against.
type redisMode struct {
	name  string
	setup func(t *testing.T) (redis.UniversalClient, func())
}

// redisModes returns the set of Redis backends to test.
// miniredis is always available.
// Real Redis standalone is used when REDIS_ADDR is set (e.g. "127.0.0.1:6379").
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				mr, err := miniredis.Run()
				if err != nil {
					t.Fatalf("miniredis: %v", err)
				}
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				return rdb, func() { _ = rdb.Close(); mr.Close() }
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				rdb.FlushDB(context.Background())
				return rdb, func() { rdb.FlushDB(context.Background()); _ = rdb.Close() }
			},
		})
	}

	// Cluster mode: when REDIS_CLUSTER_ADDRS is set (comma-separated).
	if addrs := os.Getenv("REDIS_CLUSTER_ADDRS"); addrs != "" {
		modes = append(modes, redisMode{
			name: "cluster",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClusterClient(&redis.ClusterOptions{Addrs: splitAddrs(addrs)})
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis cluster: %v", err)
				}
				return rdb, func() { _ = rdb.Close() }
			},
		})
	}

	return modes
}

func splitAddrs(s string) []string {
	var addrs []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

func testConfig() streamauth.Config {
	cfg := streamauth.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-0123456789abcdefghijkl")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-0123456789abcdefghijk")
	return cfg
}

func newEngine(t *testing.T, rdb redis.UniversalClient, cfg streamauth.Config, users streamauth.UserStore, devices streamauth.DeviceStore) *streamauth.Engine {
	t.Helper()

	if users == nil || devices == nil {
		store := memory.New()
		users, devices = store, store
	}
	engine, err := streamauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(users).
		WithDeviceStore(devices).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

// uniqueID avoids collisions on shared backends that are not flushed.
func uniqueID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

func uniqueEmail(prefix string) string {
	return uniqueID(prefix) + "@example.com"
}

func registerAndLogin(t *testing.T, engine *streamauth.Engine, email, deviceID string) *streamauth.LoginResult {
	t.Helper()

	ctx := context.Background()
	if _, err := engine.Register(ctx, streamauth.RegisterRequest{Email: email, Password: testPassword}); err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	res, err := engine.Login(ctx, streamauth.LoginRequest{Email: email, Password: testPassword, DeviceID: deviceID})
	if err != nil {
		t.Fatalf("Login(%s): %v", email, err)
	}
	return res
}
