package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/streamauth"
	"github.com/MrEthical07/streamauth/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const loadPassword = "loadtest-password-1"

type userState struct {
	email   string
	access  string
	refresh string
	mu      sync.Mutex
}

func main() {
	var (
		users       = flag.Int("users", 200, "number of accounts to register and log in")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase (validate, refresh, watch)")
		contents    = flag.Int("contents", 50, "distinct content ids for the watch phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 || *contents <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, ops and contents must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := streamauth.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("loadtest-access-secret-0123456789abcdef")
	cfg.JWT.RefreshSecret = []byte("loadtest-refresh-secret-0123456789abcde")
	cfg.Security.EnableIPThrottle = false
	cfg.Security.EnableRefreshThrottle = false

	store := memory.New()
	engine, err := streamauth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserStore(store).
		WithDeviceStore(store).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]*userState, *users)
	fmt.Printf("registering and logging in %d users...\n", *users)
	startSeed := time.Now()
	loginStats, err := runLoginPhase(ctx, engine, states, *concurrency)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		_, err := engine.ValidateAccess(ctx, states[r.Intn(len(states))].access)
		return err
	})
	refreshStats := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		s := states[r.Intn(len(states))]
		s.mu.Lock()
		defer s.mu.Unlock()
		res, err := engine.Refresh(ctx, s.refresh)
		if err != nil {
			return err
		}
		s.refresh = res.Tokens.RefreshToken
		s.access = res.Tokens.AccessToken
		return nil
	})
	watchStats := runPhase(*ops, *concurrency, func(r *rand.Rand, i int) error {
		contentID := fmt.Sprintf("content-%d", r.Intn(*contents))
		viewerID := fmt.Sprintf("viewer-%d", r.Intn(*users))
		var err error
		if i%2 == 0 {
			_, err = engine.StartWatching(ctx, contentID, viewerID)
		} else {
			_, err = engine.StopWatching(ctx, contentID, viewerID)
		}
		return err
	})

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)
	printStats("watch", watchStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("counters: login_success=%d refresh_success=%d refresh_reuse=%d watch_start=%d watch_stop=%d\n",
		snap.Counters[streamauth.MetricLoginSuccess],
		snap.Counters[streamauth.MetricRefreshSuccess],
		snap.Counters[streamauth.MetricRefreshReuseDetected],
		snap.Counters[streamauth.MetricWatchStart],
		snap.Counters[streamauth.MetricWatchStop],
	)
}

func runLoginPhase(ctx context.Context, engine *streamauth.Engine, states []*userState, concurrency int) (phaseStats, error) {
	var (
		errMu    sync.Mutex
		firstErr error
	)
	record := func(err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
	}
	stats := runPhase(len(states), concurrency, func(_ *rand.Rand, i int) error {
		email := fmt.Sprintf("load-%d@example.com", i)
		if _, err := engine.Register(ctx, streamauth.RegisterRequest{Email: email, Password: loadPassword}); err != nil {
			record(err)
			return err
		}
		res, err := engine.Login(ctx, streamauth.LoginRequest{Email: email, Password: loadPassword, DeviceID: "tv-1", DeviceType: "tv"})
		if err != nil {
			record(err)
			return err
		}
		states[i] = &userState{email: email, access: res.Tokens.AccessToken, refresh: res.Tokens.RefreshToken}
		return nil
	})
	return stats, firstErr
}

// runPhase executes op ops times across concurrency workers. op receives
// the global operation index.
func runPhase(ops, concurrency int, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
