package presence

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestBroadcasterDeliversUpdates(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	b := NewRedisBroadcaster(rdb, "")
	tr := NewTracker(rdb, Config{}, b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := b.Subscribe(ctx, "movie-9")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	if _, err := tr.Start(ctx, "movie-9", "u1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case u := <-sub.Updates:
		if u.ContentID != "movie-9" || u.Count != 1 {
			t.Fatalf("unexpected update %+v", u)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
	}
}

func TestSubscriptionClosesWithContext(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := NewRedisBroadcaster(rdb, "").Subscribe(ctx, "c")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()

	select {
	case _, ok := <-sub.Updates:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not close")
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestSweeperRunsUntilCancelled(t *testing.T) {
	var calls atomic.Int32
	s := NewSweeper(func(context.Context) (int, error) {
		calls.Add(1)
		return 1, nil
	}, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls.Load() < 2 {
		t.Fatalf("expected repeated sweeps, got %d", calls.Load())
	}
}
