package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps transport failures from the presence store.
var ErrUnavailable = errors.New("presence store unavailable")

// Config controls key layout and the optional heartbeat mode.
type Config struct {
	// KeyPrefix prefixes the per-content viewer set. The content id is
	// wrapped in a hash tag so the set and its last-seen index share a slot.
	KeyPrefix string
	// IndexKey names the set of content ids with stamped viewers.
	IndexKey string
	// ViewerTTL enables heartbeat mode when positive: viewers not seen for
	// this long are removed by Sweep.
	ViewerTTL time.Duration
}

// Publisher delivers count updates to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, u Update) error
}

// Tracker maintains one Redis set of viewer ids per content item.
type Tracker struct {
	redis   redis.UniversalClient
	config  Config
	pub     Publisher
	now     func() time.Time
	onError func(contentID string, err error)
}

// Option customizes a [Tracker].
type Option func(*Tracker)

// WithClock overrides the clock used for last-seen stamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithBroadcastErrorHandler is called when a publish fails. Publish
// failures never fail the presence operation itself.
func WithBroadcastErrorHandler(fn func(contentID string, err error)) Option {
	return func(t *Tracker) { t.onError = fn }
}

// NewTracker creates a Tracker. pub may be nil to disable broadcasting.
func NewTracker(redisClient redis.UniversalClient, cfg Config, pub Publisher, opts ...Option) *Tracker {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "presence:"
	}
	if cfg.IndexKey == "" {
		cfg.IndexKey = cfg.KeyPrefix + "index"
	}
	t := &Tracker{
		redis:  redisClient,
		config: cfg,
		pub:    pub,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) setKey(contentID string) string {
	return t.config.KeyPrefix + "{" + contentID + "}"
}

func (t *Tracker) seenKey(contentID string) string {
	return t.setKey(contentID) + ":seen"
}

func (t *Tracker) heartbeatMode() bool {
	return t.config.ViewerTTL > 0
}

// Start adds viewerID to the content's viewer set and returns the new
// count. Starting twice is a no-op for the count. The count is broadcast
// after every start.
func (t *Tracker) Start(ctx context.Context, contentID, viewerID string) (int64, error) {
	count, _, err := t.add(ctx, contentID, viewerID)
	if err != nil {
		return 0, err
	}
	t.broadcast(ctx, contentID, count)
	return count, nil
}

// Heartbeat refreshes the viewer's last-seen stamp. A viewer that was swept
// is re-added and only then is the count broadcast.
func (t *Tracker) Heartbeat(ctx context.Context, contentID, viewerID string) (int64, error) {
	count, changed, err := t.add(ctx, contentID, viewerID)
	if err != nil {
		return 0, err
	}
	if changed {
		t.broadcast(ctx, contentID, count)
	}
	return count, nil
}

// Stop removes viewerID and returns the new count. Stopping a viewer that
// is not present leaves the count unchanged. The count is broadcast after
// every stop.
func (t *Tracker) Stop(ctx context.Context, contentID, viewerID string) (int64, error) {
	var card *redis.IntCmd
	_, err := t.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, t.setKey(contentID), viewerID)
		pipe.ZRem(ctx, t.seenKey(contentID), viewerID)
		card = pipe.SCard(ctx, t.setKey(contentID))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	count := card.Val()
	t.broadcast(ctx, contentID, count)
	return count, nil
}

// Count returns the current number of viewers of contentID.
func (t *Tracker) Count(ctx context.Context, contentID string) (int64, error) {
	n, err := t.redis.SCard(ctx, t.setKey(contentID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

func (t *Tracker) add(ctx context.Context, contentID, viewerID string) (int64, bool, error) {
	var (
		added *redis.IntCmd
		card  *redis.IntCmd
	)
	_, err := t.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		added = pipe.SAdd(ctx, t.setKey(contentID), viewerID)
		if t.heartbeatMode() {
			pipe.ZAdd(ctx, t.seenKey(contentID), redis.Z{
				Score:  float64(t.now().UnixMilli()),
				Member: viewerID,
			})
		}
		card = pipe.SCard(ctx, t.setKey(contentID))
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if t.heartbeatMode() {
		if err := t.redis.SAdd(ctx, t.config.IndexKey, contentID).Err(); err != nil {
			return 0, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	return card.Val(), added.Val() > 0, nil
}

// KEYS[1] viewer set, KEYS[2] last-seen zset
// ARGV[1] cutoff unix ms
// Returns {removed, remaining, stamped}.
var sweepScript = redis.NewScript(`
local stale = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for _, member in ipairs(stale) do
  redis.call('SREM', KEYS[1], member)
  redis.call('ZREM', KEYS[2], member)
end
return {#stale, redis.call('SCARD', KEYS[1]), redis.call('ZCARD', KEYS[2])}
`)

// Sweep removes viewers of contentID whose last heartbeat is older than
// ViewerTTL and returns the number removed. It is a no-op when heartbeat
// mode is off.
func (t *Tracker) Sweep(ctx context.Context, contentID string) (int, error) {
	if !t.heartbeatMode() {
		return 0, nil
	}

	cutoff := t.now().Add(-t.config.ViewerTTL).UnixMilli()
	raw, err := sweepScript.Run(ctx, t.redis,
		[]string{t.setKey(contentID), t.seenKey(contentID)},
		strconv.FormatInt(cutoff, 10),
	).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(raw) != 3 {
		return 0, fmt.Errorf("%w: unexpected sweep reply", ErrUnavailable)
	}

	removed, remaining, stamped := raw[0], raw[1], raw[2]
	if stamped == 0 {
		if err := t.redis.SRem(ctx, t.config.IndexKey, contentID).Err(); err != nil {
			return int(removed), fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if removed > 0 {
		t.broadcast(ctx, contentID, remaining)
	}
	return int(removed), nil
}

// SweepAll runs Sweep for every content id with stamped viewers and returns
// the total number of viewers removed. It keeps going past per-content
// failures and returns the first error seen.
func (t *Tracker) SweepAll(ctx context.Context) (int, error) {
	if !t.heartbeatMode() {
		return 0, nil
	}

	ids, err := t.redis.SMembers(ctx, t.config.IndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var (
		total    int
		firstErr error
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		n, err := t.Sweep(ctx, id)
		total += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return total, firstErr
}

func (t *Tracker) broadcast(ctx context.Context, contentID string, count int64) {
	if t.pub == nil {
		return
	}
	if err := t.pub.Publish(ctx, Update{ContentID: contentID, Count: count}); err != nil && t.onError != nil {
		t.onError(contentID, err)
	}
}
