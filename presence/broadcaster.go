package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Update is the payload published after every membership change.
type Update struct {
	ContentID string `json:"contentId"`
	Count     int64  `json:"count"`
}

const subscriptionBuffer = 16

// RedisBroadcaster publishes updates on Redis Pub/Sub so any instance can
// deliver them to its own connected clients.
type RedisBroadcaster struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisBroadcaster creates a broadcaster using channels named
// prefix+contentID. The default prefix is "viewers:".
func NewRedisBroadcaster(redisClient redis.UniversalClient, prefix string) *RedisBroadcaster {
	if prefix == "" {
		prefix = "viewers:"
	}
	return &RedisBroadcaster{redis: redisClient, prefix: prefix}
}

// Channel returns the Pub/Sub channel for contentID.
func (b *RedisBroadcaster) Channel(contentID string) string {
	return b.prefix + contentID
}

// Publish sends u at most once. Delivery to subscribers is not guaranteed.
func (b *RedisBroadcaster) Publish(ctx context.Context, u Update) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if err := b.redis.Publish(ctx, b.Channel(u.ContentID), payload).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Subscription streams updates for one content id until closed or until
// the subscribing context is done.
type Subscription struct {
	Updates <-chan Update

	ps        *redis.PubSub
	done      chan struct{}
	closeOnce sync.Once
}

// Subscribe opens a subscription on the content's channel. The
// subscription is confirmed before Subscribe returns. Slow consumers miss
// updates rather than block the reader.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, contentID string) (*Subscription, error) {
	ps := b.redis.Subscribe(ctx, b.Channel(contentID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := make(chan Update, subscriptionBuffer)
	sub := &Subscription{
		Updates: out,
		ps:      ps,
		done:    make(chan struct{}),
	}

	msgs := ps.Channel()
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case <-sub.done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var u Update
				if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
					continue
				}
				select {
				case out <- u:
				default:
				}
			}
		}
	}()

	return sub, nil
}

// Close stops the subscription. It is safe to call more than once.
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
