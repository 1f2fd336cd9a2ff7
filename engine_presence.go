package streamauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/streamauth/internal"
	"github.com/MrEthical07/streamauth/presence"
)

// StartWatching adds viewerID to the viewer set of contentID and returns the
// resulting count. Starting twice is a no-op. Count changes are broadcast on
// the content's channel; a failed broadcast does not fail the call.
func (e *Engine) StartWatching(ctx context.Context, contentID, viewerID string) (int64, error) {
	cid, vid, err := e.presenceArgs(contentID, viewerID)
	if err != nil {
		return 0, err
	}

	ctx, cancel := e.storeCtx(ctx)
	defer cancel()

	n, err := e.tracker.Start(ctx, cid, vid)
	if err != nil {
		return 0, e.presenceFailure("start", cid, err)
	}
	e.metricInc(MetricWatchStart)
	return n, nil
}

// StopWatching removes viewerID from the viewer set of contentID and returns
// the resulting count. Stopping a viewer that is not watching is a no-op.
func (e *Engine) StopWatching(ctx context.Context, contentID, viewerID string) (int64, error) {
	cid, vid, err := e.presenceArgs(contentID, viewerID)
	if err != nil {
		return 0, err
	}

	ctx, cancel := e.storeCtx(ctx)
	defer cancel()

	n, err := e.tracker.Stop(ctx, cid, vid)
	if err != nil {
		return 0, e.presenceFailure("stop", cid, err)
	}
	e.metricInc(MetricWatchStop)
	return n, nil
}

// Heartbeat refreshes the viewer's last-seen stamp when heartbeat mode is
// enabled and behaves like StartWatching otherwise.
func (e *Engine) Heartbeat(ctx context.Context, contentID, viewerID string) (int64, error) {
	cid, vid, err := e.presenceArgs(contentID, viewerID)
	if err != nil {
		return 0, err
	}

	ctx, cancel := e.storeCtx(ctx)
	defer cancel()

	n, err := e.tracker.Heartbeat(ctx, cid, vid)
	if err != nil {
		return 0, e.presenceFailure("heartbeat", cid, err)
	}
	return n, nil
}

// ViewerCount returns the number of current viewers of contentID.
func (e *Engine) ViewerCount(ctx context.Context, contentID string) (int64, error) {
	cid, err := e.contentArg(contentID)
	if err != nil {
		return 0, err
	}

	ctx, cancel := e.storeCtx(ctx)
	defer cancel()

	n, err := e.tracker.Count(ctx, cid)
	if err != nil {
		return 0, e.presenceFailure("count", cid, err)
	}
	return n, nil
}

// SweepPresence removes viewers whose last heartbeat is older than
// Presence.ViewerTTL across all content and returns how many were removed.
// It is a no-op when heartbeat mode is off.
func (e *Engine) SweepPresence(ctx context.Context) (int, error) {
	if e == nil || e.tracker == nil {
		return 0, ErrEngineNotReady
	}
	if e.config.Presence.ViewerTTL <= 0 {
		return 0, nil
	}

	n, err := e.tracker.SweepAll(ctx)
	e.metricAdd(MetricPresenceSwept, n)
	if err != nil {
		return n, e.storeUnavailable(err)
	}
	return n, nil
}

// PresenceSweeper returns a background loop calling SweepPresence every
// Presence.SweepInterval. ok is false when heartbeat mode is off.
func (e *Engine) PresenceSweeper() (sweeper *presence.Sweeper, ok bool) {
	if e == nil || e.config.Presence.ViewerTTL <= 0 {
		return nil, false
	}
	return presence.NewSweeper(e.SweepPresence, e.config.Presence.SweepInterval, e.logger), true
}

// SubscribeViewers streams count updates for contentID from any instance.
// The subscription ends when ctx is done or Close is called.
func (e *Engine) SubscribeViewers(ctx context.Context, contentID string) (*ViewerSubscription, error) {
	cid, err := e.contentArg(contentID)
	if err != nil {
		return nil, err
	}

	sub, err := e.broadcaster.Subscribe(ctx, cid)
	if err != nil {
		return nil, e.presenceFailure("subscribe", cid, err)
	}
	return sub, nil
}

func (e *Engine) contentArg(contentID string) (string, error) {
	if e == nil || e.tracker == nil {
		return "", ErrEngineNotReady
	}
	cid, ok := internal.NormalizeClientID(contentID)
	if !ok || len(cid) > e.config.Presence.MaxContentIDLen {
		return "", ErrInvalidRequest
	}
	return cid, nil
}

func (e *Engine) presenceArgs(contentID, viewerID string) (string, string, error) {
	cid, err := e.contentArg(contentID)
	if err != nil {
		return "", "", err
	}
	vid, ok := internal.NormalizeClientID(viewerID)
	if !ok {
		return "", "", ErrInvalidRequest
	}
	return cid, vid, nil
}

func (e *Engine) presenceFailure(operation, contentID string, err error) error {
	e.logger.Error("presence store failure", "operation", operation, "outcome", "store_unavailable",
		"content_id", contentID, "error", err)
	if errors.Is(err, presence.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return e.storeUnavailable(err)
	}
	return e.storeUnavailable(fmt.Errorf("presence %s: %w", operation, err))
}

func (e *Engine) onBroadcastError(contentID string, err error) {
	e.metricInc(MetricBroadcastFailure)
	e.logger.Warn("viewer count broadcast failed", "operation", "broadcast", "outcome", "failure",
		"content_id", contentID, "error", err)
}
