package streamauth

import (
	"context"
	"strings"
)

// LockoutStatus reports the failed-attempt count and lock expiry of userID.
// An expired lock is reported as an empty state.
func (e *Engine) LockoutStatus(ctx context.Context, userID string) (LockoutState, error) {
	if e == nil || e.lockout == nil {
		return LockoutState{}, ErrEngineNotReady
	}
	if strings.TrimSpace(userID) == "" {
		return LockoutState{}, ErrInvalidRequest
	}

	ctx, cancel := e.storeCtx(ctx)
	defer cancel()

	state, err := e.lockout.Status(ctx, userID, e.now())
	if err != nil {
		return LockoutState{}, e.storeUnavailable(err)
	}
	return LockoutState{
		FailedAttempts: state.Failed,
		LockedUntil:    state.LockedUntil,
	}, nil
}

// Unlock clears the failure counter and any lock of userID. It is meant for
// operator tooling.
func (e *Engine) Unlock(ctx context.Context, userID string) error {
	if e == nil || e.lockout == nil {
		return ErrEngineNotReady
	}
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidRequest
	}

	sctx, cancel := e.storeCtx(ctx)
	err := e.lockout.Reset(sctx, userID)
	cancel()
	if err != nil {
		return e.storeUnavailable(err)
	}

	e.metricInc(MetricAccountUnlocked)
	e.emitAudit(ctx, auditEventAccountUnlocked, true, userID, "", "", nil, nil)
	e.logger.Info("account unlocked", "operation", "unlock", "outcome", "success", "user_id", userID)
	return nil
}
