package streamauth

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/streamauth/internal/flows"
)

// Refresh exchanges a refresh token for a new pair and rotates the device
// binding. The presented token is written to the revocation ledger, so it
// can be used exactly once; of two concurrent refreshes of the same token
// one wins and the other gets ErrTokenRevoked.
//
// A bad signature, wrong class or expired token returns ErrInvalidToken. A
// ledger hit, a token no longer bound to a device, or an account that is
// not Active returns ErrTokenRevoked.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if e == nil || !e.flow.Initialized() {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.Observe(MetricRefreshLatency, time.Since(start))
		}
	}()

	res := e.flow.Refresh(ctx, refreshToken)
	switch res.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, "", res.DeviceID, nil, nil)
		return &RefreshResult{
			UserID:   res.UserID,
			DeviceID: res.DeviceID,
			Tokens:   tokenPairFromFlow(res.Pair),
		}, nil

	case flows.RefreshFailureDecode:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", "", ErrInvalidToken, nil)
		return nil, ErrInvalidToken

	case flows.RefreshFailureRateLimited:
		e.metricInc(MetricRefreshRateLimited)
		e.emitAudit(ctx, auditEventRefreshRateLimited, false, res.UserID, "", "", ErrRefreshRateLimited, nil)
		return nil, ErrRefreshRateLimited

	case flows.RefreshFailureRevoked, flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshReuseDetected)
		reason := "ledger"
		if res.Failure == flows.RefreshFailureReuse {
			reason = "concurrent"
		}
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, res.UserID, "", res.DeviceID, ErrTokenRevoked, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		e.logger.Warn("refresh token reuse", "operation", "refresh", "outcome", "reuse_detected",
			"user_id", res.UserID, "device_id", res.DeviceID, "reason", reason)
		return nil, ErrTokenRevoked

	case flows.RefreshFailureDeviceNotFound, flows.RefreshFailureAccountStatus, flows.RefreshFailureRotate:
		e.metricInc(MetricRefreshFailure)
		reason := "device_not_bound"
		switch res.Failure {
		case flows.RefreshFailureAccountStatus:
			reason = "account_status"
		case flows.RefreshFailureRotate:
			reason = "binding_changed"
		}
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, "", res.DeviceID, ErrTokenRevoked, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return nil, ErrTokenRevoked

	case flows.RefreshFailureStore:
		e.metricInc(MetricRefreshFailure)
		err := e.storeUnavailable(res.Err)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, "", res.DeviceID, err, nil)
		e.logger.Error("refresh store failure", "operation", "refresh", "outcome", "store_unavailable",
			"user_id", res.UserID, "error", res.Err)
		return nil, err

	default:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, "", res.DeviceID, res.Err, nil)
		return nil, fmt.Errorf("streamauth: refresh: %w", res.Err)
	}
}

// Logout revokes the refresh token and removes its device binding. The
// ledger write comes first; when it fails the logout fails with
// ErrStoreUnavailable and the binding is left in place. Logging out an
// already unbound token succeeds.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || !e.flow.Initialized() {
		return ErrEngineNotReady
	}

	res := e.flow.Logout(ctx, refreshToken)
	switch res.Failure {
	case flows.LogoutFailureNone:
		e.metricInc(MetricLogout)
		e.emitAudit(ctx, auditEventLogoutDevice, true, res.UserID, "", "", nil, func() map[string]string {
			if res.DeviceRemoved {
				return map[string]string{"device_removed": "true"}
			}
			return map[string]string{"device_removed": "false"}
		})
		return nil
	case flows.LogoutFailureDecode:
		e.emitAudit(ctx, auditEventLogoutDevice, false, "", "", "", ErrInvalidToken, nil)
		return ErrInvalidToken
	default:
		err := e.storeUnavailable(res.Err)
		e.emitAudit(ctx, auditEventLogoutDevice, false, res.UserID, "", "", err, nil)
		e.logger.Error("logout store failure", "operation", "logout", "outcome", "store_unavailable",
			"user_id", res.UserID, "error", res.Err)
		return err
	}
}

// LogoutAll removes every device binding of userID and returns how many were
// removed. Access tokens already issued stay valid until they expire.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	if e == nil || !e.flow.Initialized() {
		return 0, ErrEngineNotReady
	}
	if strings.TrimSpace(userID) == "" {
		return 0, ErrInvalidRequest
	}

	n, err := e.flow.LogoutAll(ctx, userID)
	if err != nil {
		err = e.storeUnavailable(err)
		e.emitAudit(ctx, auditEventLogoutAll, false, userID, "", "", err, nil)
		return 0, err
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", "", nil, func() map[string]string {
		return map[string]string{"devices_removed": strconv.Itoa(n)}
	})
	return n, nil
}

// LogoutDevice removes one device of userID by id. Its refresh token stops
// working because it no longer matches a bound device. ErrDeviceNotFound is
// returned when the user has no such device.
func (e *Engine) LogoutDevice(ctx context.Context, userID, deviceID string) error {
	if e == nil || e.devices == nil {
		return ErrEngineNotReady
	}
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(deviceID) == "" {
		return ErrInvalidRequest
	}

	sctx, cancel := e.storeCtx(ctx)
	removed, err := e.devices.RemoveDevice(sctx, userID, deviceID)
	cancel()
	if err != nil {
		err = e.storeUnavailable(err)
		e.emitAudit(ctx, auditEventLogoutDevice, false, userID, "", deviceID, err, nil)
		return err
	}
	if !removed {
		return ErrDeviceNotFound
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutDevice, true, userID, "", deviceID, nil, func() map[string]string {
		return map[string]string{"device_removed": "true"}
	})
	return nil
}

// Devices lists the devices bound to userID, most recently active first.
func (e *Engine) Devices(ctx context.Context, userID string) ([]DeviceInfo, error) {
	if e == nil || e.devices == nil {
		return nil, ErrEngineNotReady
	}
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidRequest
	}

	ctx, cancel := e.storeCtx(ctx)
	defer cancel()

	records, err := e.devices.ListDevices(ctx, userID)
	if err != nil {
		return nil, e.storeUnavailable(err)
	}

	out := make([]DeviceInfo, 0, len(records))
	for _, d := range records {
		out = append(out, DeviceInfo{
			DeviceID:     d.DeviceID,
			DeviceType:   d.DeviceType,
			IP:           d.IP,
			UserAgent:    d.UserAgent,
			LoggedInAt:   d.LoggedInAt,
			LastActiveAt: d.LastActiveAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActiveAt.After(out[j].LastActiveAt)
	})
	return out, nil
}

// ValidateAccess verifies an access token locally: signature, algorithm,
// expiry, issuer and audience. It performs no store lookup, so a token
// stays valid until expiry even after logout.
func (e *Engine) ValidateAccess(_ context.Context, tokenStr string) (*AuthResult, error) {
	if e == nil || !e.flow.Initialized() {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}
	}()

	res := e.flow.Validate(tokenStr)
	if res.Failure != flows.ValidateFailureNone || res.Claims == nil {
		return nil, ErrInvalidToken
	}

	out := &AuthResult{
		UserID:  res.Claims.Subject,
		Role:    res.Claims.Role,
		TokenID: res.Claims.ID,
	}
	if res.Claims.ExpiresAt != nil {
		out.ExpiresAt = res.Claims.ExpiresAt.Time
	}
	return out, nil
}

