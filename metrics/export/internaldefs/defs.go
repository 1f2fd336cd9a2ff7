package internaldefs

import (
	"github.com/MrEthical07/streamauth"
)

// CounterDef binds a counter MetricID to its exported name.
type CounterDef struct {
	ID   streamauth.MetricID
	Name string
	Help string
}

// HistogramDef binds a histogram MetricID to its exported name.
type HistogramDef struct {
	ID   streamauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: streamauth.MetricLoginSuccess, Name: "streamauth_login_success_total", Help: "Successful login attempts."},
	{ID: streamauth.MetricLoginFailure, Name: "streamauth_login_failure_total", Help: "Failed login attempts."},
	{ID: streamauth.MetricLoginRateLimited, Name: "streamauth_login_rate_limited_total", Help: "Login attempts rejected by the per-IP throttle."},
	{ID: streamauth.MetricLoginLockedRejected, Name: "streamauth_login_locked_rejected_total", Help: "Login attempts rejected because the account was locked."},
	{ID: streamauth.MetricAccountLocked, Name: "streamauth_account_locked_total", Help: "Accounts locked after reaching the failure threshold."},
	{ID: streamauth.MetricAccountUnlocked, Name: "streamauth_account_unlocked_total", Help: "Manual account unlocks."},
	{ID: streamauth.MetricRefreshSuccess, Name: "streamauth_refresh_success_total", Help: "Successful refresh operations."},
	{ID: streamauth.MetricRefreshFailure, Name: "streamauth_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: streamauth.MetricRefreshReuseDetected, Name: "streamauth_refresh_reuse_detected_total", Help: "Refresh tokens presented after revocation or rotation."},
	{ID: streamauth.MetricRefreshRateLimited, Name: "streamauth_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: streamauth.MetricDeviceBound, Name: "streamauth_device_bound_total", Help: "Device bindings created or updated on login."},
	{ID: streamauth.MetricDeviceQuotaExceeded, Name: "streamauth_device_quota_exceeded_total", Help: "Logins rejected by the device quota."},
	{ID: streamauth.MetricLogout, Name: "streamauth_logout_total", Help: "Single-device logout operations."},
	{ID: streamauth.MetricLogoutAll, Name: "streamauth_logout_all_total", Help: "Logout-all operations."},
	{ID: streamauth.MetricAccountCreationSuccess, Name: "streamauth_account_creation_success_total", Help: "Successful account creations."},
	{ID: streamauth.MetricAccountCreationDuplicate, Name: "streamauth_account_creation_duplicate_total", Help: "Account creation attempts rejected as duplicate."},
	{ID: streamauth.MetricWatchStart, Name: "streamauth_watch_start_total", Help: "Start-watching operations."},
	{ID: streamauth.MetricWatchStop, Name: "streamauth_watch_stop_total", Help: "Stop-watching operations."},
	{ID: streamauth.MetricPresenceSwept, Name: "streamauth_presence_swept_total", Help: "Stale viewers removed by the presence sweeper."},
	{ID: streamauth.MetricBroadcastFailure, Name: "streamauth_broadcast_failure_total", Help: "Viewer count broadcasts that failed to publish."},
	{ID: streamauth.MetricStoreUnavailable, Name: "streamauth_store_unavailable_total", Help: "Operations failed by an unavailable store."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: streamauth.MetricValidateLatency, Name: "streamauth_validate_latency_seconds", Help: "Access token validation latency."},
	{ID: streamauth.MetricRefreshLatency, Name: "streamauth_refresh_latency_seconds", Help: "Refresh operation latency."},
}

// HistogramBounds are the upper bounds, in seconds, of the engine's latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix renders HistogramBounds as metric name suffixes.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
