// Package rate provides fixed-window Redis counters used to throttle failed
// logins per client IP and refresh calls per user.
//
// # Window semantics
//
// INCR and EXPIRE NX run in one MULTI/EXEC, so the window starts at the first
// hit and a crash between the two commands cannot leave an immortal counter.
// Key prefixes:
//   - ratelimit:login:ip:{ip}: failed logins per client IP
//   - ratelimit:refresh:{user}: refresh calls per user
//
// # What this package must NOT do
//
//   - Implement account lockout (that lives in internal/limiters).
//   - Be imported outside the streamauth module.
package rate
