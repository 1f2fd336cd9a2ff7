// Package limiters implements the account lockout state machine on top of a
// Redis hash per user.
//
// # Key layout
//
//   - lockout:{userID}: hash with fields "failed" and "locked_until" (unix ms)
//
// Failures are applied by a Lua script so two concurrent wrong passwords can
// never both observe the same count. The key carries a TTL of at least the
// lock duration, so idle counters and expired locks disappear on their own.
//
// All methods treat an empty user id as a no-op.
//
// # What this package must NOT do
//
//   - Import streamauth or any sibling internal package.
//   - Decide the response to a locked account; flow functions do that.
package limiters
