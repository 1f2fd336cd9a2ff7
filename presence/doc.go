// Package presence counts concurrent viewers per content item in Redis and
// broadcasts count changes over Redis Pub/Sub.
//
// # Data layout
//
//	presence:{contentId}       SET   viewer ids
//	presence:{contentId}:seen  ZSET  viewer id -> last heartbeat (unix ms)
//	presence:index             SET   content ids with stamped viewers
//	viewers:<contentId>        channel carrying {"contentId": ..., "count": n}
//
// The content id is wrapped in a hash tag so the set and its last-seen index
// live in one cluster slot and can share a MULTI/EXEC or Lua script.
//
// # Semantics
//
// Start and Stop are idempotent: the add or remove and the cardinality read
// run in one transaction, and a broadcast is sent only when membership
// changed. Broadcasts are best-effort and at-most-once; publish failures
// are reported through the error handler and never fail the operation.
//
// Heartbeat mode is opt-in (ViewerTTL > 0). Without it, viewers leave only
// through Stop. With it, Sweep removes viewers whose last heartbeat is
// older than ViewerTTL, and [Sweeper] runs sweeps in the background.
//
// # What this package must NOT do
//
//   - Keep a process-local map of viewers.
//   - Authenticate viewers; callers pass already-verified ids.
package presence
