// Package internal contains helpers that are private to streamauth: token
// digests used as store keys and identifier generation.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: flow orchestrators for login, refresh and logout
//   - limiters: account lockout state machine backed by Redis
//   - metrics: lock-free counters and latency histograms
//   - rate: fixed-window Redis counters for IP and refresh throttling
//   - security: effective policy report
//   - stores: refresh token revocation ledger
//   - bootstrap: server configuration loading
//
// # What this package must NOT do
//
//   - Export types that appear in the public streamauth API.
//   - Be imported by any package outside the streamauth module.
package internal
