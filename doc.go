// Package streamauth authenticates users of a streaming service, binds their
// sessions to a bounded set of devices, and counts who is watching each
// content item in real time.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build]. Every instance shares state through Redis and the durable
// stores, so any number of instances can serve the same users.
//
// # Architecture boundaries
//
// streamauth is the public surface. It exposes [Engine], [Builder], [Config],
// the store interfaces [UserStore] and [DeviceStore], and value types. Flow
// orchestration, lockout scripts, rate limiting, the revocation ledger and
// audit dispatch live under internal/ and are never exported. Presence
// tracking lives in the presence package so other services can reuse it.
//
// # What this package must NOT do
//
//   - Keep per-user or per-content state in process memory.
//   - Log or store raw refresh tokens; only their SHA-256 hash is persisted.
//   - Report success for a write the store did not acknowledge.
//   - Import any sub-package that re-imports streamauth (no import cycles).
//
// # Performance contract
//
// ValidateAccess is the hot path and performs no store round trip. Login,
// Refresh and Logout perform a bounded number of store calls, each limited
// by Store.OperationTimeout.
package streamauth
