// Package stores provides the Redis-backed refresh token revocation ledger.
//
// # Design
//
// The ledger holds one key per revoked token hash, "revoked:{sha256 hex}",
// with a TTL matching the token's remaining lifetime. Logout writes an entry
// with SET. Refresh rotation claims the presented token with SET NX, which
// is the single linearization point that lets exactly one concurrent
// rotation of a token succeed.
//
// # Architecture boundaries
//
// This package owns persistence for revocation entries. It does NOT parse
// tokens or make authentication decisions; those belong to the flow
// functions in internal/flows.
//
// # What this package must NOT do
//
//   - Import streamauth or any sibling internal package.
//   - Store plaintext refresh tokens.
package stores
