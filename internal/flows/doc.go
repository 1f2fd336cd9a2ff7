// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunLogin, RunRefresh, RunLogout, RunRegister,
// RunValidate) accepts a typed dependency struct and returns results without
// side-effects beyond those dependencies. Tests drive the flows with
// in-memory closures; the Engine wires them to Redis, the durable stores and
// the JWT manager.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the user and device stores, lockout
// limiter, revocation ledger, JWT manager, rate limiter, audit and metrics.
// They do NOT own any of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import streamauth (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency closures.
package flows
