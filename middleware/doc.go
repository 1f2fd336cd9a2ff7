// Package middleware exposes HTTP middleware that authenticates requests with
// streamauth access tokens.
//
// # Guards
//
//   - [Guard] verifies the bearer access token and stores the [streamauth.AuthResult]
//     in the request context.
//   - [RequireRole] rejects authenticated requests whose role is not allowed.
//   - [ClientMeta] copies the caller's address and user agent into the context
//     so audit events carry them.
//
// Access validation is stateless: a guard never touches Redis or the
// device store.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself; all decisions are delegated to
// Engine.ValidateAccess.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Access Redis or the device store.
//   - Make authorization decisions beyond role membership.
package middleware
