// Package security derives the effective security policy report from the
// engine configuration.
//
// # What this package must NOT do
//
//   - Include secrets or key material in a report.
//   - Perform I/O.
package security
