// Package password implements password hashing and verification.
//
// # Formats
//
// New hashes are bcrypt with cost >= 12 ([Bcrypt]). Legacy Argon2id hashes in
// PHC format are still verified:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Multi] dispatches on the hash prefix, and its NeedsUpgrade reports true for
// legacy or under-cost hashes so the caller can re-hash after the next
// successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other streamauth package.
//   - Log plaintext passwords.
package password
