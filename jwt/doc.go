// Package jwt issues and verifies the two token classes used by streamauth:
// short-lived access tokens carrying {sub, role, exp} and long-lived refresh
// tokens carrying {sub, exp}. Both are HS256 with distinct secrets and are
// decoded into typed claims with strict validation (algorithm allow-list,
// required expiry, optional issuer and audience, non-empty subject).
package jwt
