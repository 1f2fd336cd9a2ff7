package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrLedgerUnavailable wraps transport failures from the revocation ledger.
	ErrLedgerUnavailable = errors.New("revocation ledger unavailable")
)

// minClaimTTL keeps a claim marker alive long enough to reject a racing
// second caller even when the token is about to expire.
const minClaimTTL = time.Second

// RevocationLedger records refresh token hashes that must never be accepted
// again. Entries carry a TTL equal to the token's remaining lifetime, so the
// ledger never outgrows the set of tokens that could still verify.
type RevocationLedger struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRevocationLedger creates a ledger storing entries under prefix.
func NewRevocationLedger(redisClient redis.UniversalClient, prefix string) *RevocationLedger {
	if prefix == "" {
		prefix = "revoked:"
	}
	return &RevocationLedger{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (l *RevocationLedger) key(tokenHash string) string {
	return l.prefix + tokenHash
}

// IsRevoked reports whether tokenHash has an entry in the ledger.
func (l *RevocationLedger) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	n, err := l.redis.Exists(ctx, l.key(tokenHash)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return n > 0, nil
}

// Revoke adds tokenHash to the ledger for ttl. A non-positive ttl means the
// token has already expired and nothing is written.
func (l *RevocationLedger) Revoke(ctx context.Context, tokenHash string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := l.redis.Set(ctx, l.key(tokenHash), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return nil
}

// Claim atomically adds tokenHash to the ledger if absent. Exactly one
// concurrent caller observes true for a given hash; every later caller
// observes false.
func (l *RevocationLedger) Claim(ctx context.Context, tokenHash string, ttl time.Duration) (bool, error) {
	if ttl < minClaimTTL {
		ttl = minClaimTTL
	}
	ok, err := l.redis.SetNX(ctx, l.key(tokenHash), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return ok, nil
}

// Release removes a claim taken by Claim. It is used when the refresh that
// claimed tokenHash fails before the device binding moved on, so the token
// stays usable for a retry.
func (l *RevocationLedger) Release(ctx context.Context, tokenHash string) error {
	if err := l.redis.Del(ctx, l.key(tokenHash)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return nil
}
