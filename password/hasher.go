package password

import "errors"

const (
	// MinPasswordBytes is the shortest password accepted for hashing.
	MinPasswordBytes = 8
	// MaxPasswordBytes is the bcrypt input limit; longer inputs would be
	// silently truncated, so they are rejected instead.
	MaxPasswordBytes = 72
)

var (
	// ErrPasswordTooShort is returned by Hash for passwords under MinPasswordBytes.
	ErrPasswordTooShort = errors.New("password too short")
	// ErrPasswordTooLong is returned for passwords over MaxPasswordBytes.
	ErrPasswordTooLong = errors.New("password too long")
	// ErrUnsupportedHash is returned when a stored hash has an unknown format.
	ErrUnsupportedHash = errors.New("unsupported password hash format")
)

// Hasher hashes and verifies passwords. Verify returns (false, nil) on a
// mismatch and a non-nil error only for malformed hashes or oversize input.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

func checkLength(password string) error {
	if len(password) < MinPasswordBytes {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}
