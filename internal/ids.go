package internal

import (
	"strings"

	"github.com/google/uuid"
)

const maxClientIDLength = 128

// NewTokenID returns a random identifier for the jti claim.
func NewTokenID() string {
	return uuid.NewString()
}

// NewDeviceID returns a server-generated device identifier used when the
// client does not supply one.
func NewDeviceID() string {
	return uuid.NewString()
}

// NormalizeClientID trims a client-supplied identifier and rejects values
// that are empty or too long to be used as a store key.
func NormalizeClientID(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > maxClientIDLength {
		return "", false
	}
	for _, r := range id {
		if r < 0x21 || r == 0x7f {
			return "", false
		}
	}
	return id, true
}

// NewUserID returns a random identifier for a newly registered account.
func NewUserID() string {
	return uuid.NewString()
}
