package password

// Multi hashes with bcrypt and verifies either bcrypt or legacy Argon2id
// hashes based on their prefix.
type Multi struct {
	Primary *Bcrypt
	Legacy  *Argon2
}

// NewMulti combines a primary bcrypt hasher with an optional legacy verifier.
func NewMulti(primary *Bcrypt, legacy *Argon2) *Multi {
	return &Multi{Primary: primary, Legacy: legacy}
}

func (m *Multi) Hash(password string) (string, error) {
	return m.Primary.Hash(password)
}

func (m *Multi) Verify(password, encodedHash string) (bool, error) {
	switch {
	case isBcryptHash(encodedHash):
		return m.Primary.Verify(password, encodedHash)
	case m.Legacy != nil:
		return m.Legacy.Verify(password, encodedHash)
	default:
		return false, ErrUnsupportedHash
	}
}

// NeedsUpgrade reports true for legacy hashes and for bcrypt hashes under
// the primary cost.
func (m *Multi) NeedsUpgrade(encodedHash string) (bool, error) {
	switch {
	case isBcryptHash(encodedHash):
		return m.Primary.NeedsUpgrade(encodedHash)
	case m.Legacy != nil:
		return m.Legacy.NeedsUpgrade(encodedHash)
	default:
		return false, ErrUnsupportedHash
	}
}
