// Package security provides the password hasher used by the credential store.
package security

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt cost used when none is configured.
const DefaultCost = 12

// BcryptHasher hashes new passwords with bcrypt. Verification also accepts
// the 16-hex-digit rolling hashes written by older credential files, so
// users migrated from them can still log in.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher with the given cost, clamped to bcrypt's range.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash returns the bcrypt hash of password.
func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether password matches hash.
func (h *BcryptHasher) Verify(hash, password string) bool {
	if IsLegacyHash(hash) {
		return subtle.ConstantTimeCompare([]byte(LegacyHash(password)), []byte(hash)) == 1
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NeedsRehash reports whether hash should be replaced by a fresh bcrypt
// hash after a successful login.
func (h *BcryptHasher) NeedsRehash(hash string) bool {
	return IsLegacyHash(hash)
}

// LegacyHash is the deterministic 64-bit rolling hash (h = h*33 + c,
// seeded with 5381) rendered as 16 lowercase hex digits. Bytes are added
// sign-extended, matching files produced on platforms with signed char.
// It is not a password hash; it exists only to verify old records.
func LegacyHash(password string) string {
	var h uint64 = 5381
	for i := 0; i < len(password); i++ {
		h = h*33 + uint64(int64(int8(password[i])))
	}
	return fmt.Sprintf("%016x", h)
}

// IsLegacyHash reports whether hash has the legacy rolling-hash format.
func IsLegacyHash(hash string) bool {
	if len(hash) != 16 {
		return false
	}
	for i := 0; i < len(hash); i++ {
		c := hash[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
