package internal

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// NewCode generates a uniformly random numeric code of the given width.
// The first digit is never zero, so a 6-digit code is always in
// [100000, 999999].
func NewCode(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid code digits")
	}

	var b strings.Builder
	b.Grow(digits)

	first, err := rand.Int(rand.Reader, big.NewInt(9))
	if err != nil {
		return "", err
	}
	b.WriteByte(byte('1' + first.Int64()))

	max := big.NewInt(10)
	for i := 1; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	return b.String(), nil
}

// NewSessionSecret returns a fresh opaque session secret. The value is
// stored server-side and used as token-signing key material; it is never
// handed to clients on its own.
func NewSessionSecret() string {
	return uuid.NewString()
}

// NewSalt returns a random per-account password salt: UUID v4 hex with
// the dashes stripped (32 hex characters, 128 bits).
func NewSalt() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsNumeric reports whether v consists solely of ASCII digits.
func IsNumeric(v string) bool {
	if v == "" {
		return false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return false
		}
	}
	return true
}
