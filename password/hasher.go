// Package password implements per-account salted password hashing on top
// of bcrypt.
//
// Each account carries its own random salt; the salt is appended to the
// plaintext before hashing, and salt and hash are always persisted
// together — rotating either means rewriting both.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/luminet/userauth/internal"
)

const (
	// DefaultCost is the bcrypt work factor. It is a deployment constant,
	// not a per-call knob.
	DefaultCost = 12

	// bcrypt silently truncates input beyond 72 bytes; reject instead.
	maxInputBytes = 72
)

// ErrPasswordTooLong is returned when password+salt exceeds the bcrypt
// input capacity.
var ErrPasswordTooLong = errors.New("password too long")

// Hasher hashes and verifies salted passwords with a fixed work factor.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher with the given bcrypt cost; cost <= 0
// selects DefaultCost.
func NewHasher(cost int) (*Hasher, error) {
	if cost <= 0 {
		cost = DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range", cost)
	}
	return &Hasher{cost: cost}, nil
}

// GenerateSalt returns a fresh random salt, unique per account.
func (h *Hasher) GenerateSalt() string {
	return internal.NewSalt()
}

// Hash computes the bcrypt hash of plain+salt.
func (h *Hasher) Hash(plain, salt string) (string, error) {
	salted := plain + salt
	if len(salted) > maxInputBytes {
		return "", ErrPasswordTooLong
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(salted), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether plain+salt matches the stored hash. The
// comparison is constant-time by bcrypt's construction; the plaintext is
// never reconstructed or logged.
func (h *Hasher) Verify(plain, hash, salt string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain+salt)) == nil
}
