// Package token issues and verifies compact signed session tokens.
//
// The signing key is not a service-wide secret: it is derived from the
// per-account session secret held in the server-side session record.
// Deleting or overwriting that record therefore invalidates every token
// signed with it, before the token's own embedded expiry — revocation is
// a side effect of secret deletion, with no denylist involved.
package token

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultTTL applies when Issue is called with a zero ttl.
	DefaultTTL = 24 * time.Hour

	// HS256 requires at least 32 bytes of key material.
	minKeyBytes = 32
)

var (
	// ErrTokenInvalid covers malformed tokens and signature mismatches.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned when the embedded expiry has passed.
	// Callers must treat it exactly like ErrTokenInvalid in their control
	// flow; the distinction exists for logging only.
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the session token claim set.
type Claims struct {
	UserID   int64  `json:"userId"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	jwt.RegisteredClaims
}

// UnverifiedAccountID is an account id read from a token WITHOUT
// signature verification. It is a lookup key for the session record and
// nothing more; it must never be treated as an authenticated identity.
type UnverifiedAccountID int64

// LookupKey returns the raw id for the session-record lookup.
func (u UnverifiedAccountID) LookupKey() int64 { return int64(u) }

// Codec mints and checks session tokens. It holds no key material; the
// session secret is an explicit parameter on every call.
type Codec struct {
	defaultTTL time.Duration
}

// NewCodec returns a Codec. ttl <= 0 selects DefaultTTL.
func NewCodec(defaultTTL time.Duration) *Codec {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Codec{defaultTTL: defaultTTL}
}

// Issue signs a claim set for the account with a key derived from
// sessionSecret. issued-at is now, expires-at is now+ttl.
func (c *Codec) Issue(accountID int64, email, nickname, sessionSecret string, ttl time.Duration) (string, error) {
	key, err := signingKey(sessionSecret)
	if err != nil {
		return "", err
	}

	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	now := time.Now()
	claims := Claims{
		UserID:   accountID,
		Email:    email,
		Nickname: nickname,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(accountID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// Verify re-derives the signing key from sessionSecret and checks the
// signature and the embedded expiry. On success it returns the accountID
// carried in the claims. Any non-nil error means "not authenticated";
// ErrTokenExpired vs ErrTokenInvalid matters only for logging.
func (c *Codec) Verify(tokenStr, sessionSecret string) (int64, error) {
	key, err := signingKey(sessionSecret)
	if err != nil {
		return 0, ErrTokenInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrTokenExpired
		}
		return 0, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return 0, ErrTokenInvalid
	}
	if claims.ExpiresAt == nil || time.Now().After(claims.ExpiresAt.Time) {
		return 0, ErrTokenExpired
	}

	return claims.UserID, nil
}

// ExtractAccountID parses the token payload without verifying the
// signature, solely so the caller can locate the session record whose
// secret the token must then be verified against. The UnverifiedAccountID
// return type exists so this value cannot slip into code expecting a
// verified identity.
func ExtractAccountID(tokenStr string) (UnverifiedAccountID, bool) {
	parts := strings.Split(tokenStr, ".")
	if len(parts) != 3 {
		return 0, false
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return 0, false
	}

	var body struct {
		UserID int64 `json:"userId"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return 0, false
	}
	if body.UserID <= 0 {
		return 0, false
	}

	return UnverifiedAccountID(body.UserID), true
}

// signingKey repeats the session secret until it reaches the HS256
// minimum key length. No additional key-derivation hashing is applied;
// the secret itself is random, server-side material.
func signingKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("empty session secret")
	}

	key := secret
	for len(key) < minKeyBytes {
		key += secret
	}
	return []byte(key), nil
}
