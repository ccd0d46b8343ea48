package userauth

import (
	"context"
	"time"
)

// AccountStatus is the lifecycle state of an account.
type AccountStatus int8

const (
	// AccountInactive is the pre-activation state; inactive accounts
	// cannot log in.
	AccountInactive AccountStatus = 0
	// AccountActive is the normal state. Registration activates the
	// account immediately because the email was just proven.
	AccountActive AccountStatus = 1
)

// Account is the identity record. Email and Nickname are each unique
// across all accounts (case-sensitive as stored). PasswordHash and
// PasswordSalt are always written together and never logged.
type Account struct {
	ID           int64
	Email        string
	Nickname     string
	PasswordHash string
	PasswordSalt string
	AvatarURL    string
	AvatarBase64 string
	Country      string
	Gender       uint8
	Status       AccountStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is the server-side session record — at most one live session
// per account. Secret is the token-signing key material; it is never
// disclosed to clients as a standalone value. Creating a session for an
// account overwrites any prior one (last writer wins).
type Session struct {
	ID        int64
	AccountID int64
	Secret    string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile is the public projection of an Account: no credential
// material, no internal fields.
type Profile struct {
	AccountID int64     `json:"userId"`
	Email     string    `json:"email"`
	Nickname  string    `json:"nickname"`
	AvatarURL string    `json:"avatarUrl"`
	Country   string    `json:"country"`
	Gender    uint8     `json:"gender"`
	Status    int8      `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// RegisterInput carries a registration request. EncryptedPassword is the
// transport-cipher ciphertext, base64-encoded.
type RegisterInput struct {
	Email            string
	Nickname         string
	EncryptedPassword string
	VerificationCode string
	AvatarURL        string
	AvatarBase64     string
	Country          string
	Gender           uint8
}

// RegisterResult is the successful registration outcome.
type RegisterResult struct {
	Profile
	Token string `json:"token"`
}

// LoginInput carries a login request. Username matches by email first,
// then by nickname.
type LoginInput struct {
	Username          string
	EncryptedPassword string
}

// LoginResult is the successful login outcome.
type LoginResult struct {
	AccountID int64  `json:"userId"`
	Email     string `json:"email"`
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatarUrl"`
	Token     string `json:"token"`
}

// VerifyResult is the token-introspection outcome. Valid=false is a
// normal result for a merely-invalid token, not an error.
type VerifyResult struct {
	Valid     bool   `json:"valid"`
	AccountID int64  `json:"userId,omitempty"`
	Email     string `json:"email,omitempty"`
	Nickname  string `json:"nickname,omitempty"`
}

// ResetPasswordInput carries a password-reset request.
type ResetPasswordInput struct {
	Email                string
	VerificationCode     string
	EncryptedNewPassword string
}

// AccountStore is the account half of the external store capability.
// Find* methods return (nil, nil) when no row matches; a non-nil error
// always means an infrastructure failure.
type AccountStore interface {
	InsertAccount(ctx context.Context, a *Account) (int64, error)
	UpdateAccount(ctx context.Context, a *Account) error
	FindAccountByID(ctx context.Context, id int64) (*Account, error)
	FindAccountByEmail(ctx context.Context, email string) (*Account, error)
	FindAccountByNickname(ctx context.Context, nickname string) (*Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByNickname(ctx context.Context, nickname string) (bool, error)
}

// SessionStore is the session half of the external store capability.
// UpsertSession replaces the account's record wholesale, never
// field-by-field — that is what keeps concurrent logins race-free under
// the single-active-session rule.
type SessionStore interface {
	FindSessionByAccountID(ctx context.Context, accountID int64) (*Session, error)
	UpsertSession(ctx context.Context, s *Session) error
	DeleteSessionByAccountID(ctx context.Context, accountID int64) error
}

// Store is the combined account/session capability. InTx runs fn
// atomically: every store call made through fn's argument commits or
// rolls back as one unit.
type Store interface {
	AccountStore
	SessionStore
	InTx(ctx context.Context, fn func(Store) error) error
}
