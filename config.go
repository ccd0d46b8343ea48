package userauth

import (
	"errors"
	"time"
)

// Config groups every tunable of the service. Instances are configured
// during initialization and treated as immutable afterwards.
type Config struct {
	Token        TokenConfig
	Session      SessionConfig
	Password     PasswordConfig
	Verification VerificationConfig
	Mail         MailConfig
}

// TokenConfig tunes the session token codec.
type TokenConfig struct {
	// TTL is the embedded token lifetime. Default 24h.
	TTL time.Duration
}

// SessionConfig tunes the server-side session record.
type SessionConfig struct {
	// TTL is the session record lifetime; the record's expiry bounds
	// every token signed with its secret. Default 7 days.
	TTL time.Duration
}

// PasswordConfig tunes the password hasher.
type PasswordConfig struct {
	// Cost is the bcrypt work factor, a deployment constant. Default 12.
	Cost int
}

// VerificationConfig tunes the one-time code store.
type VerificationConfig struct {
	// TTL is the code lifetime. Default 5 minutes.
	TTL time.Duration
	// SweepInterval is the fallback purge cadence. Default 5 minutes.
	SweepInterval time.Duration
	// LogOnly logs codes instead of mailing them (development mode).
	LogOnly bool
}

// MailConfig shapes the verification-code message.
type MailConfig struct {
	Subject string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Token:    TokenConfig{TTL: 24 * time.Hour},
		Session:  SessionConfig{TTL: 7 * 24 * time.Hour},
		Password: PasswordConfig{Cost: 12},
		Verification: VerificationConfig{
			TTL:           5 * time.Minute,
			SweepInterval: 5 * time.Minute,
		},
		Mail: MailConfig{Subject: "Your verification code"},
	}
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	if c.Token.TTL <= 0 {
		return errors.New("token TTL must be positive")
	}
	if c.Session.TTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	if c.Session.TTL < c.Token.TTL {
		return errors.New("session TTL must cover the token TTL")
	}
	if c.Password.Cost < 4 || c.Password.Cost > 31 {
		return errors.New("password cost out of bcrypt range")
	}
	if c.Verification.TTL <= 0 {
		return errors.New("verification TTL must be positive")
	}
	if c.Verification.SweepInterval <= 0 {
		return errors.New("verification sweep interval must be positive")
	}
	return nil
}
