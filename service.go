package userauth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/luminet/userauth/internal"
	"github.com/luminet/userauth/mail"
	"github.com/luminet/userauth/password"
	"github.com/luminet/userauth/token"
	"github.com/luminet/userauth/transport"
	"github.com/luminet/userauth/verification"
)

// Service orchestrates registration, credential verification, session
// issuance and password reset against the external account/session
// store. Construct with New().…Build(); release with Close.
type Service struct {
	config Config
	log    *slog.Logger
	store  Store
	cipher *transport.Cipher
	hasher *password.Hasher
	codec  *token.Codec
	codes  *verification.Store
	mailer mail.Mailer
}

// Close stops background work (the verification sweeper).
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.codes.Close()
}

// PublicKey returns the transport cipher's public key PEM for clients to
// encrypt passwords against.
func (s *Service) PublicKey() string {
	return s.cipher.PublicKeyPEM()
}

// SendVerificationCode issues a one-time code for email and delivers it.
// A mail-delivery failure is logged but does not fail the operation: the
// stored code stays redeemable either way.
func (s *Service) SendVerificationCode(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return NewValidationError("email is required")
	}

	code, err := s.codes.Issue(ctx, email)
	if err != nil {
		return ErrInternal.WithCause(err)
	}

	if s.config.Verification.LogOnly {
		// Development mode: the code goes to the log, not the relay.
		s.log.Info("verification code issued (log-only mode)", "email", email, "code", code)
		return nil
	}

	body := fmt.Sprintf(
		"Your verification code is: %s\n\nIt expires in %d minutes. Do not share it with anyone.\n\nIf you did not request this, ignore this message.",
		code, int(s.config.Verification.TTL.Minutes()),
	)
	if err := s.mailer.Send(ctx, email, s.config.Mail.Subject, body); err != nil {
		// Deliberately non-fatal; the next Send attempt may succeed and
		// the code remains verifiable meanwhile.
		s.log.Error("verification mail delivery failed", "email", email, "err", err)
	} else {
		s.log.Info("verification code sent", "email", email)
	}
	return nil
}

// UserInfo returns the public profile for an account id.
func (s *Service) UserInfo(ctx context.Context, accountID int64) (*Profile, error) {
	acct, err := s.store.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, ErrInternal.WithCause(err)
	}
	if acct == nil {
		return nil, ErrAccountNotFound
	}

	p := profileOf(acct)
	return &p, nil
}

// issueSession creates (or wholesale replaces) the account's session
// record with a fresh secret and signs a token against it. Runs against
// whatever store it is handed so register can call it inside a
// transaction.
func (s *Service) issueSession(ctx context.Context, st SessionStore, acct *Account) (string, error) {
	secret := internal.NewSessionSecret()
	now := time.Now()

	if err := st.UpsertSession(ctx, &Session{
		AccountID: acct.ID,
		Secret:    secret,
		ExpiresAt: now.Add(s.config.Session.TTL),
	}); err != nil {
		return "", err
	}

	return s.codec.Issue(acct.ID, acct.Email, acct.Nickname, secret, s.config.Token.TTL)
}

// decryptPassword recovers plaintext from the transport ciphertext,
// collapsing every cipher failure into the generic business error. The
// cause is preserved for logs only.
func (s *Service) decryptPassword(encrypted string) (string, error) {
	plain, err := s.cipher.Decrypt(encrypted)
	if err != nil {
		return "", ErrCredentialUnreadable.WithCause(err)
	}
	return plain, nil
}

func profileOf(a *Account) Profile {
	return Profile{
		AccountID: a.ID,
		Email:     a.Email,
		Nickname:  a.Nickname,
		AvatarURL: a.AvatarURL,
		Country:   a.Country,
		Gender:    a.Gender,
		Status:    int8(a.Status),
		CreatedAt: a.CreatedAt,
	}
}
