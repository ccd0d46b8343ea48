package userauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/luminet/userauth/password"
	"github.com/luminet/userauth/token"
)

// Verify introspects a session token. An invalid, expired or revoked
// token is a normal Valid=false result, never an error; errors are
// reserved for infrastructure failures.
//
// The chain: read the account id from the token without trusting it,
// load that account's session record, check the record's own expiry,
// then verify the token signature against the record's secret and
// require the verified id to match the lookup id.
func (s *Service) Verify(ctx context.Context, tokenStr string) (*VerifyResult, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	invalid := &VerifyResult{Valid: false}

	hint, ok := token.ExtractAccountID(tokenStr)
	if !ok {
		return invalid, nil
	}

	sess, err := s.store.FindSessionByAccountID(ctx, hint.LookupKey())
	if err != nil {
		return nil, ErrInternal.WithCause(err)
	}
	if sess == nil {
		return invalid, nil
	}
	if time.Now().After(sess.ExpiresAt) {
		return invalid, nil
	}

	verifiedID, err := s.codec.Verify(tokenStr, sess.Secret)
	if err != nil {
		s.log.Debug("token verification failed", "userId", hint.LookupKey(), "err", err)
		return invalid, nil
	}
	if verifiedID != sess.AccountID {
		return invalid, nil
	}

	acct, err := s.store.FindAccountByID(ctx, verifiedID)
	if err != nil {
		return nil, ErrInternal.WithCause(err)
	}
	if acct == nil {
		return invalid, nil
	}

	return &VerifyResult{
		Valid:     true,
		AccountID: acct.ID,
		Email:     acct.Email,
		Nickname:  acct.Nickname,
	}, nil
}

// ResetPassword redeems the verification code and replaces the
// account's credential with a fresh salt and hash. The update and the
// session deletion commit together, so every outstanding token dies
// with the old password.
func (s *Service) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	in.Email = strings.TrimSpace(in.Email)
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return NewValidationError("email is required")
	}
	if in.VerificationCode == "" {
		return NewValidationError("verification code is required")
	}
	if in.EncryptedNewPassword == "" {
		return NewValidationError("new password is required")
	}

	acct, err := s.store.FindAccountByEmail(ctx, in.Email)
	if err != nil {
		return ErrInternal.WithCause(err)
	}
	if acct == nil {
		return ErrAccountNotFound
	}

	if !s.codes.Redeem(ctx, in.Email, in.VerificationCode) {
		return ErrCodeInvalid
	}

	plain, err := s.decryptPassword(in.EncryptedNewPassword)
	if err != nil {
		s.log.Warn("reset: password decryption failed", "userId", acct.ID, "err", err)
		return err
	}

	salt := s.hasher.GenerateSalt()
	hash, err := s.hasher.Hash(plain, salt)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooLong) {
			return NewValidationError("password too long")
		}
		return ErrInternal.WithCause(err)
	}

	err = s.store.InTx(ctx, func(tx Store) error {
		acct.PasswordHash = hash
		acct.PasswordSalt = salt
		if err := tx.UpdateAccount(ctx, acct); err != nil {
			return err
		}
		return tx.DeleteSessionByAccountID(ctx, acct.ID)
	})
	if err != nil {
		return ErrInternal.WithCause(err)
	}

	s.log.Info("password reset", "userId", acct.ID)
	return nil
}

// Logout deletes the account's session record, revoking every token
// signed with its secret. Logging out an account with no session is a
// no-op, not an error.
func (s *Service) Logout(ctx context.Context, accountID int64) error {
	if accountID <= 0 {
		return NewValidationError("user id is required")
	}
	if err := s.store.DeleteSessionByAccountID(ctx, accountID); err != nil {
		return ErrInternal.WithCause(err)
	}
	s.log.Info("logged out", "userId", accountID)
	return nil
}
