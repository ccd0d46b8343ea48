package userauth

import (
	"context"
	"errors"
	"strings"

	"github.com/luminet/userauth/password"
)

// Register redeems the verification code, creates the account and opens
// its first session, returning the profile plus a signed token. The
// uniqueness checks, insert and session write run in one transaction.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Nickname = strings.TrimSpace(in.Nickname)

	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return nil, NewValidationError("email is required")
	}
	if in.Nickname == "" {
		return nil, NewValidationError("nickname is required")
	}
	if in.EncryptedPassword == "" {
		return nil, NewValidationError("password is required")
	}
	if in.VerificationCode == "" {
		return nil, NewValidationError("verification code is required")
	}

	if !s.codes.Redeem(ctx, in.Email, in.VerificationCode) {
		return nil, ErrCodeInvalid
	}

	plain, err := s.decryptPassword(in.EncryptedPassword)
	if err != nil {
		s.log.Warn("register: password decryption failed", "email", in.Email, "err", err)
		return nil, err
	}

	var out RegisterResult
	err = s.store.InTx(ctx, func(tx Store) error {
		taken, err := tx.ExistsByEmail(ctx, in.Email)
		if err != nil {
			return ErrInternal.WithCause(err)
		}
		if taken {
			return ErrEmailTaken
		}
		taken, err = tx.ExistsByNickname(ctx, in.Nickname)
		if err != nil {
			return ErrInternal.WithCause(err)
		}
		if taken {
			return ErrNicknameTaken
		}

		salt := s.hasher.GenerateSalt()
		hash, err := s.hasher.Hash(plain, salt)
		if err != nil {
			if errors.Is(err, password.ErrPasswordTooLong) {
				return NewValidationError("password too long")
			}
			return ErrInternal.WithCause(err)
		}

		acct := &Account{
			Email:        in.Email,
			Nickname:     in.Nickname,
			PasswordHash: hash,
			PasswordSalt: salt,
			AvatarURL:    in.AvatarURL,
			AvatarBase64: in.AvatarBase64,
			Country:      in.Country,
			Gender:       in.Gender,
			Status:       AccountActive,
		}
		// A concurrent registration can slip between the existence checks
		// and the insert; the store surfaces that as a conflict error.
		id, err := tx.InsertAccount(ctx, acct)
		if err != nil {
			if be, ok := AsBusiness(err); ok {
				return be
			}
			return ErrInternal.WithCause(err)
		}
		acct.ID = id

		tok, err := s.issueSession(ctx, tx, acct)
		if err != nil {
			return ErrInternal.WithCause(err)
		}

		out = RegisterResult{Profile: profileOf(acct), Token: tok}
		return nil
	})
	if err != nil {
		if be, ok := AsBusiness(err); ok {
			return nil, be
		}
		return nil, ErrInternal.WithCause(err)
	}

	s.log.Info("account registered", "userId", out.AccountID, "email", out.Email)
	return &out, nil
}

// Login authenticates by email or nickname and rotates the account's
// session, invalidating any token issued before this call.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" {
		return nil, NewValidationError("username is required")
	}
	if in.EncryptedPassword == "" {
		return nil, NewValidationError("password is required")
	}

	acct, err := s.findByUsername(ctx, in.Username)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, ErrAccountNotFound
	}
	if acct.Status != AccountActive {
		return nil, ErrAccountInactive
	}

	plain, err := s.decryptPassword(in.EncryptedPassword)
	if err != nil {
		s.log.Warn("login: password decryption failed", "userId", acct.ID, "err", err)
		return nil, err
	}

	if !s.hasher.Verify(plain, acct.PasswordHash, acct.PasswordSalt) {
		return nil, ErrPasswordIncorrect
	}

	tok, err := s.issueSession(ctx, s.store, acct)
	if err != nil {
		return nil, ErrInternal.WithCause(err)
	}

	s.log.Info("login succeeded", "userId", acct.ID)
	return &LoginResult{
		AccountID: acct.ID,
		Email:     acct.Email,
		Nickname:  acct.Nickname,
		AvatarURL: acct.AvatarURL,
		Token:     tok,
	}, nil
}

// findByUsername resolves the login identifier: email match first, then
// nickname.
func (s *Service) findByUsername(ctx context.Context, username string) (*Account, error) {
	acct, err := s.store.FindAccountByEmail(ctx, username)
	if err != nil {
		return nil, ErrInternal.WithCause(err)
	}
	if acct != nil {
		return acct, nil
	}
	acct, err = s.store.FindAccountByNickname(ctx, username)
	if err != nil {
		return nil, ErrInternal.WithCause(err)
	}
	return acct, nil
}
