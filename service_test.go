package userauth_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	. "github.com/luminet/userauth"
	"github.com/luminet/userauth/store/memory"
	"github.com/luminet/userauth/transport"
)

type testService struct {
	svc    *Service
	cipher *transport.Cipher
	store  *memory.Store
	redis  *miniredis.Miniredis
}

func newTestService(t *testing.T) *testService {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	privPEM, pubPEM, err := transport.GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	cipher, err := transport.NewCipher(privPEM, pubPEM)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Password.Cost = 4
	cfg.Verification.LogOnly = true

	store := memory.New()
	svc, err := New().
		WithConfig(cfg).
		WithStore(store).
		WithRedis(client).
		WithKeyPair(privPEM, pubPEM).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build(context.Background())
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	t.Cleanup(svc.Close)

	return &testService{svc: svc, cipher: cipher, store: store, redis: mr}
}

func (ts *testService) encrypt(t *testing.T, plain string) string {
	t.Helper()
	enc, err := ts.cipher.Encrypt(plain)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	return enc
}

func (ts *testService) register(t *testing.T, email, nickname, password string) *RegisterResult {
	t.Helper()
	ctx := context.Background()

	code, err := ts.svc.IssueCode(ctx, email)
	if err != nil {
		t.Fatalf("issue code: %v", err)
	}

	out, err := ts.svc.Register(ctx, RegisterInput{
		Email:             email,
		Nickname:          nickname,
		EncryptedPassword: ts.encrypt(t, password),
		VerificationCode:  code,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return out
}

func TestRegisterIssuesWorkingToken(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()

	out := ts.register(t, "a@example.com", "alice", "hunter2pass")
	if out.Token == "" {
		t.Fatal("expected a token")
	}
	if out.AccountID == 0 {
		t.Fatal("expected an account id")
	}

	res, err := ts.svc.Verify(ctx, out.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.Valid || res.AccountID != out.AccountID {
		t.Fatalf("unexpected verify result: %+v", res)
	}
}

func TestRegisterConflictRollsBack(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()

	ts.register(t, "a@example.com", "alice", "pw")

	code, err := ts.svc.IssueCode(ctx, "b@example.com")
	if err != nil {
		t.Fatal(err)
	}
	_, err = ts.svc.Register(ctx, RegisterInput{
		Email:             "b@example.com",
		Nickname:          "alice", // taken
		EncryptedPassword: ts.encrypt(t, "pw"),
		VerificationCode:  code,
	})
	if !errors.Is(err, ErrNicknameTaken) {
		t.Fatalf("want ErrNicknameTaken, got %v", err)
	}

	acct, err := ts.store.FindAccountByEmail(ctx, "b@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if acct != nil {
		t.Fatal("conflicting registration must leave no account behind")
	}
}

func TestRegisterRejectsBadCode(t *testing.T) {
	ts := newTestService(t)

	_, err := ts.svc.Register(context.Background(), RegisterInput{
		Email:             "a@example.com",
		Nickname:          "alice",
		EncryptedPassword: ts.encrypt(t, "pw"),
		VerificationCode:  "123456",
	})
	if !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("want ErrCodeInvalid, got %v", err)
	}
}

func TestRegisterRejectsUnreadableCiphertext(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()

	code, err := ts.svc.IssueCode(ctx, "a@example.com")
	if err != nil {
		t.Fatal(err)
	}
	_, err = ts.svc.Register(ctx, RegisterInput{
		Email:             "a@example.com",
		Nickname:          "alice",
		EncryptedPassword: "not-real-ciphertext",
		VerificationCode:  code,
	})
	if !errors.Is(err, ErrCredentialUnreadable) {
		t.Fatalf("want ErrCredentialUnreadable, got %v", err)
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()

	out := ts.register(t, "a@example.com", "alice", "pw")

	acct, err := ts.store.FindAccountByID(ctx, out.AccountID)
	if err != nil {
		t.Fatal(err)
	}
	acct.Status = AccountInactive
	if err := ts.store.UpdateAccount(ctx, acct); err != nil {
		t.Fatal(err)
	}

	_, err = ts.svc.Login(ctx, LoginInput{
		Username:          "alice",
		EncryptedPassword: ts.encrypt(t, "pw"),
	})
	if !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("want ErrAccountInactive, got %v", err)
	}
}

func TestVerifyAfterSessionDeleted(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()

	out := ts.register(t, "a@example.com", "alice", "pw")

	if err := ts.store.DeleteSessionByAccountID(ctx, out.AccountID); err != nil {
		t.Fatal(err)
	}

	res, err := ts.svc.Verify(ctx, out.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Valid {
		t.Fatal("token must be dead once its session record is gone")
	}
}

func TestVerifyExpiredSessionRecord(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()

	out := ts.register(t, "a@example.com", "alice", "pw")

	sess, err := ts.store.FindSessionByAccountID(ctx, out.AccountID)
	if err != nil {
		t.Fatal(err)
	}
	sess.ExpiresAt = time.Now().Add(-time.Minute)
	if err := ts.store.UpsertSession(ctx, sess); err != nil {
		t.Fatal(err)
	}

	res, err := ts.svc.Verify(ctx, out.Token)
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid {
		t.Fatal("record expiry must bound token validity")
	}
}

func TestVerifyCrossAccountToken(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()

	a := ts.register(t, "a@example.com", "alice", "pw")
	ts.register(t, "b@example.com", "bob", "pw")

	// Swap alice's session secret; her old token is now signed with key
	// material the record no longer holds.
	sessA, err := ts.store.FindSessionByAccountID(ctx, a.AccountID)
	if err != nil {
		t.Fatal(err)
	}
	sessA.Secret = "a-completely-different-secret"
	if err := ts.store.UpsertSession(ctx, sessA); err != nil {
		t.Fatal(err)
	}

	res, err := ts.svc.Verify(ctx, a.Token)
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid {
		t.Fatal("token signed with the old secret must not verify")
	}
}

func TestResetPasswordUnknownEmail(t *testing.T) {
	ts := newTestService(t)

	err := ts.svc.ResetPassword(context.Background(), ResetPasswordInput{
		Email:                "nobody@example.com",
		VerificationCode:     "123456",
		EncryptedNewPassword: ts.encrypt(t, "pw"),
	})
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("want ErrAccountNotFound, got %v", err)
	}
}

func TestResetPasswordRevokesSessions(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()

	out := ts.register(t, "a@example.com", "alice", "oldpw")

	code, err := ts.svc.IssueCode(ctx, "a@example.com")
	if err != nil {
		t.Fatal(err)
	}
	err = ts.svc.ResetPassword(ctx, ResetPasswordInput{
		Email:                "a@example.com",
		VerificationCode:     code,
		EncryptedNewPassword: ts.encrypt(t, "newpw"),
	})
	if err != nil {
		t.Fatalf("reset: %v", err)
	}

	res, err := ts.svc.Verify(ctx, out.Token)
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid {
		t.Fatal("reset must revoke the prior session")
	}

	if _, err := ts.svc.Login(ctx, LoginInput{Username: "alice", EncryptedPassword: ts.encrypt(t, "oldpw")}); !errors.Is(err, ErrPasswordIncorrect) {
		t.Fatalf("old password must be rejected, got %v", err)
	}
	if _, err := ts.svc.Login(ctx, LoginInput{Username: "alice", EncryptedPassword: ts.encrypt(t, "newpw")}); err != nil {
		t.Fatalf("new password must work: %v", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()

	out := ts.register(t, "a@example.com", "alice", "pw")

	if err := ts.svc.Logout(ctx, out.AccountID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := ts.svc.Logout(ctx, out.AccountID); err != nil {
		t.Fatalf("second logout: %v", err)
	}
}

func TestUserInfo(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()

	out := ts.register(t, "a@example.com", "alice", "pw")

	p, err := ts.svc.UserInfo(ctx, out.AccountID)
	if err != nil {
		t.Fatalf("user info: %v", err)
	}
	if p.Nickname != "alice" || p.Email != "a@example.com" {
		t.Fatalf("unexpected profile: %+v", p)
	}

	if _, err := ts.svc.UserInfo(ctx, 9999); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("want ErrAccountNotFound, got %v", err)
	}
}

func TestSendVerificationCodeValidation(t *testing.T) {
	ts := newTestService(t)

	if err := ts.svc.SendVerificationCode(context.Background(), "not-an-email"); err == nil {
		t.Fatal("expected a validation error")
	}
}

func TestBuilderRequiresDependencies(t *testing.T) {
	if _, err := New().Build(context.Background()); err == nil {
		t.Fatal("bare builder must not build")
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	if _, err := New().WithStore(memory.New()).WithRedis(client).Build(context.Background()); err == nil {
		t.Fatal("builder without key pair must not build")
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	b := New()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	privPEM, pubPEM, err := transport.GenerateKeyPair(2048)
	if err != nil {
		t.Fatal(err)
	}

	b.WithStore(memory.New()).WithRedis(client).WithKeyPair(privPEM, pubPEM)
	svc, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	t.Cleanup(svc.Close)

	if _, err := b.Build(context.Background()); err == nil {
		t.Fatal("second build must fail")
	}
}
