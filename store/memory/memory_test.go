package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminet/userauth"
)

func TestAccountLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	id, err := s.InsertAccount(ctx, &userauth.Account{
		Email:    "a@example.com",
		Nickname: "alice",
		Status:   userauth.AccountActive,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	byID, err := s.FindAccountByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "a@example.com", byID.Email)
	assert.False(t, byID.CreatedAt.IsZero())

	byEmail, err := s.FindAccountByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, id, byEmail.ID)

	byNick, err := s.FindAccountByNickname(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, byNick)

	missing, err := s.FindAccountByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	ok, err := s.ExistsByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.ExistsByNickname(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, ok)

	byID.Nickname = "alice2"
	require.NoError(t, s.UpdateAccount(ctx, byID))
	updated, err := s.FindAccountByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice2", updated.Nickname)
	assert.Equal(t, byID.CreatedAt.Unix(), updated.CreatedAt.Unix())
}

func TestReturnedAccountIsACopy(t *testing.T) {
	ctx := context.Background()
	s := New()

	id, err := s.InsertAccount(ctx, &userauth.Account{Email: "a@example.com", Nickname: "alice"})
	require.NoError(t, err)

	got, err := s.FindAccountByID(ctx, id)
	require.NoError(t, err)
	got.Email = "mutated@example.com"

	again, err := s.FindAccountByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", again.Email)
}

func TestSessionUpsertReplacesRecord(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.UpsertSession(ctx, &userauth.Session{
		AccountID: 7,
		Secret:    "first",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	first, err := s.FindSessionByAccountID(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, first)

	err = s.UpsertSession(ctx, &userauth.Session{
		AccountID: 7,
		Secret:    "second",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	second, err := s.FindSessionByAccountID(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "second", second.Secret)
	assert.Equal(t, first.ID, second.ID, "upsert keeps the row identity")

	require.NoError(t, s.DeleteSessionByAccountID(ctx, 7))
	gone, err := s.FindSessionByAccountID(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, gone)

	// Deleting again is a no-op.
	require.NoError(t, s.DeleteSessionByAccountID(ctx, 7))
}

func TestInTxCommit(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.InTx(ctx, func(tx userauth.Store) error {
		id, err := tx.InsertAccount(ctx, &userauth.Account{Email: "a@example.com", Nickname: "alice"})
		if err != nil {
			return err
		}
		return tx.UpsertSession(ctx, &userauth.Session{
			AccountID: id,
			Secret:    "sec",
			ExpiresAt: time.Now().Add(time.Hour),
		})
	})
	require.NoError(t, err)

	a, err := s.FindAccountByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	require.NotNil(t, a)
	sess, err := s.FindSessionByAccountID(ctx, a.ID)
	require.NoError(t, err)
	assert.NotNil(t, sess)
}

func TestInTxRollback(t *testing.T) {
	ctx := context.Background()
	s := New()

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx userauth.Store) error {
		if _, err := tx.InsertAccount(ctx, &userauth.Account{Email: "a@example.com", Nickname: "alice"}); err != nil {
			return err
		}
		if err := tx.UpsertSession(ctx, &userauth.Session{AccountID: 1, Secret: "sec", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	a, err := s.FindAccountByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Nil(t, a, "rolled-back insert must not be visible")
	sess, err := s.FindSessionByAccountID(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, sess)

	// IDs allocated in the rolled-back transaction are reusable.
	id, err := s.InsertAccount(ctx, &userauth.Account{Email: "b@example.com", Nickname: "bob"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}
