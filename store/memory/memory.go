// Package memory provides an in-process Store for tests and the
// development server. Not intended for production use.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/luminet/userauth"
)

// Store keeps accounts and sessions in maps guarded by one mutex.
type Store struct {
	mu sync.Mutex

	accounts map[int64]*userauth.Account
	sessions map[int64]*userauth.Session
	nextID   int64
	nextSess int64
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		accounts: make(map[int64]*userauth.Account),
		sessions: make(map[int64]*userauth.Session),
		nextID:   1,
		nextSess: 1,
	}
}

var _ userauth.Store = (*Store)(nil)

func (s *Store) InsertAccount(_ context.Context, a *userauth.Account) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertAccountLocked(a)
}

func (s *Store) insertAccountLocked(a *userauth.Account) (int64, error) {
	id := s.nextID
	s.nextID++

	cp := *a
	cp.ID = id
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.accounts[id] = &cp
	return id, nil
}

func (s *Store) UpdateAccount(_ context.Context, a *userauth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateAccountLocked(a)
}

func (s *Store) updateAccountLocked(a *userauth.Account) error {
	cur, ok := s.accounts[a.ID]
	if !ok {
		return nil
	}
	cp := *a
	cp.CreatedAt = cur.CreatedAt
	cp.UpdatedAt = time.Now()
	s.accounts[a.ID] = &cp
	return nil
}

func (s *Store) FindAccountByID(_ context.Context, id int64) (*userauth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) FindAccountByEmail(_ context.Context, email string) (*userauth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) FindAccountByNickname(_ context.Context, nickname string) (*userauth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Nickname == nickname {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	a, err := s.FindAccountByEmail(ctx, email)
	return a != nil, err
}

func (s *Store) ExistsByNickname(ctx context.Context, nickname string) (bool, error) {
	a, err := s.FindAccountByNickname(ctx, nickname)
	return a != nil, err
}

func (s *Store) FindSessionByAccountID(_ context.Context, accountID int64) (*userauth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[accountID]; ok {
		cp := *sess
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) UpsertSession(_ context.Context, sess *userauth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertSessionLocked(sess)
}

func (s *Store) upsertSessionLocked(sess *userauth.Session) error {
	now := time.Now()
	cp := *sess
	if cur, ok := s.sessions[sess.AccountID]; ok {
		cp.ID = cur.ID
		cp.CreatedAt = cur.CreatedAt
	} else {
		cp.ID = s.nextSess
		s.nextSess++
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.sessions[sess.AccountID] = &cp
	return nil
}

func (s *Store) DeleteSessionByAccountID(_ context.Context, accountID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, accountID)
	return nil
}

// InTx snapshots both maps, runs fn against the live store, and
// restores the snapshot if fn fails. The mutex is held throughout, so a
// transaction sees no concurrent writes.
func (s *Store) InTx(ctx context.Context, fn func(userauth.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := make(map[int64]*userauth.Account, len(s.accounts))
	for k, v := range s.accounts {
		cp := *v
		accounts[k] = &cp
	}
	sessions := make(map[int64]*userauth.Session, len(s.sessions))
	for k, v := range s.sessions {
		cp := *v
		sessions[k] = &cp
	}
	nextID, nextSess := s.nextID, s.nextSess

	if err := fn(&txStore{s: s}); err != nil {
		s.accounts = accounts
		s.sessions = sessions
		s.nextID = nextID
		s.nextSess = nextSess
		return err
	}
	return nil
}

// txStore forwards to the parent without re-locking; the parent's mutex
// is already held for the duration of InTx.
type txStore struct {
	s *Store
}

var _ userauth.Store = (*txStore)(nil)

func (t *txStore) InsertAccount(_ context.Context, a *userauth.Account) (int64, error) {
	return t.s.insertAccountLocked(a)
}

func (t *txStore) UpdateAccount(_ context.Context, a *userauth.Account) error {
	return t.s.updateAccountLocked(a)
}

func (t *txStore) FindAccountByID(_ context.Context, id int64) (*userauth.Account, error) {
	if a, ok := t.s.accounts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (t *txStore) FindAccountByEmail(_ context.Context, email string) (*userauth.Account, error) {
	for _, a := range t.s.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *txStore) FindAccountByNickname(_ context.Context, nickname string) (*userauth.Account, error) {
	for _, a := range t.s.accounts {
		if a.Nickname == nickname {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *txStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	a, err := t.FindAccountByEmail(ctx, email)
	return a != nil, err
}

func (t *txStore) ExistsByNickname(ctx context.Context, nickname string) (bool, error) {
	a, err := t.FindAccountByNickname(ctx, nickname)
	return a != nil, err
}

func (t *txStore) FindSessionByAccountID(_ context.Context, accountID int64) (*userauth.Session, error) {
	if sess, ok := t.s.sessions[accountID]; ok {
		cp := *sess
		return &cp, nil
	}
	return nil, nil
}

func (t *txStore) UpsertSession(_ context.Context, sess *userauth.Session) error {
	return t.s.upsertSessionLocked(sess)
}

func (t *txStore) DeleteSessionByAccountID(_ context.Context, accountID int64) error {
	delete(t.s.sessions, accountID)
	return nil
}

func (t *txStore) InTx(_ context.Context, fn func(userauth.Store) error) error {
	// Nested transactions flatten into the enclosing one.
	return fn(t)
}
