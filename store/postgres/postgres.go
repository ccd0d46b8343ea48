// Package postgres implements the account/session store on PostgreSQL
// using database/sql with the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/luminet/userauth"
	"github.com/luminet/userauth/store/postgres/migrations"
)

// DBTX is the database/sql surface shared by *sql.DB and *sql.Tx.
type DBTX interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store is the PostgreSQL-backed userauth.Store. Inside a transaction
// the same type runs against the *sql.Tx instead of the pool.
type Store struct {
	db *sql.DB
	q  DBTX
}

// Open connects, verifies the connection and returns the store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(db), nil
}

// New wraps an existing pool.
func New(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

var _ userauth.Store = (*Store)(nil)

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, s.db, ".")
}

// Close releases the pool. No-op inside a transaction.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

const accountColumns = `id, email, nickname, password_hash, password_salt,
	avatar_url, avatar_base64, country, gender, status, created_at, updated_at`

func (s *Store) InsertAccount(ctx context.Context, a *userauth.Account) (int64, error) {
	query := `INSERT INTO users
		(email, nickname, password_hash, password_salt, avatar_url, avatar_base64, country, gender, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	var id int64
	err := s.q.QueryRowContext(ctx, query,
		a.Email, a.Nickname, a.PasswordHash, a.PasswordSalt,
		a.AvatarURL, a.AvatarBase64, a.Country, a.Gender, a.Status,
	).Scan(&id)
	if err != nil {
		if conflictErr := asConflict(err); conflictErr != nil {
			return 0, conflictErr
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateAccount(ctx context.Context, a *userauth.Account) error {
	query := `UPDATE users SET
		email = $2, nickname = $3, password_hash = $4, password_salt = $5,
		avatar_url = $6, avatar_base64 = $7, country = $8, gender = $9,
		status = $10, updated_at = now()
		WHERE id = $1`

	_, err := s.q.ExecContext(ctx, query,
		a.ID, a.Email, a.Nickname, a.PasswordHash, a.PasswordSalt,
		a.AvatarURL, a.AvatarBase64, a.Country, a.Gender, a.Status,
	)
	if err != nil {
		if conflictErr := asConflict(err); conflictErr != nil {
			return conflictErr
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *Store) FindAccountByID(ctx context.Context, id int64) (*userauth.Account, error) {
	return s.findAccount(ctx, `SELECT `+accountColumns+` FROM users WHERE id = $1`, id)
}

func (s *Store) FindAccountByEmail(ctx context.Context, email string) (*userauth.Account, error) {
	return s.findAccount(ctx, `SELECT `+accountColumns+` FROM users WHERE email = $1`, email)
}

func (s *Store) FindAccountByNickname(ctx context.Context, nickname string) (*userauth.Account, error) {
	return s.findAccount(ctx, `SELECT `+accountColumns+` FROM users WHERE nickname = $1`, nickname)
}

func (s *Store) findAccount(ctx context.Context, query string, arg any) (*userauth.Account, error) {
	a := &userauth.Account{}
	err := s.q.QueryRowContext(ctx, query, arg).Scan(
		&a.ID, &a.Email, &a.Nickname, &a.PasswordHash, &a.PasswordSalt,
		&a.AvatarURL, &a.AvatarBase64, &a.Country, &a.Gender, &a.Status,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (s *Store) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email)
}

func (s *Store) ExistsByNickname(ctx context.Context, nickname string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE nickname = $1)`, nickname)
}

func (s *Store) exists(ctx context.Context, query string, arg any) (bool, error) {
	var ok bool
	if err := s.q.QueryRowContext(ctx, query, arg).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func (s *Store) FindSessionByAccountID(ctx context.Context, accountID int64) (*userauth.Session, error) {
	query := `SELECT id, user_id, secret, expires_at, created_at, updated_at
		FROM user_sessions WHERE user_id = $1`

	sess := &userauth.Session{}
	err := s.q.QueryRowContext(ctx, query, accountID).Scan(
		&sess.ID, &sess.AccountID, &sess.Secret,
		&sess.ExpiresAt, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return sess, nil
}

func (s *Store) UpsertSession(ctx context.Context, sess *userauth.Session) error {
	query := `INSERT INTO user_sessions (user_id, secret, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET secret = EXCLUDED.secret, expires_at = EXCLUDED.expires_at, updated_at = now()`

	if _, err := s.q.ExecContext(ctx, query, sess.AccountID, sess.Secret, sess.ExpiresAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *Store) DeleteSessionByAccountID(ctx context.Context, accountID int64) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM user_sessions WHERE user_id = $1`, accountID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// InTx runs fn inside a database transaction; fn's store argument
// executes every statement on that transaction.
func (s *Store) InTx(ctx context.Context, fn func(userauth.Store) error) error {
	if _, nested := s.q.(*sql.Tx); nested {
		// Already inside a transaction; flatten.
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// asConflict maps a unique-violation to the matching business error so
// the race window between the existence check and the insert still
// surfaces as a duplicate, not an internal failure.
func asConflict(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return nil
	}
	switch pgErr.ConstraintName {
	case "users_email_key":
		return userauth.ErrEmailTaken
	case "users_nickname_key":
		return userauth.ErrNicknameTaken
	default:
		return nil
	}
}
