package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/snipwise/snipwise/internal/userstore"
)

var _ userstore.Store = (*Store)(nil)

// Store implements userstore.Store backed by Postgres.
type Store struct {
	db *sql.DB
}

// New opens a Postgres-backed user store using the provided DSN.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	return NewWithDB(db)
}

// NewWithDB wraps an existing pool and applies the schema.
func NewWithDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	status TEXT NOT NULL DEFAULT 'active',
	last_login_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// DB exposes the pool so the snippet store can share it.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases underlying resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const selectUser = `SELECT id, email, status, last_login_at, created_at, updated_at FROM users`

// FindOrCreate returns the user with the email, inserting it when missing.
// The upsert makes concurrent first logins converge on one row.
func (s *Store) FindOrCreate(ctx context.Context, email string) (*userstore.User, bool, error) {
	const query = `
INSERT INTO users(id, email, status) VALUES($1, $2, $3)
ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
RETURNING id, email, status, last_login_at, created_at, updated_at, (xmax = 0) AS inserted`
	var (
		u         userstore.User
		status    string
		lastLogin sql.NullTime
		inserted  bool
	)
	err := s.db.QueryRowContext(ctx, query, uuid.New(), email, string(userstore.StatusActive)).
		Scan(&u.ID, &u.Email, &status, &lastLogin, &u.CreatedAt, &u.UpdatedAt, &inserted)
	if err != nil {
		return nil, false, fmt.Errorf("upsert user: %w", err)
	}
	u.Status = userstore.Status(status)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, inserted, nil
}

// Get returns the user by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*userstore.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE id = $1`, id))
}

// RecordLogin stamps the last successful login.
func (s *Store) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET last_login_at = $1, updated_at = NOW() WHERE id = $2`, at, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return userstore.ErrNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (*userstore.User, error) {
	var (
		u         userstore.User
		status    string
		lastLogin sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Email, &status, &lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, userstore.ErrNotFound
		}
		return nil, err
	}
	u.Status = userstore.Status(status)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}
