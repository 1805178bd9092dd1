package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/snipwise/snipwise/internal/userstore"
)

var _ userstore.Store = (*Store)(nil)

// Store implements userstore.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite user store at the supplied path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create identity directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	// a single writer connection keeps concurrent logins from hitting SQLITE_BUSY
	db.SetMaxOpenConns(1)
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
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	status TEXT NOT NULL DEFAULT 'active',
	last_login_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

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
func (s *Store) FindOrCreate(ctx context.Context, email string) (*userstore.User, bool, error) {
	u, err := s.scanOne(s.db.QueryRowContext(ctx, selectUser+` WHERE email = ?`, email))
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, userstore.ErrNotFound) {
		return nil, false, err
	}

	now := time.Now().UTC()
	u = &userstore.User{ID: uuid.New(), Email: email, Status: userstore.StatusActive, CreatedAt: now, UpdatedAt: now}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, email, status, created_at, updated_at) VALUES(?, ?, ?, ?, ?) ON CONFLICT(email) DO NOTHING`,
		u.ID.String(), u.Email, string(u.Status), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// lost a race with a concurrent login for the same email
		existing, err := s.scanOne(s.db.QueryRowContext(ctx, selectUser+` WHERE email = ?`, email))
		return existing, false, err
	}
	return u, true, nil
}

// Get returns the user by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*userstore.User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, selectUser+` WHERE id = ?`, id.String()))
}

// RecordLogin stamps the last successful login.
func (s *Store) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET last_login_at = ?, updated_at = ? WHERE id = ?`, at.UTC(), at.UTC(), id.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return userstore.ErrNotFound
	}
	return nil
}

func (s *Store) scanOne(row *sql.Row) (*userstore.User, error) {
	var (
		u         userstore.User
		id        string
		status    string
		lastLogin sql.NullTime
	)
	if err := row.Scan(&id, &u.Email, &status, &lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, userstore.ErrNotFound
		}
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse user id %q: %w", id, err)
	}
	u.ID = parsed
	u.Status = userstore.Status(status)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}
