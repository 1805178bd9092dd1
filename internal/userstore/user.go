package userstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no user matches.
var ErrNotFound = errors.New("user not found")

// Status captures whether a user is active or suspended.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// User is an account created on first successful email login.
type User struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// Active reports whether the user may sign in.
func (u *User) Active() bool {
	return u.Status == "" || u.Status == StatusActive
}

// Store persists users across SQLite/Postgres backends.
type Store interface {
	// FindOrCreate returns the user for an already normalized email, creating it
	// when absent. created reports whether a new row was inserted.
	FindOrCreate(ctx context.Context, email string) (u *User, created bool, err error)
	Get(ctx context.Context, id uuid.UUID) (*User, error)
	RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	Ping(ctx context.Context) error
	Close() error
}
