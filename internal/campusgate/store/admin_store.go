package store

import (
	"context"
	"time"
)

type Admin struct {
	ID             string
	Username       string
	FullName       string
	Email          string
	PasswordHash   string // bcrypt
	TOTPSecret     string // base32
	IsActive       bool
	FailedAttempts int
	LockedUntil    *time.Time
	LastLogin      *time.Time
}

// Locked reports whether the account is locked at t.
func (a *Admin) Locked(t time.Time) bool {
	return a.LockedUntil != nil && t.Before(*a.LockedUntil)
}

type AdminStore interface {
	SaveAdmin(ctx context.Context, a Admin) error
	FindAdmin(ctx context.Context, username string) (*Admin, error) // ErrNotFound
	RecordLoginFailure(ctx context.Context, id string, lockUntil *time.Time) error
	RecordLoginSuccess(ctx context.Context, id string, at time.Time) error
}
