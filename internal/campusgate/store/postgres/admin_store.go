package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
)

type AdminStore struct {
	pool *pgxpool.Pool
}

func NewAdminStore(pool *pgxpool.Pool) *AdminStore {
	return &AdminStore{pool: pool}
}

func (s *AdminStore) SaveAdmin(ctx context.Context, a store.Admin) error {
	if a.ID == "" || a.Username == "" {
		return fmt.Errorf("save admin: id and username are required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO administrators (admin_id, username, full_name, email, password_hash, totp_secret,
		                            is_active, failed_login_attempts, locked_until, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (admin_id) DO UPDATE SET
			username              = EXCLUDED.username,
			full_name             = EXCLUDED.full_name,
			email                 = EXCLUDED.email,
			password_hash         = EXCLUDED.password_hash,
			totp_secret           = EXCLUDED.totp_secret,
			is_active             = EXCLUDED.is_active,
			failed_login_attempts = EXCLUDED.failed_login_attempts,
			locked_until          = EXCLUDED.locked_until,
			last_login            = EXCLUDED.last_login,
			updated_at            = now()
	`, a.ID, a.Username, a.FullName, a.Email, a.PasswordHash, a.TOTPSecret,
		a.IsActive, a.FailedAttempts, a.LockedUntil, a.LastLogin)
	if err != nil {
		return fmt.Errorf("save admin %s: %w", a.Username, err)
	}
	return nil
}

func (s *AdminStore) FindAdmin(ctx context.Context, username string) (*store.Admin, error) {
	var a store.Admin
	err := s.pool.QueryRow(ctx, `
		SELECT admin_id, username, full_name, email, password_hash, totp_secret,
		       is_active, failed_login_attempts, locked_until, last_login
		FROM administrators
		WHERE username = $1
	`, username).Scan(&a.ID, &a.Username, &a.FullName, &a.Email, &a.PasswordHash, &a.TOTPSecret,
		&a.IsActive, &a.FailedAttempts, &a.LockedUntil, &a.LastLogin)
	if err != nil {
		if isNoRows(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("find admin: %w", err)
	}
	a.LockedUntil = utcPtr(a.LockedUntil)
	a.LastLogin = utcPtr(a.LastLogin)
	return &a, nil
}

func (s *AdminStore) RecordLoginFailure(ctx context.Context, id string, lockUntil *time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE administrators
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until          = COALESCE($1, locked_until),
		    updated_at            = now()
		WHERE admin_id = $2
	`, lockUntil, id)
	if err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *AdminStore) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE administrators
		SET failed_login_attempts = 0,
		    locked_until          = NULL,
		    last_login            = $1,
		    updated_at            = now()
		WHERE admin_id = $2
	`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("record login success: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
