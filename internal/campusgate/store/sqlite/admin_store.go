package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
	dbpkg "github.com/BrandonDHaskell/CampusGate/server/internal/db"
)

type AdminStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAdminStore(db *sql.DB, writer *dbpkg.Worker) *AdminStore {
	return &AdminStore{db: db, writer: writer}
}

func (s *AdminStore) SaveAdmin(ctx context.Context, a store.Admin) error {
	if a.ID == "" || a.Username == "" {
		return fmt.Errorf("SaveAdmin: id and username are required")
	}
	nowMs := time.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO administrators(
  admin_id, username, full_name, email, password_hash, totp_secret,
  is_active, failed_login_attempts, locked_until_ms, last_login_ms,
  created_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(admin_id) DO UPDATE SET
  username              = excluded.username,
  full_name             = excluded.full_name,
  email                 = excluded.email,
  password_hash         = excluded.password_hash,
  totp_secret           = excluded.totp_secret,
  is_active             = excluded.is_active,
  failed_login_attempts = excluded.failed_login_attempts,
  locked_until_ms       = excluded.locked_until_ms,
  last_login_ms         = excluded.last_login_ms,
  updated_at_ms         = excluded.updated_at_ms;
`, a.ID, a.Username, a.FullName, a.Email, a.PasswordHash, a.TOTPSecret,
			boolInt(a.IsActive), a.FailedAttempts, msOrNil(a.LockedUntil), msOrNil(a.LastLogin),
			nowMs, nowMs); err != nil {
			return fmt.Errorf("SaveAdmin %s: %w", a.Username, err)
		}
		return nil
	})
}

func (s *AdminStore) FindAdmin(ctx context.Context, username string) (*store.Admin, error) {
	var a store.Admin
	var locked, last sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
SELECT admin_id, username, full_name, email, password_hash, totp_secret,
       is_active, failed_login_attempts, locked_until_ms, last_login_ms
FROM administrators
WHERE username = ?;
`, username).Scan(&a.ID, &a.Username, &a.FullName, &a.Email, &a.PasswordHash, &a.TOTPSecret,
		&a.IsActive, &a.FailedAttempts, &locked, &last)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("FindAdmin: %w", err)
	}
	a.LockedUntil = timeOrNil(locked)
	a.LastLogin = timeOrNil(last)
	return &a, nil
}

func (s *AdminStore) RecordLoginFailure(ctx context.Context, id string, lockUntil *time.Time) error {
	nowMs := time.Now().UTC().UnixMilli()
	return s.exec(ctx, "RecordLoginFailure", `
UPDATE administrators
SET failed_login_attempts = failed_login_attempts + 1,
    locked_until_ms       = COALESCE(?, locked_until_ms),
    updated_at_ms         = ?
WHERE admin_id = ?;
`, msOrNil(lockUntil), nowMs, id)
}

func (s *AdminStore) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	return s.exec(ctx, "RecordLoginSuccess", `
UPDATE administrators
SET failed_login_attempts = 0,
    locked_until_ms       = NULL,
    last_login_ms         = ?,
    updated_at_ms         = ?
WHERE admin_id = ?;
`, at.UTC().UnixMilli(), at.UTC().UnixMilli(), id)
}

func (s *AdminStore) exec(ctx context.Context, op, q string, args ...any) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func msOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().UnixMilli()
}

func timeOrNil(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := time.UnixMilli(ms.Int64).UTC()
	return &t
}
