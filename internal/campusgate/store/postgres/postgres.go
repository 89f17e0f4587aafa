// Package postgres implements the CampusGate stores on a pgx connection
// pool.  Every store shares one pool; Postgres handles write concurrency,
// so there is no single-writer worker here.
package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Stores bundles the pool-backed stores.
type Stores struct {
	Directory  *DirectoryStore
	AccessLogs *AccessLogStore
	Devices    *DeviceStore
	Heartbeats *HeartbeatStore
	Admins     *AdminStore

	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Stores {
	return &Stores{
		Directory:  &DirectoryStore{pool: pool},
		AccessLogs: &AccessLogStore{pool: pool},
		Devices:    &DeviceStore{pool: pool},
		Heartbeats: &HeartbeatStore{pool: pool},
		Admins:     &AdminStore{pool: pool},
		pool:       pool,
	}
}

func (s *Stores) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func newID() string {
	return uuid.NewString()
}
