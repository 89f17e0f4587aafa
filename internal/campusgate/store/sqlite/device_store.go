package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
	dbpkg "github.com/BrandonDHaskell/CampusGate/server/internal/db"
)

// DeviceStore keeps card reader gates in the gates table.
type DeviceStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewDeviceStore(db *sql.DB, writer *dbpkg.Worker) *DeviceStore {
	return &DeviceStore{db: db, writer: writer}
}

// IsKnown: a gate is known when it is commissioned, enabled and not revoked.
func (s *DeviceStore) IsKnown(ctx context.Context, gateID string) (bool, error) {
	gateID = strings.TrimSpace(gateID)
	if gateID == "" {
		return false, nil
	}

	var enabled int
	var commissioned, revoked sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
SELECT enabled, commissioned_at_ms, revoked_at_ms
FROM gates
WHERE gate_id = ?;
`, gateID).Scan(&enabled, &commissioned, &revoked)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("IsKnown query: %w", err)
	}
	return enabled == 1 && commissioned.Valid && !revoked.Valid, nil
}

// MarkSeen records the time a gate was last heard from.  Unknown gates get
// a disabled row so an operator can see and commission them later.
func (s *DeviceStore) MarkSeen(ctx context.Context, gateID string, _ bool, t time.Time) error {
	gateID = strings.TrimSpace(gateID)
	if gateID == "" {
		return nil
	}
	if t.IsZero() {
		t = time.Now().UTC()
	}
	ms := t.UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureGate(ctx, tx, gateID, ms); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE gates
SET last_seen_at_ms = ?,
    updated_at_ms   = ?
WHERE gate_id = ?;
`, ms, ms, gateID); err != nil {
			return fmt.Errorf("MarkSeen update gate: %w", err)
		}
		return nil
	})
}

func (s *DeviceStore) Authenticate(ctx context.Context, keyHash []byte) (string, bool, error) {
	if len(keyHash) == 0 {
		return "", false, nil
	}

	var gateID string
	err := s.db.QueryRowContext(ctx, `
SELECT gate_id
FROM gates
WHERE api_key_hash = ?
  AND enabled = 1
  AND commissioned_at_ms IS NOT NULL
  AND revoked_at_ms IS NULL;
`, keyHash).Scan(&gateID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("Authenticate: %w", err)
	}
	return gateID, true, nil
}

// Register commissions a gate, replacing its key hash and clearing any
// revocation.
func (s *DeviceStore) Register(ctx context.Context, rec store.DeviceRecord, keyHash []byte) error {
	id := strings.TrimSpace(rec.GateID)
	if id == "" {
		return fmt.Errorf("Register: gate id is required")
	}
	var hash any
	if len(keyHash) > 0 {
		hash = keyHash
	}
	nowMs := time.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO gates(
  gate_id, display_name, location, enabled, commissioned_at_ms,
  api_key_hash, created_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(gate_id) DO UPDATE SET
  display_name       = excluded.display_name,
  location           = excluded.location,
  enabled            = excluded.enabled,
  commissioned_at_ms = COALESCE(gates.commissioned_at_ms, excluded.commissioned_at_ms),
  revoked_at_ms      = NULL,
  api_key_hash       = excluded.api_key_hash,
  updated_at_ms      = excluded.updated_at_ms;
`, id, nullString(rec.DisplayName), nullString(rec.Location), boolInt(rec.Enabled), nowMs,
			hash, nowMs, nowMs); err != nil {
			return fmt.Errorf("Register %s: %w", id, err)
		}
		return nil
	})
}

func (s *DeviceStore) Counts(ctx context.Context, onlineSince time.Time) (store.DeviceCounts, error) {
	var c store.DeviceCounts
	err := s.db.QueryRowContext(ctx, `
SELECT
  COUNT(*),
  COALESCE(SUM(CASE WHEN last_seen_at_ms >= ? THEN 1 ELSE 0 END), 0)
FROM gates
WHERE enabled = 1 AND revoked_at_ms IS NULL;
`, onlineSince.UTC().UnixMilli()).Scan(&c.Total, &c.Online)
	if err != nil {
		return c, fmt.Errorf("device Counts: %w", err)
	}
	return c, nil
}

// ensureGate inserts a disabled, uncommissioned gates row for gateID if
// none exists, so heartbeats can reference it.  Runs inside the caller's
// transaction.
func ensureGate(ctx context.Context, tx *sql.Tx, gateID string, nowMs int64) error {
	if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO gates(
  gate_id, enabled, created_at_ms, updated_at_ms
) VALUES (?, 0, ?, ?);
`, gateID, nowMs, nowMs); err != nil {
		return fmt.Errorf("ensureGate %s: %w", gateID, err)
	}
	return nil
}
