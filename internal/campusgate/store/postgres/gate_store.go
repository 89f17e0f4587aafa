package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
)

type DeviceStore struct {
	pool *pgxpool.Pool
}

func NewDeviceStore(pool *pgxpool.Pool) *DeviceStore {
	return &DeviceStore{pool: pool}
}

func (s *DeviceStore) IsKnown(ctx context.Context, gateID string) (bool, error) {
	gateID = strings.TrimSpace(gateID)
	if gateID == "" {
		return false, nil
	}
	var known bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM gates
			WHERE gate_id = $1 AND enabled AND commissioned_at IS NOT NULL AND revoked_at IS NULL
		)
	`, gateID).Scan(&known)
	if err != nil {
		return false, fmt.Errorf("is known %s: %w", gateID, err)
	}
	return known, nil
}

func (s *DeviceStore) MarkSeen(ctx context.Context, gateID string, _ bool, t time.Time) error {
	gateID = strings.TrimSpace(gateID)
	if gateID == "" {
		return nil
	}
	if t.IsZero() {
		t = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO gates (gate_id, enabled, last_seen_at)
		VALUES ($1, FALSE, $2)
		ON CONFLICT (gate_id) DO UPDATE SET
			last_seen_at = EXCLUDED.last_seen_at,
			updated_at   = now()
	`, gateID, t.UTC())
	if err != nil {
		return fmt.Errorf("mark seen %s: %w", gateID, err)
	}
	return nil
}

func (s *DeviceStore) Authenticate(ctx context.Context, keyHash []byte) (string, bool, error) {
	if len(keyHash) == 0 {
		return "", false, nil
	}
	var gateID string
	err := s.pool.QueryRow(ctx, `
		SELECT gate_id FROM gates
		WHERE api_key_hash = $1 AND enabled AND commissioned_at IS NOT NULL AND revoked_at IS NULL
	`, keyHash).Scan(&gateID)
	if err != nil {
		if isNoRows(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("authenticate gate: %w", err)
	}
	return gateID, true, nil
}

func (s *DeviceStore) Register(ctx context.Context, rec store.DeviceRecord, keyHash []byte) error {
	id := strings.TrimSpace(rec.GateID)
	if id == "" {
		return fmt.Errorf("register gate: gate id is required")
	}
	var hash []byte
	if len(keyHash) > 0 {
		hash = keyHash
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO gates (gate_id, display_name, location, enabled, commissioned_at, api_key_hash)
		VALUES ($1, $2, $3, $4, now(), $5)
		ON CONFLICT (gate_id) DO UPDATE SET
			display_name    = EXCLUDED.display_name,
			location        = EXCLUDED.location,
			enabled         = EXCLUDED.enabled,
			commissioned_at = COALESCE(gates.commissioned_at, EXCLUDED.commissioned_at),
			revoked_at      = NULL,
			api_key_hash    = EXCLUDED.api_key_hash,
			updated_at      = now()
	`, id, strPtr(rec.DisplayName), strPtr(rec.Location), rec.Enabled, hash)
	if err != nil {
		return fmt.Errorf("register gate %s: %w", id, err)
	}
	return nil
}

func (s *DeviceStore) Counts(ctx context.Context, onlineSince time.Time) (store.DeviceCounts, error) {
	var c store.DeviceCounts
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE last_seen_at >= $1)
		FROM gates
		WHERE enabled AND revoked_at IS NULL
	`, onlineSince.UTC()).Scan(&c.Total, &c.Online)
	if err != nil {
		return c, fmt.Errorf("count gates: %w", err)
	}
	return c, nil
}

type HeartbeatStore struct {
	pool *pgxpool.Pool
}

func NewHeartbeatStore(pool *pgxpool.Pool) *HeartbeatStore {
	return &HeartbeatStore{pool: pool}
}

// UpsertHeartbeat appends the heartbeat and refreshes the gate snapshot in
// one transaction.
func (s *HeartbeatStore) UpsertHeartbeat(ctx context.Context, gateID string, rec store.HeartbeatRecord) error {
	gateID = strings.TrimSpace(gateID)
	if gateID == "" {
		return nil
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	req := rec.Request
	fw := strings.TrimSpace(req.FirmwareVersion)
	ip := strings.TrimSpace(req.IP)

	var uptimeMs, seq, freeHeap *int64
	if req.UptimeSeconds != 0 {
		v := int64(req.UptimeSeconds) * 1000
		uptimeMs = &v
	}
	if req.Sequence != 0 {
		v := int64(req.Sequence)
		seq = &v
	}
	if req.FreeHeapBytes != 0 {
		v := int64(req.FreeHeapBytes)
		freeHeap = &v
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("heartbeat begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `
		INSERT INTO gates (gate_id, enabled, last_seen_at, last_ip, last_fw_version, last_wifi_rssi)
		VALUES ($1, FALSE, $2, $3, $4, $5)
		ON CONFLICT (gate_id) DO UPDATE SET
			last_seen_at    = EXCLUDED.last_seen_at,
			last_ip         = EXCLUDED.last_ip,
			last_fw_version = EXCLUDED.last_fw_version,
			last_wifi_rssi  = EXCLUDED.last_wifi_rssi,
			updated_at      = now()
	`, gateID, rec.ReceivedAt.UTC(), ip, fw, req.RSSIDbm); err != nil {
		return fmt.Errorf("heartbeat gate snapshot: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO gate_heartbeats (gate_id, received_at, seq, uptime_ms, fw_version, wifi_rssi, ip, free_heap_bytes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, gateID, rec.ReceivedAt.UTC(), seq, uptimeMs, fw, req.RSSIDbm, ip, freeHeap); err != nil {
		return fmt.Errorf("heartbeat insert: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *HeartbeatStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM gate_heartbeats WHERE received_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune heartbeats: %w", err)
	}
	return tag.RowsAffected(), nil
}
