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

type HeartbeatStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewHeartbeatStore(db *sql.DB, writer *dbpkg.Worker) *HeartbeatStore {
	return &HeartbeatStore{db: db, writer: writer}
}

// UpsertHeartbeat appends a heartbeat row and refreshes the gate's
// last-known snapshot in the same transaction.
func (s *HeartbeatStore) UpsertHeartbeat(ctx context.Context, gateID string, rec store.HeartbeatRecord) error {
	gateID = strings.TrimSpace(gateID)
	if gateID == "" {
		return nil
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	recvMs := rec.ReceivedAt.UTC().UnixMilli()

	req := rec.Request
	fw := strings.TrimSpace(req.FirmwareVersion)
	ip := strings.TrimSpace(req.IP)

	var rssi, uptimeMs, seq, freeHeap any
	if req.RSSIDbm != nil {
		rssi = *req.RSSIDbm
	}
	if req.UptimeSeconds != 0 {
		uptimeMs = int64(req.UptimeSeconds) * 1000
	}
	if req.Sequence != 0 {
		seq = int64(req.Sequence)
	}
	if req.FreeHeapBytes != 0 {
		freeHeap = int64(req.FreeHeapBytes)
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureGate(ctx, tx, gateID, recvMs); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO gate_heartbeats(
  gate_id, received_at_ms, seq, uptime_ms, fw_version, wifi_rssi, ip, free_heap_bytes
) VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`, gateID, recvMs, seq, uptimeMs, fw, rssi, ip, freeHeap); err != nil {
			return fmt.Errorf("UpsertHeartbeat insert heartbeat: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE gates
SET last_seen_at_ms = ?,
    last_ip         = ?,
    last_fw_version = ?,
    last_wifi_rssi  = ?,
    updated_at_ms   = ?
WHERE gate_id = ?;
`, recvMs, ip, fw, rssi, recvMs, gateID); err != nil {
			return fmt.Errorf("UpsertHeartbeat update gate snapshot: %w", err)
		}
		return nil
	})
}

// PruneOlderThan deletes heartbeats received before cutoff and returns the
// number of rows removed.
func (s *HeartbeatStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM gate_heartbeats
WHERE received_at_ms < ?;
`, cutoff.UTC().UnixMilli())
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}
