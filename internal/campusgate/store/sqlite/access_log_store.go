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

// AccessLogStore is the SQLite audit log.  The table carries triggers that
// reject UPDATE and DELETE, so rows are immutable once appended.
type AccessLogStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAccessLogStore(db *sql.DB, writer *dbpkg.Worker) *AccessLogStore {
	return &AccessLogStore{db: db, writer: writer}
}

func (s *AccessLogStore) Append(ctx context.Context, e store.AccessLogEntry) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("Append: %w", err)
	}

	var cardID any
	if e.CardID != nil {
		cardID = *e.CardID
	}
	var reason any
	if e.DenialReason != "" {
		reason = string(e.DenialReason)
	}
	tsMs := e.Timestamp.UTC().UnixMilli()
	nowMs := time.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO access_logs(
  log_id, rfid_number, card_id, decision, denial_reason,
  location, device_id, ip_address, timestamp_ms, response_time_ms, created_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, e.ID, e.RFIDNumber, cardID, string(e.Decision), reason,
			nullString(e.Location), nullString(e.DeviceID), nullString(e.RemoteIP),
			tsMs, e.ResponseTimeMs, nowMs); err != nil {
			return fmt.Errorf("Append insert: %w", err)
		}
		return nil
	})
}

const logColumns = `log_id, rfid_number, card_id, decision, denial_reason,
       location, device_id, ip_address, timestamp_ms, response_time_ms`

func (s *AccessLogStore) Get(ctx context.Context, id string) (*store.AccessLogEntry, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+logColumns+`
FROM access_logs WHERE log_id = ?;
`, id)
	e, err := scanLogEntry(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Get %s: %w", id, err)
	}
	return &e, nil
}

func (s *AccessLogStore) List(ctx context.Context, f store.LogFilter) ([]store.AccessLogEntry, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		where = append(where, cond)
		args = append(args, v)
	}
	if f.RFIDNumber != "" {
		add("rfid_number = ?", f.RFIDNumber)
	}
	if f.CardID != "" {
		add("card_id = ?", f.CardID)
	}
	if f.Decision != "" {
		add("decision = ?", string(f.Decision))
	}
	if f.DenialReason != "" {
		add("denial_reason = ?", string(f.DenialReason))
	}
	if f.Location != "" {
		add("location = ?", f.Location)
	}
	if f.DeviceID != "" {
		add("device_id = ?", f.DeviceID)
	}
	if f.From != nil {
		add("timestamp_ms >= ?", f.From.UTC().UnixMilli())
	}
	if f.To != nil {
		add("timestamp_ms < ?", f.To.UTC().UnixMilli())
	}

	q := "SELECT " + logColumns + " FROM access_logs"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY timestamp_ms DESC, created_at_ms DESC LIMIT ? OFFSET ?;"
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, store.ClampLimit(f.Limit), offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	out := []store.AccessLogEntry{}
	for rows.Next() {
		e, err := scanLogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("List scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List rows: %w", err)
	}
	return out, nil
}

func (s *AccessLogStore) Count(ctx context.Context, f store.CountFilter) (int64, error) {
	q := "SELECT COUNT(*) FROM access_logs WHERE 1 = 1"
	var args []any
	if f.Decision != "" {
		q += " AND decision = ?"
		args = append(args, string(f.Decision))
	}
	if f.Since != nil {
		q += " AND timestamp_ms >= ?"
		args = append(args, f.Since.UTC().UnixMilli())
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return n, nil
}

func (s *AccessLogStore) CountByReason(ctx context.Context, since time.Time) (map[store.DenialReason]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT denial_reason, COUNT(*)
FROM access_logs
WHERE decision = 'denied' AND timestamp_ms >= ?
GROUP BY denial_reason;
`, since.UTC().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("CountByReason: %w", err)
	}
	defer rows.Close()

	out := make(map[store.DenialReason]int64)
	for rows.Next() {
		var reason string
		var n int64
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, fmt.Errorf("CountByReason scan: %w", err)
		}
		out[store.DenialReason(reason)] = n
	}
	return out, rows.Err()
}

func (s *AccessLogStore) TopLocations(ctx context.Context, since time.Time, limit int) ([]store.LocationCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT location, COUNT(*) AS n
FROM access_logs
WHERE timestamp_ms >= ? AND location IS NOT NULL AND location <> ''
GROUP BY location
ORDER BY n DESC, location ASC
LIMIT ?;
`, since.UTC().UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("TopLocations: %w", err)
	}
	defer rows.Close()

	out := []store.LocationCount{}
	for rows.Next() {
		var lc store.LocationCount
		if err := rows.Scan(&lc.Location, &lc.Count); err != nil {
			return nil, fmt.Errorf("TopLocations scan: %w", err)
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLogEntry(r rowScanner) (store.AccessLogEntry, error) {
	var (
		e                          store.AccessLogEntry
		decision                   string
		cardID, reason             sql.NullString
		location, device, remoteIP sql.NullString
		tsMs                       int64
	)
	if err := r.Scan(&e.ID, &e.RFIDNumber, &cardID, &decision, &reason,
		&location, &device, &remoteIP, &tsMs, &e.ResponseTimeMs); err != nil {
		return e, err
	}
	e.Decision = store.Decision(decision)
	e.DenialReason = store.DenialReason(reason.String)
	if cardID.Valid {
		id := cardID.String
		e.CardID = &id
	}
	e.Location, e.DeviceID, e.RemoteIP = location.String, device.String, remoteIP.String
	e.Timestamp = time.UnixMilli(tsMs).UTC()
	return e, nil
}
