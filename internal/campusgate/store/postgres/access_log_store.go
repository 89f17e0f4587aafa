package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
)

// AccessLogStore is the Postgres audit log.  A trigger on access_logs
// rejects UPDATE and DELETE.
type AccessLogStore struct {
	pool *pgxpool.Pool
}

func NewAccessLogStore(pool *pgxpool.Pool) *AccessLogStore {
	return &AccessLogStore{pool: pool}
}

func (s *AccessLogStore) Append(ctx context.Context, e store.AccessLogEntry) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("append access log: %w", err)
	}
	var reason *string
	if e.DenialReason != "" {
		r := string(e.DenialReason)
		reason = &r
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO access_logs (log_id, rfid_number, card_id, decision, denial_reason,
		                         location, device_id, ip_address, ts, response_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.RFIDNumber, e.CardID, string(e.Decision), reason,
		strPtr(e.Location), strPtr(e.DeviceID), strPtr(e.RemoteIP), e.Timestamp.UTC(), e.ResponseTimeMs)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("append access log %s: %w", e.ID, store.ErrConflict)
		}
		return fmt.Errorf("append access log: %w", err)
	}
	return nil
}

const logColumns = `log_id, rfid_number, card_id, decision, denial_reason,
	location, device_id, ip_address, ts, response_time_ms`

func (s *AccessLogStore) Get(ctx context.Context, id string) (*store.AccessLogEntry, error) {
	e, err := scanLogEntry(s.pool.QueryRow(ctx, `SELECT `+logColumns+` FROM access_logs WHERE log_id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get access log %s: %w", id, err)
	}
	return &e, nil
}

func (s *AccessLogStore) List(ctx context.Context, f store.LogFilter) ([]store.AccessLogEntry, error) {
	var (
		where []string
		args  []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf("%s $%d", col, len(args)))
	}
	if f.RFIDNumber != "" {
		add("rfid_number =", f.RFIDNumber)
	}
	if f.CardID != "" {
		add("card_id =", f.CardID)
	}
	if f.Decision != "" {
		add("decision =", string(f.Decision))
	}
	if f.DenialReason != "" {
		add("denial_reason =", string(f.DenialReason))
	}
	if f.Location != "" {
		add("location =", f.Location)
	}
	if f.DeviceID != "" {
		add("device_id =", f.DeviceID)
	}
	if f.From != nil {
		add("ts >=", f.From.UTC())
	}
	if f.To != nil {
		add("ts <", f.To.UTC())
	}

	q := "SELECT " + logColumns + " FROM access_logs"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, store.ClampLimit(f.Limit), offset)
	q += fmt.Sprintf(" ORDER BY ts DESC, created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list access logs: %w", err)
	}
	defer rows.Close()

	out := []store.AccessLogEntry{}
	for rows.Next() {
		e, err := scanLogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan access log: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list access logs: %w", err)
	}
	return out, nil
}

func (s *AccessLogStore) Count(ctx context.Context, f store.CountFilter) (int64, error) {
	var decision *string
	if f.Decision != "" {
		d := string(f.Decision)
		decision = &d
	}
	var since *time.Time
	if f.Since != nil {
		t := f.Since.UTC()
		since = &t
	}

	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM access_logs
		WHERE ($1::text IS NULL OR decision = $1)
		  AND ($2::timestamptz IS NULL OR ts >= $2)
	`, decision, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count access logs: %w", err)
	}
	return n, nil
}

func (s *AccessLogStore) CountByReason(ctx context.Context, since time.Time) (map[store.DenialReason]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT denial_reason, COUNT(*)
		FROM access_logs
		WHERE decision = 'denied' AND ts >= $1
		GROUP BY denial_reason
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("count by reason: %w", err)
	}
	defer rows.Close()

	out := make(map[store.DenialReason]int64)
	for rows.Next() {
		var reason string
		var n int64
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, fmt.Errorf("scan reason count: %w", err)
		}
		out[store.DenialReason(reason)] = n
	}
	return out, rows.Err()
}

func (s *AccessLogStore) TopLocations(ctx context.Context, since time.Time, limit int) ([]store.LocationCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT location, COUNT(*) AS n
		FROM access_logs
		WHERE ts >= $1 AND location IS NOT NULL AND location <> ''
		GROUP BY location
		ORDER BY n DESC, location ASC
		LIMIT $2
	`, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("top locations: %w", err)
	}
	defer rows.Close()

	out := []store.LocationCount{}
	for rows.Next() {
		var lc store.LocationCount
		if err := rows.Scan(&lc.Location, &lc.Count); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

func scanLogEntry(row pgx.Row) (store.AccessLogEntry, error) {
	var (
		e                          store.AccessLogEntry
		decision                   string
		reason                     *string
		location, device, remoteIP *string
	)
	if err := row.Scan(&e.ID, &e.RFIDNumber, &e.CardID, &decision, &reason,
		&location, &device, &remoteIP, &e.Timestamp, &e.ResponseTimeMs); err != nil {
		return e, err
	}
	e.Decision = store.Decision(decision)
	e.DenialReason = store.DenialReason(deref(reason))
	e.Location, e.DeviceID, e.RemoteIP = deref(location), deref(device), deref(remoteIP)
	e.Timestamp = e.Timestamp.UTC()
	return e, nil
}
