package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
	sqlitestore "github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store/sqlite"
	"github.com/BrandonDHaskell/CampusGate/server/internal/db"
)

func logEntry(id, rfid string, ts time.Time, reason store.DenialReason, location string) store.AccessLogEntry {
	e := store.AccessLogEntry{
		ID:             id,
		RFIDNumber:     rfid,
		Decision:       store.DecisionGranted,
		Location:       location,
		DeviceID:       "gate-main",
		RemoteIP:       "10.1.0.7",
		Timestamp:      ts,
		ResponseTimeMs: 3,
	}
	if reason != "" {
		e.Decision = store.DecisionDenied
		e.DenialReason = reason
	}
	return e
}

func TestAccessLogStore_AppendAndGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	card := f.issue(t, testStudent("stu-1", true), "CARD001", nil)

	e := logEntry("log-1", "CARD001", testNow, "", "Library")
	e.CardID = &card.ID
	require.NoError(t, f.logs.Append(ctx, e))

	got, err := f.logs.Get(ctx, "log-1")
	require.NoError(t, err)
	assert.Equal(t, store.DecisionGranted, got.Decision)
	assert.Empty(t, got.DenialReason)
	require.NotNil(t, got.CardID)
	assert.Equal(t, card.ID, *got.CardID)
	assert.Equal(t, "Library", got.Location)
	assert.Equal(t, "10.1.0.7", got.RemoteIP)
	assert.True(t, got.Timestamp.Equal(testNow))
	assert.Equal(t, int64(3), got.ResponseTimeMs)

	_, err = f.logs.Get(ctx, "log-404")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAccessLogStore_Append_UnknownRFIDHasNoCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.logs.Append(ctx, logEntry("log-1", "GHOST", testNow, store.ReasonInvalidRFID, "")))

	got, err := f.logs.Get(ctx, "log-1")
	require.NoError(t, err)
	assert.Nil(t, got.CardID)
	assert.Equal(t, store.ReasonInvalidRFID, got.DenialReason)
}

func TestAccessLogStore_Append_RejectsInvalidEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	granted := logEntry("log-1", "CARD001", testNow, "", "")
	granted.DenialReason = store.ReasonCardExpired
	assert.ErrorIs(t, f.logs.Append(ctx, granted), store.ErrInvalidLogEntry)

	denied := logEntry("log-2", "CARD001", testNow, "", "")
	denied.Decision = store.DecisionDenied
	assert.ErrorIs(t, f.logs.Append(ctx, denied), store.ErrInvalidLogEntry)

	n, err := f.logs.Count(ctx, store.CountFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAccessLogStore_IsAppendOnly(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.logs.Append(context.Background(), logEntry("log-1", "CARD001", testNow, store.ReasonInvalidRFID, "")))

	_, err := f.conn.Exec(`UPDATE access_logs SET decision = 'granted', denial_reason = NULL WHERE log_id = 'log-1'`)
	assert.Error(t, err)

	_, err = f.conn.Exec(`DELETE FROM access_logs WHERE log_id = 'log-1'`)
	assert.Error(t, err)
}

func TestAccessLogStore_List_FiltersAndOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entries := []store.AccessLogEntry{
		logEntry("a", "CARD001", testNow.Add(-3*time.Hour), "", "Library"),
		logEntry("b", "CARD002", testNow.Add(-2*time.Hour), store.ReasonCardExpired, "Library"),
		logEntry("c", "CARD001", testNow.Add(-1*time.Hour), store.ReasonCardInactive, "Main Gate"),
		logEntry("d", "CARD001", testNow, "", "Main Gate"),
	}
	for _, e := range entries {
		require.NoError(t, f.logs.Append(ctx, e))
	}

	all, err := f.logs.List(ctx, store.LogFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, []string{"d", "c", "b", "a"}, ids(all), "newest first")

	byCard, err := f.logs.List(ctx, store.LogFilter{RFIDNumber: "CARD001", Decision: store.DecisionDenied})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(byCard))

	from := testNow.Add(-2 * time.Hour)
	to := testNow
	window, err := f.logs.List(ctx, store.LogFilter{From: &from, To: &to})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, ids(window), "From inclusive, To exclusive")

	page, err := f.logs.List(ctx, store.LogFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, ids(page))
}

func TestAccessLogStore_Aggregates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i, e := range []store.AccessLogEntry{
		logEntry("old", "CARD001", testNow.AddDate(0, 0, -40), store.ReasonCardExpired, "Library"),
		logEntry("1", "CARD001", testNow.Add(-5*time.Minute), "", "Library"),
		logEntry("2", "CARD002", testNow.Add(-4*time.Minute), store.ReasonCardExpired, "Library"),
		logEntry("3", "CARD003", testNow.Add(-3*time.Minute), store.ReasonCardExpired, "Main Gate"),
		logEntry("4", "CARD004", testNow.Add(-2*time.Minute), store.ReasonInvalidRFID, "Main Gate"),
		logEntry("5", "CARD001", testNow.Add(-1*time.Minute), "", "Hostel"),
		logEntry("6", "CARD001", testNow, "", ""),
	} {
		require.NoError(t, f.logs.Append(ctx, e), "entry %d", i)
	}

	since := testNow.AddDate(0, 0, -30)

	total, err := f.logs.Count(ctx, store.CountFilter{Since: &since})
	require.NoError(t, err)
	assert.Equal(t, int64(6), total)

	granted, err := f.logs.Count(ctx, store.CountFilter{Decision: store.DecisionGranted, Since: &since})
	require.NoError(t, err)
	assert.Equal(t, int64(3), granted)

	reasons, err := f.logs.CountByReason(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, map[store.DenialReason]int64{
		store.ReasonCardExpired: 2,
		store.ReasonInvalidRFID: 1,
	}, reasons)

	top, err := f.logs.TopLocations(ctx, since, 2)
	require.NoError(t, err)
	assert.Equal(t, []store.LocationCount{
		{Location: "Library", Count: 2},
		{Location: "Main Gate", Count: 2},
	}, top)
}

func TestAccessLogStore_Get_QueryFailure(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectQuery(`SELECT .* FROM access_logs WHERE log_id = \?`).
		WithArgs("log-1").
		WillReturnError(errors.New("disk I/O error"))

	s := sqlitestore.NewAccessLogStore(mockDB, nil)
	_, err = s.Get(context.Background(), "log-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrNotFound)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessLogStore_Append_InsertFailureRollsBack(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO access_logs`).WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	w := db.NewWorker(mockDB)
	defer w.Close()

	s := sqlitestore.NewAccessLogStore(mockDB, w)
	err = s.Append(context.Background(), logEntry("log-1", "CARD001", testNow, "", ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func ids(es []store.AccessLogEntry) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.ID
	}
	return out
}
