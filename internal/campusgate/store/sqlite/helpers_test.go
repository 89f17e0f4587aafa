package sqlite_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
	sqlitestore "github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store/sqlite"
	"github.com/BrandonDHaskell/CampusGate/server/internal/db"
)

// openTestDB returns an in-memory SQLite connection with the same PRAGMAs
// and schema as production.  The connection is closed when the test ends.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Shared cache keeps the named in-memory database alive across the
	// pool's reconnects; the test name keeps each test isolated.
	conn, err := sql.Open("sqlite", db.SQLiteDSN("test_"+t.Name()+"?mode=memory&cache=shared", 0))
	require.NoError(t, err)

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	require.NoError(t, conn.Ping())
	require.NoError(t, db.Migrate(context.Background(), conn))

	t.Cleanup(func() { conn.Close() })
	return conn
}

// newTestWriter returns a db.Worker backed by conn, closed when the test
// ends.
func newTestWriter(t *testing.T, conn *sql.DB) *db.Worker {
	t.Helper()

	w := db.NewWorker(conn)
	t.Cleanup(func() { w.Close() })
	return w
}

type fixture struct {
	conn *sql.DB
	dir  *sqlitestore.DirectoryStore
	logs *sqlitestore.AccessLogStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	return fixture{
		conn: conn,
		dir:  sqlitestore.NewDirectoryStore(conn, w),
		logs: sqlitestore.NewAccessLogStore(conn, w),
	}
}

var testNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func testStudent(id string, active bool) *store.Student {
	return &store.Student{
		ID: id, RegistrationNumber: "REG-" + id,
		FirstName: "Jane", Surname: "Doe", Email: id + "@campus.test",
		Department: "Engineering", Program: "BEng Civil",
		Status: "Enrolled", IsActive: active,
	}
}

// issue saves h and issues it a card carrying rfid.
func (f fixture) issue(t *testing.T, h store.Holder, rfid string, expires *time.Time) store.Card {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.dir.SaveHolder(ctx, h))
	card := store.Card{
		ID:         "card-" + rfid,
		RFIDNumber: rfid,
		Type:       h.Kind(),
		Holder:     h,
		IsActive:   true,
		IssuedAt:   testNow.AddDate(0, -1, 0),
		ExpiresAt:  expires,
	}
	require.NoError(t, f.dir.IssueCard(ctx, card))
	return card
}
