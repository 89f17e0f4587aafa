package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteDSN(t *testing.T) {
	dsn := SQLiteDSN("./data/cg.db", 250*time.Millisecond)
	assert.Equal(t, "file:./data/cg.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"+
		"&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(250)", dsn)

	dsn = SQLiteDSN("mem?mode=memory", 0)
	assert.Contains(t, dsn, "mem?mode=memory&_pragma=foreign_keys(1)")
	assert.Contains(t, dsn, "busy_timeout(5000)")
}

func TestOpen_CreatesDirAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "campusgate.db")

	conn, err := Open(context.Background(), Config{Path: path})
	require.NoError(t, err)
	defer conn.Close()

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM access_logs`).Scan(&n))
	assert.Zero(t, n)

	// Re-running migrations on an up-to-date database is a no-op.
	require.NoError(t, Migrate(context.Background(), conn))
}
