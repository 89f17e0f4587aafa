package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store/memory"
)

func TestAccessLogStore_ListNewestFirstWithPaging(t *testing.T) {
	logs := memory.NewAccessLogStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, logs.Append(ctx, store.AccessLogEntry{
			ID:         id,
			RFIDNumber: "R1",
			Decision:   store.DecisionGranted,
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := logs.List(ctx, store.LogFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)

	from := base.Add(2 * time.Minute)
	got, err = logs.List(ctx, store.LogFilter{From: &from})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = logs.List(ctx, store.LogFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAccessLogStore_RejectsInvalidAndDuplicate(t *testing.T) {
	logs := memory.NewAccessLogStore()
	ctx := context.Background()
	e := store.AccessLogEntry{ID: "x", Decision: store.DecisionGranted, Timestamp: time.Now()}

	require.NoError(t, logs.Append(ctx, e))
	assert.ErrorIs(t, logs.Append(ctx, e), store.ErrConflict)

	bad := e
	bad.ID = "y"
	bad.DenialReason = store.ReasonCardExpired
	assert.ErrorIs(t, logs.Append(ctx, bad), store.ErrInvalidLogEntry)

	_, err := logs.Get(ctx, "y")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
