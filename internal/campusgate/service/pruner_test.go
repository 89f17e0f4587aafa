package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/service"
	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store/memory"
	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/types"
)

func TestHeartbeatRetention_ZeroDaysKeepsEverything(t *testing.T) {
	_, ok := service.HeartbeatRetention(memory.New(), 0)
	assert.False(t, ok)
}

func TestPruner_DisabledWithoutTasks(t *testing.T) {
	pruner := service.NewPruner(service.PrunerConfig{IntervalHours: 1}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pruner.Start(ctx)
	pruner.Stop()
}

func TestPruner_PrunesHeartbeatsOnStart(t *testing.T) {
	ms := memory.New()
	ctx := context.Background()

	require.NoError(t, ms.UpsertHeartbeat(ctx, "gate-old", store.HeartbeatRecord{
		ReceivedAt: time.Now().UTC().AddDate(0, 0, -40),
		Request:    types.HeartbeatRequest{GateID: "gate-old"},
	}))
	require.NoError(t, ms.UpsertHeartbeat(ctx, "gate-recent", store.HeartbeatRecord{
		ReceivedAt: time.Now().UTC().AddDate(0, 0, -1),
		Request:    types.HeartbeatRequest{GateID: "gate-recent"},
	}))

	task, ok := service.HeartbeatRetention(ms, 30)
	require.True(t, ok)

	pruner := service.NewPruner(service.PrunerConfig{IntervalHours: 1}, zap.NewNop(), task)
	pruner.Start(ctx)
	defer pruner.Stop()

	require.Eventually(t, func() bool {
		_, ok := ms.Latest("gate-old")
		return !ok
	}, time.Second, 10*time.Millisecond)

	_, ok = ms.Latest("gate-recent")
	assert.True(t, ok, "recent heartbeat must survive")
}

func TestPruner_FailingTaskDoesNotBlockOthers(t *testing.T) {
	var ran atomic.Int32
	failing := service.PruneTask{Name: "broken", Run: func(context.Context, time.Time) (int64, error) {
		return 0, errors.New("store offline")
	}}
	counting := service.PruneTask{Name: "counting", Run: func(context.Context, time.Time) (int64, error) {
		ran.Add(1)
		return 1, nil
	}}

	pruner := service.NewPruner(service.PrunerConfig{IntervalHours: 1}, zap.NewNop(), failing, counting)
	pruner.Start(context.Background())
	defer pruner.Stop()

	require.Eventually(t, func() bool { return ran.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestPruner_SweepsExpiredKeys(t *testing.T) {
	kv := memory.NewKV()
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, "session:gone", "admin-1", time.Millisecond))
	require.NoError(t, kv.Set(ctx, "session:kept", "admin-2", time.Hour))
	time.Sleep(5 * time.Millisecond)

	pruner := service.NewPruner(service.PrunerConfig{IntervalHours: 1}, zap.NewNop(), service.ExpiredKeys(kv))
	pruner.Start(ctx)
	defer pruner.Stop()

	require.Eventually(t, func() bool { return kv.Len() == 1 }, time.Second, 10*time.Millisecond)
	v, err := kv.Get(ctx, "session:kept")
	require.NoError(t, err)
	assert.Equal(t, "admin-2", v)
}

func TestPruner_StopIsIdempotent(t *testing.T) {
	task, _ := service.HeartbeatRetention(memory.New(), 30)
	pruner := service.NewPruner(service.PrunerConfig{IntervalHours: 1}, zap.NewNop(), task)

	ctx, cancel := context.WithCancel(context.Background())
	pruner.Start(ctx)

	cancel()
	pruner.Stop()
	pruner.Stop()
}
