package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store/memory"
	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store/postgres"
	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store/redisstore"
	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store/sqlite"
	"github.com/BrandonDHaskell/CampusGate/server/internal/config"
	"github.com/BrandonDHaskell/CampusGate/server/internal/db"
)

func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backend, error) {
	switch cfg.StoreDriver {
	case "memory":
		dir := memory.NewDirectory()
		return &backend{
			holders:    dir,
			cards:      dir,
			logs:       memory.NewAccessLogStore(),
			devices:    memory.NewDeviceStore(cfg.DeviceKeys),
			heartbeats: memory.New(),
			admins:     memory.NewAdminStore(),
			close:      func() {},
		}, nil

	case "postgres":
		pool, err := db.OpenPostgres(ctx, db.PostgresConfig{DSN: cfg.PostgresDSN})
		if err != nil {
			return nil, err
		}
		pg := postgres.New(pool)
		logger.Info("postgres store ready")
		return &backend{
			holders:    pg.Directory,
			cards:      pg.Directory,
			logs:       pg.AccessLogs,
			devices:    pg.Devices,
			heartbeats: pg.Heartbeats,
			admins:     pg.Admins,
			pinger:     pg,
			close:      pool.Close,
		}, nil
	}

	conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath})
	if err != nil {
		return nil, err
	}
	writer := db.NewWorkerSize(conn, cfg.AuditQueueSize)
	dir := sqlite.NewDirectoryStore(conn, writer)
	logger.Info("sqlite store ready", zap.String("path", cfg.DBPath))
	return &backend{
		holders:    dir,
		cards:      dir,
		logs:       sqlite.NewAccessLogStore(conn, writer),
		devices:    sqlite.NewDeviceStore(conn, writer),
		heartbeats: sqlite.NewHeartbeatStore(conn, writer),
		admins:     sqlite.NewAdminStore(conn, writer),
		pinger:     dir,
		close: func() {
			writer.Close()
			_ = conn.Close()
		},
	}, nil
}

// openKV returns Redis when configured and reachable, else an in-memory KV.
func openKV(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.KV, func()) {
	if cfg.RedisAddr == "" {
		return memory.NewKV(), func() {}
	}
	client := redisstore.NewClient(redisstore.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	kv := redisstore.NewKV(client, "")

	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := kv.Ping(pctx); err != nil {
		logger.Warn("redis unreachable, admin sessions kept in memory", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		_ = client.Close()
		return memory.NewKV(), func() {}
	}
	logger.Info("redis session store ready", zap.String("addr", cfg.RedisAddr))
	return kv, func() { _ = client.Close() }
}
