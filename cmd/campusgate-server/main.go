package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/service"
	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
	"github.com/BrandonDHaskell/CampusGate/server/internal/config"
	"github.com/BrandonDHaskell/CampusGate/server/internal/db"
	"github.com/BrandonDHaskell/CampusGate/server/internal/grpcapi"
	"github.com/BrandonDHaskell/CampusGate/server/internal/httpapi"
	"github.com/BrandonDHaskell/CampusGate/server/internal/logging"
	"github.com/BrandonDHaskell/CampusGate/server/internal/notify"
)

func main() {
	cfg, err := config.Load()
	logger, lerr := logging.New(cfg.LogLevel, cfg.LogFormat, "campusgate-server")
	if lerr != nil {
		panic("failed to create logger: " + lerr.Error())
	}
	defer func() { _ = logger.Sync() }()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores
	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer be.close()

	kv, closeKV := openKV(ctx, cfg, logger)
	defer closeKV()

	if cfg.SeedDev && cfg.Env != "dev" {
		logger.Warn("seed_dev ignored outside dev", zap.String("env", cfg.Env))
	}
	if cfg.SeedDev && cfg.Env == "dev" {
		res, err := db.SeedDev(ctx, db.SeedStores{
			Holders: be.holders,
			Cards:   be.cards,
			Devices: be.devices,
			Admins:  be.admins,
		}, db.SeedDevOptions{})
		if err != nil {
			logger.Fatal("seed dev data", zap.Error(err))
		}
		if res.AdminTOTPSecret != "" {
			logger.Warn("dev admin seeded",
				zap.String("username", res.AdminUsername),
				zap.String("totp_secret", res.AdminTOTPSecret),
			)
		}
	}

	// Decision events
	var pub service.EventPublisher
	if cfg.MQTTBroker != "" {
		mp, err := notify.DialMQTT(notify.MQTTConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Topic:    cfg.MQTTTopic,
		}, logger)
		if err != nil {
			logger.Warn("mqtt disabled", zap.Error(err))
		} else {
			pub = mp
			defer mp.Close()
		}
	}

	// Services
	recorder := service.NewAuditRecorder(be.logs, pub, service.AuditConfig{
		QueueSize:    cfg.AuditQueueSize,
		Workers:      cfg.AuditWorkers,
		WriteTimeout: time.Duration(cfg.AuditWriteTimeoutMs) * time.Millisecond,
	}, logger.Named("audit"))

	devices := service.NewDeviceRegistry(be.devices)
	accessSvc := service.NewAccessService(be.cards, recorder, logger.Named("access"))
	heartbeatSvc := service.NewHeartbeatService(be.heartbeats, devices, logger.Named("heartbeat"))
	cards := service.NewCardRegistry(be.cards, logger.Named("cards"))
	stats := service.NewStatsService(be.logs, be.cards, be.holders, devices,
		time.Duration(cfg.GateOnlineMinutes)*time.Minute)
	auth := service.NewAdminAuth(be.admins, kv, service.AuthConfig{
		SessionTTL: time.Duration(cfg.SessionTTLMinutes) * time.Minute,
		OTPTTL:     time.Duration(cfg.OTPTTLMinutes) * time.Minute,
	}, logger.Named("auth"))

	// HTTP
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:            logger.Named("http"),
		Addr:              cfg.HTTPAddr,
		AccessService:     accessSvc,
		HeartbeatService:  heartbeatSvc,
		Devices:           devices,
		Auth:              auth,
		Cards:             cards,
		Stats:             stats,
		AccessLogs:        be.logs,
		Health:            be.pinger,
		RequireDeviceAuth: cfg.RequireDeviceAuth,
		TrustedProxies:    cfg.TrustedProxies,
		AccessDeadline:    time.Duration(cfg.AccessDeadlineMs) * time.Millisecond,
		LoginRate:         rate.Limit(cfg.LoginRatePerMinute / 60),
		LoginBurst:        cfg.LoginBurst,
	})

	// Housekeeping
	var pruneTasks []service.PruneTask
	if t, ok := service.HeartbeatRetention(be.heartbeats, cfg.HeartbeatRetentionDays); ok {
		pruneTasks = append(pruneTasks, t)
	}
	if e, ok := kv.(service.Expirer); ok {
		pruneTasks = append(pruneTasks, service.ExpiredKeys(e))
	}
	pruneTasks = append(pruneTasks, service.PruneTask{Name: "login-limiter", Run: srv.PruneLoginLimiter})
	pruner := service.NewPruner(service.PrunerConfig{IntervalHours: cfg.PruneIntervalHours}, logger, pruneTasks...)
	pruner.Start(ctx)

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	// gRPC health
	var health *grpcapi.HealthServer
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Fatal("grpc listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
		}
		health = grpcapi.NewHealthServer(be.pinger, 10*time.Second, logger)
		health.Watch(ctx)
		go func() {
			logger.Info("grpc health listening", zap.String("addr", cfg.GRPCAddr))
			if err := health.Serve(lis); err != nil {
				logger.Error("grpc server error", zap.Error(err))
				stop()
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if health != nil {
		health.Stop()
	}
	pruner.Stop()
	recorder.Close()
	if n := recorder.Dropped(); n > 0 {
		logger.Warn("audit entries dropped during run", zap.Int64("dropped", n))
	}
}

// backend is one storage driver's set of stores.
type backend struct {
	holders    store.HolderStore
	cards      store.CardStore
	logs       store.AccessLogStore
	devices    store.DeviceStore
	heartbeats store.HeartbeatStore
	admins     store.AdminStore
	pinger     store.Pinger
	close      func()
}
