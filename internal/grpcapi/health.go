package grpcapi

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
)

// AccessServiceName is the health service name reported for the access
// decision path, alongside the overall "" entry.
const AccessServiceName = "campusgate.v1.Access"

// HealthServer exposes grpc.health.v1 backed by a periodic store ping.
type HealthServer struct {
	grpc     *grpc.Server
	health   *health.Server
	pinger   store.Pinger
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	serving bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewHealthServer starts NOT_SERVING until the first store check succeeds.  A
// nil pinger is always healthy.
func NewHealthServer(pinger store.Pinger, interval time.Duration, logger *zap.Logger) *HealthServer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(AccessServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	return &HealthServer{
		grpc:     gs,
		health:   hs,
		pinger:   pinger,
		interval: interval,
		logger:   logger.Named("grpc"),
	}
}

// Serve blocks until Stop.
func (h *HealthServer) Serve(lis net.Listener) error {
	return h.grpc.Serve(lis)
}

// Refresh pings the store once and updates the reported status.
func (h *HealthServer) Refresh(ctx context.Context) bool {
	ok := true
	if h.pinger != nil {
		pctx, cancel := context.WithTimeout(ctx, h.interval/2)
		err := h.pinger.Ping(pctx)
		cancel()
		if err != nil {
			ok = false
			h.logger.Warn("store ping failed", zap.Error(err))
		}
	}

	h.mu.Lock()
	changed := ok != h.serving
	h.serving = ok
	h.mu.Unlock()

	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(AccessServiceName, status)
	if changed {
		h.logger.Info("health status changed", zap.String("status", status.String()))
	}
	return ok
}

// Watch refreshes immediately and then every interval until Stop or ctx ends.
func (h *HealthServer) Watch(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.cancel = cancel
	h.done = make(chan struct{})
	done := h.done
	h.mu.Unlock()

	go func() {
		defer close(done)
		h.Refresh(ctx)

		t := time.NewTicker(h.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				h.Refresh(ctx)
			}
		}
	}()
}

// Stop ends the watcher, marks everything NOT_SERVING and drains RPCs.
func (h *HealthServer) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	h.health.Shutdown()
	h.grpc.GracefulStop()
}
