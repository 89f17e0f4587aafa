package httpapi

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/service"
	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
)

type Dependencies struct {
	Logger *zap.Logger
	Addr   string

	AccessService    *service.AccessService
	HeartbeatService *service.HeartbeatService
	Devices          *service.DeviceRegistry

	// Admin surface; routes are registered only when Auth is set.
	Auth       *service.AdminAuth
	Cards      *service.CardRegistry
	Stats      *service.StatsService
	AccessLogs store.AccessLogStore

	// Health backs /healthz.  Nil reports healthy.
	Health store.Pinger

	// RequireDeviceAuth rejects reader calls without a valid X-Device-Key.
	RequireDeviceAuth bool

	// TrustedProxies are the IPs or CIDRs allowed to set X-Forwarded-For.
	// Invalid entries are logged and skipped.
	TrustedProxies []string

	// AccessDeadline bounds one access check.  Defaults to 100ms.
	AccessDeadline time.Duration

	// LoginRate and LoginBurst throttle login and OTP calls per client IP.
	// Defaults to 5 per 15 minutes.
	LoginRate  rate.Limit
	LoginBurst int
}

type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux

	access     *service.AccessService
	heartbeats *service.HeartbeatService
	devices    *service.DeviceRegistry
	auth       *service.AdminAuth
	cards      *service.CardRegistry
	stats      *service.StatsService
	logs       store.AccessLogStore
	health     store.Pinger

	requireDeviceAuth bool
	accessDeadline    time.Duration
	proxies           trustedProxies
	loginLimiter      *ipLimiter
}

func NewServer(d Dependencies) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.AccessDeadline <= 0 {
		d.AccessDeadline = 100 * time.Millisecond
	}
	if d.LoginRate <= 0 {
		d.LoginRate = rate.Every(15 * time.Minute / 5)
	}
	if d.LoginBurst <= 0 {
		d.LoginBurst = 5
	}

	var proxies trustedProxies
	for _, p := range d.TrustedProxies {
		parsed, err := parseTrustedProxies([]string{p})
		if err != nil {
			d.Logger.Warn("ignoring trusted proxy", zap.Error(err))
			continue
		}
		proxies = append(proxies, parsed...)
	}

	mux := http.NewServeMux()
	s := &Server{
		logger:            d.Logger,
		mux:               mux,
		access:            d.AccessService,
		heartbeats:        d.HeartbeatService,
		devices:           d.Devices,
		auth:              d.Auth,
		cards:             d.Cards,
		stats:             d.Stats,
		logs:              d.AccessLogs,
		health:            d.Health,
		requireDeviceAuth: d.RequireDeviceAuth,
		accessDeadline:    d.AccessDeadline,
		proxies:           proxies,
		loginLimiter:      newIPLimiter(d.LoginRate, d.LoginBurst),
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)

	// Reader-facing.
	mux.HandleFunc("POST /access/check", s.handleAccessCheck)
	mux.HandleFunc("POST /v1/access/check", s.handleAccessCheck)
	mux.HandleFunc("POST /v1/heartbeat", s.handleHeartbeat)

	if s.auth != nil {
		mux.HandleFunc("POST /v1/admin/login", s.loginLimiter.wrap(s.clientIP, s.handleLogin))
		mux.HandleFunc("POST /v1/admin/verify-otp", s.loginLimiter.wrap(s.clientIP, s.handleVerifyOTP))
		mux.HandleFunc("POST /v1/admin/logout", s.requireAdmin(s.handleLogout))

		mux.HandleFunc("GET /v1/access/logs", s.requireAdmin(s.handleListLogs))
		mux.HandleFunc("GET /v1/access/logs/{id}", s.requireAdmin(s.handleGetLog))
		mux.HandleFunc("GET /v1/access/statistics", s.requireAdmin(s.handleStatistics))
		mux.HandleFunc("GET /v1/access/recent", s.requireAdmin(s.handleRecent))
		mux.HandleFunc("GET /v1/dashboard", s.requireAdmin(s.handleDashboard))
		mux.HandleFunc("POST /v1/cards/{rfid}/activate", s.requireAdmin(s.handleActivateCard))
		mux.HandleFunc("POST /v1/cards/{rfid}/deactivate", s.requireAdmin(s.handleDeactivateCard))
	}

	handler := loggingMiddleware(d.Logger, recoverMiddleware(d.Logger, mux))

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// clientIP is the caller's address, honouring X-Forwarded-For only from
// trusted proxies.
func (s *Server) clientIP(r *http.Request) string { return s.proxies.clientIP(r) }

// PruneLoginLimiter drops per-IP login buckets that have fully refilled.
// It fits service.PruneFunc.
func (s *Server) PruneLoginLimiter(ctx context.Context, now time.Time) (int64, error) {
	return s.loginLimiter.PruneIdle(ctx, now)
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
