package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now().UTC()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.String("remote", r.RemoteAddr),
			zap.Duration("dur", time.Since(start)),
		)
	})
}

func recoverMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				logger.Error("handler panic", zap.String("path", r.URL.Path), zap.Any("panic", p))
				writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type adminKey struct{}

// adminFromContext returns the username set by requireAdmin.
func adminFromContext(ctx context.Context) string {
	s, _ := ctx.Value(adminKey{}).(string)
	return s
}

// limiterSweepAt is the table size at which Allow prunes refilled buckets
// before adding a new client.
const limiterSweepAt = 4096

// ipLimiter hands out one token bucket per client IP.
type ipLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
	sweepAt  int
	now      func() time.Time
}

func newIPLimiter(limit rate.Limit, burst int) *ipLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &ipLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
		sweepAt:  limiterSweepAt,
		now:      time.Now,
	}
}

func (l *ipLimiter) Allow(ip string) bool {
	now := l.now()

	l.mu.Lock()
	lim, ok := l.limiters[ip]
	if !ok {
		if len(l.limiters) >= l.sweepAt {
			l.pruneLocked(now)
			l.sweepAt = max(limiterSweepAt, 2*len(l.limiters))
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[ip] = lim
	}
	l.mu.Unlock()

	return lim.AllowN(now, 1)
}

// PruneIdle forgets clients whose bucket has refilled.  A full bucket
// behaves exactly like a new one, so nothing is lost.
func (l *ipLimiter) PruneIdle(_ context.Context, now time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pruneLocked(now), nil
}

func (l *ipLimiter) pruneLocked(now time.Time) int64 {
	var n int64
	for ip, lim := range l.limiters {
		if lim.TokensAt(now) >= float64(l.burst) {
			delete(l.limiters, ip)
			n++
		}
	}
	return n
}

// Len is the number of clients currently tracked.
func (l *ipLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// wrap throttles next per key(r).
func (l *ipLimiter) wrap(key func(*http.Request) string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(key(r)) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many login attempts, try again later")
			return
		}
		next(w, r)
	}
}
