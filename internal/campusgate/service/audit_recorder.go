package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
)

// EventPublisher fans decided entries out to other systems after they are
// persisted.  Publishing is best-effort.
type EventPublisher interface {
	PublishDecision(ctx context.Context, e store.AccessLogEntry) error
}

type AuditConfig struct {
	QueueSize    int           // default 1024
	Workers      int           // default 2
	WriteTimeout time.Duration // per append; default 2s
}

// AuditRecorder writes access log entries off the request path.  Record
// enqueues and returns at once; a fixed pool of workers appends each entry
// under its own deadline.  A full queue drops the entry with a warning
// rather than slowing the gate down.
type AuditRecorder struct {
	store   store.AccessLogStore
	pub     EventPublisher
	logger  *zap.Logger
	timeout time.Duration

	mu      sync.RWMutex
	closed  bool
	queue   chan store.AccessLogEntry
	wg      sync.WaitGroup
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewAuditRecorder starts the workers.  pub may be nil.
func NewAuditRecorder(st store.AccessLogStore, pub EventPublisher, cfg AuditConfig, logger *zap.Logger) *AuditRecorder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &AuditRecorder{
		store:   st,
		pub:     pub,
		logger:  logger,
		timeout: cfg.WriteTimeout,
		queue:   make(chan store.AccessLogEntry, cfg.QueueSize),
	}
	r.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go r.worker()
	}
	return r
}

func (r *AuditRecorder) Record(e store.AccessLogEntry) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.drop(e, "recorder closed")
		return false
	}
	select {
	case r.queue <- e:
		return true
	default:
		r.drop(e, "queue full")
		return false
	}
}

// Close stops accepting entries and waits for queued ones to be written.
func (r *AuditRecorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

// Dropped is the number of entries discarded without a write attempt.
func (r *AuditRecorder) Dropped() int64 { return r.dropped.Load() }

// Failed is the number of entries whose append returned an error or panicked.
func (r *AuditRecorder) Failed() int64 { return r.failed.Load() }

func (r *AuditRecorder) drop(e store.AccessLogEntry, why string) {
	r.dropped.Add(1)
	r.logger.Warn("audit entry dropped",
		zap.String("reason", why),
		zap.String("log_id", e.ID),
		zap.String("rfid", e.RFIDNumber),
		zap.String("decision", string(e.Decision)),
	)
}

func (r *AuditRecorder) worker() {
	defer r.wg.Done()
	for e := range r.queue {
		r.write(e)
	}
}

func (r *AuditRecorder) write(e store.AccessLogEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			r.failed.Add(1)
			r.logger.Error("audit write panic", zap.String("log_id", e.ID), zap.Any("panic", p))
		}
	}()

	if err := r.store.Append(ctx, e); err != nil {
		r.failed.Add(1)
		r.logger.Error("audit write failed",
			zap.String("log_id", e.ID),
			zap.String("rfid", e.RFIDNumber),
			zap.Error(err),
		)
		return
	}

	if r.pub == nil {
		return
	}
	if err := r.pub.PublishDecision(ctx, e); err != nil {
		r.logger.Warn("decision publish failed", zap.String("log_id", e.ID), zap.Error(err))
	}
}
