package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/CampusGate/server/internal/campusgate/store"
)

// PruneFunc removes whatever is stale as of now and returns how many items
// it deleted.
type PruneFunc func(ctx context.Context, now time.Time) (int64, error)

type PruneTask struct {
	Name string
	Run  PruneFunc
}

// Expirer is a store that expires entries lazily and needs a periodic sweep
// to release them.
type Expirer interface {
	PruneExpired(ctx context.Context, now time.Time) (int64, error)
}

// HeartbeatRetention keeps days of heartbeat history.  ok is false when
// days is 0, which keeps everything.
func HeartbeatRetention(s store.HeartbeatStore, days int) (task PruneTask, ok bool) {
	if days <= 0 {
		return PruneTask{}, false
	}
	retention := time.Duration(days) * 24 * time.Hour
	return PruneTask{
		Name: "heartbeats",
		Run: func(ctx context.Context, now time.Time) (int64, error) {
			return s.PruneOlderThan(ctx, now.Add(-retention))
		},
	}, true
}

// ExpiredKeys sweeps expired entries out of e.
func ExpiredKeys(e Expirer) PruneTask {
	return PruneTask{Name: "kv", Run: e.PruneExpired}
}

type PrunerConfig struct {
	// IntervalHours between runs.  Defaults to 6.
	IntervalHours int
}

// Pruner runs its tasks once on Start and then on every interval.  A
// pruner with no tasks is disabled.
type Pruner struct {
	tasks    []PruneTask
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewPruner(cfg PrunerConfig, logger *zap.Logger, tasks ...PruneTask) *Pruner {
	interval := time.Duration(cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pruner{
		tasks:    tasks,
		interval: interval,
		logger:   logger.Named("pruner"),
		now:      func() time.Time { return time.Now().UTC() },
		done:     make(chan struct{}),
	}
}

func (p *Pruner) Start(ctx context.Context) {
	if len(p.tasks) == 0 {
		p.logger.Info("pruner disabled")
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)

	names := make([]string, len(p.tasks))
	for i, t := range p.tasks {
		names[i] = t.Name
	}
	p.logger.Info("pruner started", zap.Strings("tasks", names), zap.Duration("interval", p.interval))
}

// Stop cancels the loop and waits for the run in progress.  Safe to call
// more than once.
func (p *Pruner) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *Pruner) loop(ctx context.Context) {
	defer close(p.done)

	p.runAll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runAll(ctx)
		}
	}
}

func (p *Pruner) runAll(ctx context.Context) {
	now := p.now()
	for _, t := range p.tasks {
		if ctx.Err() != nil {
			return
		}
		deleted, err := t.Run(ctx, now)
		if err != nil {
			p.logger.Error("prune failed", zap.String("task", t.Name), zap.Error(err))
			continue
		}
		if deleted > 0 {
			p.logger.Info("pruned", zap.String("task", t.Name), zap.Int64("deleted", deleted))
		}
	}
}
