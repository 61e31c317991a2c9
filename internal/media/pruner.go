package media

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner periodically deletes stale files from a Cache.
type Pruner struct {
	cache    *Cache
	maxAge   time.Duration
	schedule string
	logger   *slog.Logger
	cron     *cron.Cron
	now      func() time.Time
}

// NewPruner builds a pruner that runs on a standard cron spec or a
// descriptor such as "@hourly". An empty schedule disables pruning.
func NewPruner(log *slog.Logger, cache *Cache, schedule string, maxAge time.Duration) *Pruner {
	if log == nil {
		log = slog.Default()
	}
	return &Pruner{
		cache:    cache,
		maxAge:   maxAge,
		schedule: strings.TrimSpace(schedule),
		logger:   log.With(slog.String("component", "media_pruner")),
		now:      time.Now,
	}
}

// Start registers the prune job and starts the scheduler.
func (p *Pruner) Start() error {
	if p.schedule == "" || p.maxAge <= 0 {
		p.logger.Info("media pruning disabled")
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(p.schedule, p.RunOnce); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", p.schedule, err)
	}
	c.Start()
	p.cron = c
	p.logger.Info("media pruning scheduled",
		slog.String("schedule", p.schedule),
		slog.Duration("max_age", p.maxAge),
		slog.String("dir", p.cache.Dir()),
	)
	return nil
}

// Stop halts the scheduler and waits for a running job to finish or ctx to end.
func (p *Pruner) Stop(ctx context.Context) error {
	if p.cron == nil {
		return nil
	}
	done := p.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce prunes the cache immediately.
func (p *Pruner) RunOnce() {
	removed, err := p.cache.Prune(p.maxAge, p.now())
	if err != nil {
		p.logger.Warn("media prune failed", slog.Int("removed", removed), slog.Any("error", err))
		return
	}
	if removed > 0 {
		p.logger.Info("media pruned", slog.Int("removed", removed))
	}
}
