package history

import (
	"context"
	"sync"
	"time"
)

// DefaultPruneInterval is how often a Pruner runs when none is given.
const DefaultPruneInterval = time.Hour

// pruneable is the part of SQLiteRepository a Pruner needs.
type pruneable interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Pruner deletes history older than a retention window on a fixed interval.
type Pruner struct {
	repo      pruneable
	retention time.Duration
	interval  time.Duration
	logger    Logger

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPruner creates a Pruner. A non-positive retention disables it; a
// non-positive interval selects DefaultPruneInterval.
func NewPruner(repo pruneable, retention, interval time.Duration) *Pruner {
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	return &Pruner{
		repo:      repo,
		retention: retention,
		interval:  interval,
		logger:    noopLogger{},
		done:      make(chan struct{}),
	}
}

// SetLogger sets the logger for the pruner.
func (p *Pruner) SetLogger(logger Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// Start prunes once, then launches the loop. The loop ends when ctx is
// cancelled or Stop is called.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		p.logger.Info("command history retention disabled")
		return
	}
	p.prune(ctx)
	p.wg.Add(1)
	go p.loop(ctx)
	p.logger.Info("command history pruning started",
		"retention", p.retention.String(),
		"interval", p.interval.String(),
	)
}

// Stop ends the loop and waits for an in-flight prune. Safe to call more
// than once.
func (p *Pruner) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
	})
}

func (p *Pruner) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	n, err := p.repo.Prune(ctx, p.retention)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("command history prune failed", "error", err)
		}
		return
	}
	if n > 0 {
		p.logger.Info("command history pruned", "entries", n)
	}
}
