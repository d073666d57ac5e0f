package cleanup

import (
	"context"
	"sync"
	"time"
)

// Sweeper runs CleanupExpiredCommands on a fixed interval.
type Sweeper struct {
	coordinator *Coordinator
	interval    time.Duration
	logger      Logger

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSweeper creates a Sweeper. It does nothing until Start is called.
func NewSweeper(c *Coordinator, interval time.Duration) *Sweeper {
	return &Sweeper{
		coordinator: c,
		interval:    interval,
		logger:      c.logger,
		done:        make(chan struct{}),
	}
}

// SetLogger sets the logger for the sweeper.
func (s *Sweeper) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Start launches the sweep loop. A non-positive interval disables it.
// The loop ends when ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("expired command sweep disabled")
		return
	}
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("expired command sweep started", "interval", s.interval.String())
}

// Stop ends the sweep loop and waits for an in-flight sweep to finish.
// Safe to call more than once.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if _, err := s.coordinator.CleanupExpiredCommands(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("expired command sweep incomplete", "error", err)
			}
		}
	}
}
