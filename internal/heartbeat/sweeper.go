package heartbeat

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SweeperConfig contains stale sweeper configuration.
type SweeperConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
}

// DefaultSweeperConfig returns default sweeper configuration.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:  10 * time.Minute,
		BatchSize: 1000,
	}
}

// Sweeper periodically deactivates subscriptions that have not sent a heartbeat
// within StaleAfter. It only runs when StaleAfter is set. Deactivated rows are kept; a heartbeat with reactivate set revives them.
type Sweeper struct {
	config   SweeperConfig
	registry Registry
	now      func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSweeper creates a new stale subscription sweeper.
func NewSweeper(config SweeperConfig, registry Registry) *Sweeper {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultSweeperConfig().BatchSize
	}
	return &Sweeper{
		config:   config,
		registry: registry,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Enabled reports whether the sweeper has anything to do.
func (s *Sweeper) Enabled() bool {
	return s.config.StaleAfter > 0 && s.config.Interval > 0
}

// Start launches the sweeper goroutine. It is a no-op when the sweeper is disabled.
func (s *Sweeper) Start(ctx context.Context) {
	if !s.Enabled() {
		slog.Info("stale subscription sweeper disabled")
		return
	}

	slog.Info("starting stale subscription sweeper",
		"interval", s.config.Interval,
		"stale_after", s.config.StaleAfter,
		"batch_size", s.config.BatchSize,
	)

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the sweeper and waits for the current sweep to finish.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	slog.Info("stale subscription sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep deactivates stale subscriptions in batches and returns how many were deactivated.
func (s *Sweeper) Sweep(ctx context.Context) int64 {
	if s.config.StaleAfter <= 0 {
		return 0
	}
	before := s.now().Add(-s.config.StaleAfter)

	var total int64
	for {
		n, err := s.registry.DeactivateStale(ctx, before, s.config.BatchSize)
		if err != nil {
			slog.Error("failed to deactivate stale subscriptions", "error", err)
			break
		}
		total += n
		if n < int64(s.config.BatchSize) {
			break
		}

		select {
		case <-ctx.Done():
			return total
		case <-s.stopCh:
			return total
		default:
		}
	}

	if total > 0 {
		recordStaleDeactivated(total)
		slog.Info("stale subscriptions deactivated", "count", total, "last_seen_before", before)
	}
	return total
}
