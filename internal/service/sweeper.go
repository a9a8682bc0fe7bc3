package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/boxvault/internal/lock"
	"github.com/prn-tf/boxvault/internal/metrics"
	"github.com/prn-tf/boxvault/internal/storage"
)

// Sweeper removes orphaned temp uploads left behind by aborted transfers.
type Sweeper struct {
	storage storage.Backend
	locker  lock.Locker
	metrics *metrics.Metrics
	logger  zerolog.Logger
	config  SweeperConfig

	// Control
	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
}

// SweeperConfig contains sweeper configuration.
type SweeperConfig struct {
	// Interval is how often to sweep.
	Interval time.Duration

	// GracePeriod is the minimum age of a temp upload before removal.
	// It must exceed the upload timeout so live uploads are never touched.
	GracePeriod time.Duration

	// DryRun logs what would be deleted without deleting.
	DryRun bool
}

// DefaultSweeperConfig returns sensible defaults.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:    1 * time.Hour,
		GracePeriod: 25 * time.Hour,
		DryRun:      false,
	}
}

// NewSweeper creates a new temp-upload sweeper.
func NewSweeper(
	backend storage.Backend,
	locker lock.Locker,
	m *metrics.Metrics,
	logger zerolog.Logger,
	config SweeperConfig,
) *Sweeper {
	return &Sweeper{
		storage:  backend,
		locker:   locker,
		metrics:  m,
		logger:   logger.With().Str("service", "sweeper").Logger(),
		config:   config,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Run sweeps on every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	defer close(s.doneChan)

	s.logger.Info().
		Dur("interval", s.config.Interval).
		Dur("grace_period", s.config.GracePeriod).
		Bool("dry_run", s.config.DryRun).
		Msg("Starting temp upload sweeper")

	// Run immediately on start
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.stopChan:
			return nil
		case <-ctx.Done():
			s.logger.Info().Msg("Temp upload sweeper stopped")
			return nil
		}
	}
}

// Stop stops a running sweeper and waits for the loop to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	<-s.doneChan
}

// SweepRunResult contains the result of one sweep.
type SweepRunResult struct {
	Scanned  int
	Removed  int
	Bytes    int64
	Skipped  bool
	Duration time.Duration
}

// RunOnce executes a single sweep. Only one process sweeps at a time.
func (s *Sweeper) RunOnce(ctx context.Context) SweepRunResult {
	start := time.Now()
	result := SweepRunResult{}

	lockKey := lock.Keys.Sweeper()
	lockTTL := s.config.Interval / 2
	if lockTTL < 5*time.Minute {
		lockTTL = 5 * time.Minute
	}

	held, err := lock.AcquireAll(ctx, s.locker, lock.Options{TTL: lockTTL}, lockKey)
	if errors.Is(err, lock.ErrNotAcquired) {
		s.logger.Debug().Msg("Sweeper lock held by another process, skipping run")
		result.Skipped = true
		result.Duration = time.Since(start)
		return result
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to acquire sweeper lock")
		s.metrics.OperationError("sweep")
		result.Duration = time.Since(start)
		return result
	}
	defer held.Release(context.WithoutCancel(ctx))

	sweep, err := s.storage.SweepTemp(ctx, s.config.GracePeriod, s.config.DryRun)
	if sweep != nil {
		result.Scanned = sweep.Scanned
		result.Removed = sweep.Removed
		result.Bytes = sweep.Bytes
	}
	result.Duration = time.Since(start)
	if err != nil {
		s.logger.Error().Err(err).Msg("Temp upload sweep failed")
		s.metrics.OperationError("sweep")
		return result
	}

	if !s.config.DryRun {
		s.metrics.TempFilesSwept(result.Removed)
	}

	s.logger.Info().
		Int("scanned", result.Scanned).
		Int("removed", result.Removed).
		Int64("bytes_freed", result.Bytes).
		Dur("duration", result.Duration).
		Msg("Temp upload sweep completed")

	return result
}
