package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hsltracker-data/internal/common/config"
	"github.com/hsltracker-data/internal/common/db"
	"github.com/hsltracker-data/internal/common/logger"
)

// CleanupScheduler runs the retention cycle on a fixed interval,
// independent of the collection cycle. The two never share a transaction.
type CleanupScheduler struct {
	maintenance *Maintenance
	logger      logger.Logger
	config      config.RetentionConfig

	mu        sync.RWMutex
	isRunning bool
	cancelFn  context.CancelFunc
}

// NewCleanupScheduler creates a new cleanup scheduler
func NewCleanupScheduler(database *db.DB, logger logger.Logger, cfg config.RetentionConfig) *CleanupScheduler {
	return &CleanupScheduler{
		maintenance: New(database, logger),
		logger:      logger,
		config:      cfg,
	}
}

// Start begins the cleanup scheduling
func (s *CleanupScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cleanup scheduler is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancelFn = cancel
	s.isRunning = true

	s.logger.Info("Starting cleanup scheduler",
		"cleanup_interval", s.config.CleanupInterval,
		"retention_days", s.config.RetentionDays)

	go s.cleanupLoop(ctx)

	return nil
}

// Stop stops the cleanup scheduler
func (s *CleanupScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	s.logger.Info("Stopping cleanup scheduler")

	if s.cancelFn != nil {
		s.cancelFn()
	}

	s.isRunning = false
}

// IsRunning returns whether the scheduler is active
func (s *CleanupScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func (s *CleanupScheduler) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	// Run an initial pass after a short delay so startup isn't contended
	initialDelay := time.NewTimer(1 * time.Minute)
	defer initialDelay.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Cleanup loop stopping")
			return

		case <-initialDelay.C:
			s.performCleanup(ctx)

		case <-ticker.C:
			s.performCleanup(ctx)
		}
	}
}

func (s *CleanupScheduler) performCleanup(ctx context.Context) {
	cutoff := Cutoff(time.Now().UTC(), s.config.RetentionDays)

	start := time.Now()
	result, err := s.maintenance.Cleanup(ctx, cutoff)
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("Retention cleanup failed", "error", err, "duration", duration)
		return
	}

	s.logger.Info("Scheduled retention cleanup completed",
		"deleted", result.Total(),
		"duration", duration)

	if result.Total() > 0 {
		if err := s.maintenance.VacuumTables(ctx); err != nil {
			s.logger.Warn("Failed to vacuum after cleanup", "error", err)
		}
	}
}

// TriggerCleanup manually runs one retention pass (for testing/manual use)
func (s *CleanupScheduler) TriggerCleanup(ctx context.Context) (CleanupResult, error) {
	cutoff := Cutoff(time.Now().UTC(), s.config.RetentionDays)
	s.logger.Info("Manual retention cleanup triggered", "cutoff", cutoff)
	return s.maintenance.Cleanup(ctx, cutoff)
}

// Cutoff computes the retention boundary: records older than this are
// eligible for deletion.
func Cutoff(now time.Time, retentionDays int) time.Time {
	return now.Add(-time.Duration(retentionDays) * 24 * time.Hour)
}
