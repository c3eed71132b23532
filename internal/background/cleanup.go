package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Purger removes client records that have been idle since before and hold no lock active at now
type Purger interface {
	PurgeInactiveClients(ctx context.Context, before, now time.Time) (int64, error)
}

// CleanupManager periodically removes stale client records and their history
type CleanupManager struct {
	purger    Purger
	logger    *slog.Logger
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	purger Purger,
	logger *slog.Logger,
	retention time.Duration,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		purger:    purger,
		logger:    logger,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Enabled reports whether retention cleanup should run at all
func (cm *CleanupManager) Enabled() bool {
	return cm.retention > 0 && cm.interval > 0
}

// Start runs the periodic cleanup until Stop is called or ctx is cancelled
func (cm *CleanupManager) Start(ctx context.Context) {
	if !cm.Enabled() {
		cm.logger.Info("retention cleanup disabled")
		return
	}

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce purges clients idle for longer than the retention period
func (cm *CleanupManager) RunOnce(ctx context.Context) int64 {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := cm.now()
	removed, err := cm.purger.PurgeInactiveClients(cleanupCtx, now.Add(-cm.retention), now)
	if err != nil {
		cm.logger.Error("failed to purge inactive clients", slog.Any("error", err))
		return 0
	}

	if removed > 0 {
		cm.logger.Info("retention cleanup completed", slog.Int64("clients_removed", removed))
	}
	return removed
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
