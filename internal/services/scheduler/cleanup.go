package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// RunCleanup purges terminal cycles (archive states completed/failed) whose
// period ended before the retention window. The repository's delete
// statement filters on terminal status, so scheduled, in-progress, and
// awaiting-retry cycles are never removed regardless of age.
func (s *Scheduler) RunCleanup(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.cfg.Retention)

	purged, err := s.cycles.PurgeTerminalOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge terminal cycles: %w", err)
	}

	if purged > 0 {
		cyclesPurgedTotal.Add(float64(purged))
		s.logger.Info("purged archived billing cycles",
			zap.Int64("purged", purged),
			zap.Time("cutoff", cutoff),
		)
	}
	return purged, nil
}
