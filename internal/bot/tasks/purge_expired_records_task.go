package tasks

import (
	"context"
	"fmt"
	"time"
)

// newPurgeExpiredRecordsTask creates the scheduled task that deletes context
// records whose TTL has elapsed. Expired records are already invisible to
// reads; this reclaims their storage.
func newPurgeExpiredRecordsTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "purge_expired_records")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting scheduled purge of expired context records...")
		startTime := time.Now()

		purged, err := deps.Store.PurgeExpired(ctx)
		duration := time.Since(startTime)

		if err != nil {
			log.ErrorContext(ctx, "Purge of expired records failed", "error", err, "duration", duration)
			return fmt.Errorf("purge of expired records failed: %w", err)
		}

		log.InfoContext(ctx, "Scheduled purge of expired records completed", "purged", purged, "duration", duration)
		return nil
	}
}
