package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// StartTombstoneCompaction prunes tombstones older than the retention
// horizon on a fixed interval. The merge engine itself never removes
// tombstones; pruning one that an unsynced replica still needs would
// resurrect the deletion, so the retention must comfortably exceed the
// longest expected gap between syncs.
func StartTombstoneCompaction(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-retention)
				res, err := db.ExecContext(ctx, `
                    DELETE FROM tasks
                     WHERE deleted = true
                       AND modified_at < $1
                `, cutoff)
				if err != nil {
					log.Error("failed to compact tombstones", zap.Error(err))
					continue
				}
				if rows, _ := res.RowsAffected(); rows > 0 {
					log.Info("compacted tombstones", zap.Int64("removed", rows))
				}
			}
		}
	}()
}
