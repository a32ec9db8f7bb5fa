package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// DraftKeyPattern matches draft keys in the kv table.
const DraftKeyPattern = "ato:draft:%"

// StartDraftCleaner removes superseded drafts every interval until ctx is done.
func StartDraftCleaner(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
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
				rows, err := SweepSupersededDrafts(ctx, db)
				if err != nil {
					log.Error("failed to clean superseded drafts", zap.Error(err))
					continue
				}
				if rows > 0 {
					log.Info("cleaned superseded drafts", zap.Int64("removed", rows))
				}
			}
		}
	}()
}

// SweepSupersededDrafts deletes drafts saved before the server version they
// were based on. Such a draft can never be restored; opening the item would
// discard it anyway. Drafts are never removed for age, and entries that are
// not valid JSON are left for the draft store to drop on read.
func SweepSupersededDrafts(ctx context.Context, db *sql.DB) (int64, error) {
	res, err := db.ExecContext(ctx, `
        DELETE FROM kv
         WHERE key LIKE ?
           AND CASE WHEN json_valid(value)
                    THEN julianday(json_extract(value, '$.savedAt')) <
                         julianday(json_extract(value, '$.serverUpdatedAt'))
                    ELSE 0
               END
    `, DraftKeyPattern)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
