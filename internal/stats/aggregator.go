// Package stats maintains the rolling counters fed by each collection
// cycle. Counters are keyed by an explicit (category, bucket, mode)
// composite; never by matching on serialized detail content.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/hsltracker-data/internal/common/db"
	"github.com/hsltracker-data/internal/common/logger"
	"github.com/hsltracker-data/pkg/transport"
)

// Aggregator increments counters after a committed vehicle upsert. A failed
// aggregate update is logged and never undoes stored vehicle records.
type Aggregator struct {
	db     *db.DB
	logger logger.Logger
}

func NewAggregator(database *db.DB, log logger.Logger) *Aggregator {
	return &Aggregator{
		db:     database,
		logger: log,
	}
}

// RecordSightings adds a batch of stored sightings to the current hourly
// bucket and the current day's per-mode type counters, in its own
// transaction. Accumulation is additive across calls within the same
// bucket, not a replace.
func (a *Aggregator) RecordSightings(ctx context.Context, vehicles []transport.Vehicle) error {
	if len(vehicles) == 0 {
		return nil
	}

	modeCounts := countModes(vehicles)
	total := int64(len(vehicles))

	tx, err := a.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	hour := hourBucket(now)

	var (
		rowID   int64
		details []byte
	)
	err = tx.QueryRowContext(ctx, `
		INSERT INTO transport_stats (category, bucket_ts, mode, count, details)
		VALUES ($1, $2, '', $3, '{"modes":{}}')
		ON CONFLICT (category, bucket_ts, mode)
		DO UPDATE SET count = transport_stats.count + EXCLUDED.count
		RETURNING id, details
	`, CategoryHourly, hour, total).Scan(&rowID, &details)
	if err != nil {
		return fmt.Errorf("incrementing hourly bucket: %w", err)
	}

	merged, err := mergeModeDetails(details, modeCounts)
	if err != nil {
		return fmt.Errorf("merging mode sub-counts: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE transport_stats SET details = $2 WHERE id = $1`, rowID, merged); err != nil {
		return fmt.Errorf("storing mode sub-counts: %w", err)
	}

	day := dayBucket(now)
	for mode, count := range modeCounts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO transport_stats (category, bucket_ts, mode, count)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (category, bucket_ts, mode)
			DO UPDATE SET count = transport_stats.count + EXCLUDED.count
		`, CategoryType, day, mode, count); err != nil {
			return fmt.Errorf("incrementing type counter for %s: %w", mode, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	a.logger.Debug("Recorded sightings",
		"hour_bucket", hour,
		"total", total,
		"modes", len(modeCounts))

	return nil
}
