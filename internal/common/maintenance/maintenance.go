package maintenance

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hsltracker-data/internal/common/db"
	"github.com/hsltracker-data/internal/common/logger"
)

// CleanupResult reports how many rows a retention pass removed per table.
type CleanupResult struct {
	VehiclePositions int64
	Vehicles         int64
	StationPositions int64
	Stations         int64
	Stats            int64
}

// Total returns the number of deleted rows across all tables.
func (r CleanupResult) Total() int64 {
	return r.VehiclePositions + r.Vehicles + r.StationPositions + r.Stations + r.Stats
}

// Maintenance handles retention cleanup of stale records.
type Maintenance struct {
	db     *db.DB
	logger logger.Logger
}

// New creates a new Maintenance instance
func New(database *db.DB, logger logger.Logger) *Maintenance {
	return &Maintenance{
		db:     database,
		logger: logger,
	}
}

// Cleanup deletes every vehicle, station and stat record whose timestamp
// predates the cutoff, in one transaction. Owned position rows go before
// their parent rows so no orphans remain; failure rolls back the entire
// pass.
func (m *Maintenance) Cleanup(ctx context.Context, cutoff time.Time) (CleanupResult, error) {
	m.logger.Info("Starting retention cleanup", "cutoff", cutoff)

	var result CleanupResult

	tx, err := m.db.BeginTx(ctx)
	if err != nil {
		return result, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	steps := []struct {
		counter *int64
		query   string
	}{
		{&result.VehiclePositions, `
			DELETE FROM vehicle_positions
			WHERE vehicle_pk IN (SELECT id FROM vehicles WHERE observed_at < $1)`},
		{&result.Vehicles, `
			DELETE FROM vehicles WHERE observed_at < $1`},
		{&result.StationPositions, `
			DELETE FROM station_positions
			WHERE station_pk IN (SELECT id FROM stations WHERE updated_at < $1)`},
		{&result.Stations, `
			DELETE FROM stations WHERE updated_at < $1`},
		{&result.Stats, `
			DELETE FROM transport_stats WHERE bucket_ts < $1`},
	}

	for _, step := range steps {
		tag, err := tx.ExecContext(ctx, step.query, cutoff)
		if err != nil {
			return CleanupResult{}, fmt.Errorf("executing cleanup step: %w", err)
		}
		*step.counter, _ = tag.RowsAffected()
	}

	if err := tx.Commit(); err != nil {
		return CleanupResult{}, fmt.Errorf("committing cleanup: %w", err)
	}

	m.logger.Info("Retention cleanup completed",
		"vehicles_deleted", result.Vehicles,
		"vehicle_positions_deleted", result.VehiclePositions,
		"stations_deleted", result.Stations,
		"station_positions_deleted", result.StationPositions,
		"stats_deleted", result.Stats,
		"total_deleted", result.Total())

	return result, nil
}

// VacuumTables runs VACUUM ANALYZE on the cleanup tables (must be called
// outside a transaction). Failure is an optimization miss, not a cleanup
// failure.
func (m *Maintenance) VacuumTables(ctx context.Context) error {
	tables := []string{
		"vehicle_positions",
		"vehicles",
		"station_positions",
		"stations",
		"transport_stats",
	}

	for _, table := range tables {
		if _, err := m.db.DB().ExecContext(ctx, "VACUUM ANALYZE "+table); err != nil {
			return fmt.Errorf("vacuuming %s: %w", table, err)
		}
	}

	m.logger.Debug("VACUUM ANALYZE completed", "tables", len(tables))
	return nil
}

// CountStale reports how many vehicle rows currently fall behind the
// cutoff, for observability without deleting anything.
func (m *Maintenance) CountStale(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := m.db.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vehicles WHERE observed_at < $1`, cutoff).Scan(&count)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("counting stale vehicles: %w", err)
	}
	return count, nil
}
