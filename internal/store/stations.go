package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hsltracker-data/pkg/transport"
)

// UpsertStations stores a batch of station records in one transaction.
// Identity is the external station ID; feeds that omit it fall back to the
// (name, platform code) composite so re-synced stations do not duplicate.
func (s *Store) UpsertStations(ctx context.Context, stations []transport.Station) (UpsertResult, error) {
	var result UpsertResult

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return result, fmt.Errorf("%w: beginning transaction: %v", ErrStoreFailed, err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, station := range stations {
		inserted, err := s.upsertStation(ctx, tx, station, now)
		if err != nil {
			return UpsertResult{}, fmt.Errorf("%w: station %q: %v", ErrStoreFailed, station.Name, err)
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return UpsertResult{}, fmt.Errorf("%w: committing transaction: %v", ErrStoreFailed, err)
	}

	s.logger.Debug("Upserted station batch",
		"total", len(stations),
		"inserted", result.Inserted,
		"updated", result.Updated)

	return result, nil
}

func (s *Store) upsertStation(ctx context.Context, tx *sql.Tx, station transport.Station, now time.Time) (bool, error) {
	var (
		pk  int64
		err error
	)

	if station.ID != "" {
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM stations WHERE station_id = $1`, station.ID).Scan(&pk)
	} else {
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM stations
			WHERE station_id IS NULL AND name = $1 AND COALESCE(platform_code, '') = $2
		`, station.Name, station.PlatformCode).Scan(&pk)
	}

	switch {
	case err == sql.ErrNoRows:
		err = tx.QueryRowContext(ctx, `
			INSERT INTO stations (
				station_id, name, code, platform_code, description, zone_id,
				routes, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`, nullString(station.ID), station.Name, nullString(station.Code),
			nullString(station.PlatformCode), nullString(station.Description),
			nullString(station.ZoneID), pq.Array(station.Routes), now).Scan(&pk)
		if err != nil {
			return false, fmt.Errorf("inserting station: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO station_positions (station_pk, lat, lng) VALUES ($1, $2, $3)
		`, pk, station.Position.Lat, station.Position.Lng)
		if err != nil {
			return false, fmt.Errorf("inserting position: %w", err)
		}

		return true, nil

	case err != nil:
		return false, fmt.Errorf("looking up station: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE stations
		SET name = $2, code = $3, platform_code = $4, description = $5,
			zone_id = $6, routes = $7, updated_at = $8
		WHERE id = $1
	`, pk, station.Name, nullString(station.Code), nullString(station.PlatformCode),
		nullString(station.Description), nullString(station.ZoneID),
		pq.Array(station.Routes), now)
	if err != nil {
		return false, fmt.Errorf("updating station: %w", err)
	}

	tag, err := tx.ExecContext(ctx, `
		UPDATE station_positions SET lat = $2, lng = $3 WHERE station_pk = $1
	`, pk, station.Position.Lat, station.Position.Lng)
	if err != nil {
		return false, fmt.Errorf("updating position: %w", err)
	}

	if affected, _ := tag.RowsAffected(); affected == 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO station_positions (station_pk, lat, lng) VALUES ($1, $2, $3)
		`, pk, station.Position.Lat, station.Position.Lng)
		if err != nil {
			return false, fmt.Errorf("recreating position: %w", err)
		}
	}

	return false, nil
}

const stationColumns = `
	s.station_id, s.name, s.code, s.platform_code, s.description, s.zone_id,
	s.routes, p.lat, p.lng`

// ListStations returns a page of stations ordered by name.
func (s *Store) ListStations(ctx context.Context, limit, offset int) ([]transport.Station, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT `+stationColumns+`
		FROM stations s
		LEFT JOIN station_positions p ON p.station_pk = s.id
		ORDER BY s.name, s.id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying stations: %w", err)
	}
	defer rows.Close()

	return scanStations(rows)
}

// GetStation looks up one station by its external ID.
func (s *Store) GetStation(ctx context.Context, id string) (*transport.Station, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT `+stationColumns+`
		FROM stations s
		LEFT JOIN station_positions p ON p.station_pk = s.id
		WHERE s.station_id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("querying station: %w", err)
	}
	defer rows.Close()

	stations, err := scanStations(rows)
	if err != nil {
		return nil, err
	}
	if len(stations) == 0 {
		return nil, ErrNotFound
	}
	return &stations[0], nil
}

// SearchStations matches station names case-insensitively on a substring.
func (s *Store) SearchStations(ctx context.Context, text string) ([]transport.Station, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT `+stationColumns+`
		FROM stations s
		LEFT JOIN station_positions p ON p.station_pk = s.id
		WHERE s.name ILIKE $1
		ORDER BY s.name, s.id
	`, "%"+text+"%")
	if err != nil {
		return nil, fmt.Errorf("searching stations: %w", err)
	}
	defer rows.Close()

	return scanStations(rows)
}

func scanStations(rows *sql.Rows) ([]transport.Station, error) {
	var stations []transport.Station
	for rows.Next() {
		var (
			station                                transport.Station
			stationID, code, platform, desc, zone  sql.NullString
			routes                                 pq.StringArray
			lat, lng                               sql.NullFloat64
		)
		if err := rows.Scan(&stationID, &station.Name, &code, &platform, &desc,
			&zone, &routes, &lat, &lng); err != nil {
			return nil, fmt.Errorf("scanning station: %w", err)
		}

		station.ID = stationID.String
		station.Code = code.String
		station.PlatformCode = platform.String
		station.Description = desc.String
		station.ZoneID = zone.String
		station.Routes = routes
		if lat.Valid && lng.Valid {
			station.Position = transport.Position{Lat: lat.Float64, Lng: lng.Float64}
		}

		stations = append(stations, station)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stations: %w", err)
	}

	return stations, nil
}
