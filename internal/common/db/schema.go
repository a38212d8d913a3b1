package db

import (
	"context"
	"fmt"
)

// schemaStatements create the four logical tables plus the owned position
// and pattern sub-tables. Positions live in their own tables but are keyed
// one-to-one on the parent row; they are never addressed outside it.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS vehicles (
		id SERIAL PRIMARY KEY,
		vehicle_id VARCHAR(50) UNIQUE NOT NULL,
		route_id VARCHAR(50),
		trip_id VARCHAR(50),
		mode VARCHAR(20) NOT NULL,
		speed DOUBLE PRECISION,
		heading INTEGER,
		vehicle_number VARCHAR(50),
		operator_id VARCHAR(50),
		observed_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS vehicle_positions (
		vehicle_pk INTEGER PRIMARY KEY REFERENCES vehicles(id),
		lat DOUBLE PRECISION NOT NULL,
		lng DOUBLE PRECISION NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stations (
		id SERIAL PRIMARY KEY,
		station_id VARCHAR(50) UNIQUE,
		name VARCHAR(100) NOT NULL,
		code VARCHAR(50),
		platform_code VARCHAR(50),
		description VARCHAR(255),
		zone_id VARCHAR(50),
		routes TEXT[],
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS stations_name_platform_idx
		ON stations (name, COALESCE(platform_code, ''))
		WHERE station_id IS NULL`,
	`CREATE TABLE IF NOT EXISTS station_positions (
		station_pk INTEGER PRIMARY KEY REFERENCES stations(id),
		lat DOUBLE PRECISION NOT NULL,
		lng DOUBLE PRECISION NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS routes (
		id SERIAL PRIMARY KEY,
		route_id VARCHAR(50) UNIQUE NOT NULL,
		short_name VARCHAR(50) NOT NULL,
		long_name VARCHAR(100),
		mode VARCHAR(20) NOT NULL,
		operator_id VARCHAR(50),
		color VARCHAR(10),
		text_color VARCHAR(10),
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS route_patterns (
		id SERIAL PRIMARY KEY,
		pattern_id VARCHAR(80) NOT NULL,
		route_pk INTEGER NOT NULL REFERENCES routes(id),
		name VARCHAR(150),
		UNIQUE (route_pk, pattern_id)
	)`,
	`CREATE TABLE IF NOT EXISTS pattern_stops (
		id SERIAL PRIMARY KEY,
		pattern_pk INTEGER NOT NULL REFERENCES route_patterns(id),
		stop_ref VARCHAR(50) NOT NULL,
		stop_sequence INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transport_stats (
		id SERIAL PRIMARY KEY,
		category VARCHAR(20) NOT NULL,
		bucket_ts TIMESTAMPTZ NOT NULL,
		mode VARCHAR(20) NOT NULL DEFAULT '',
		count BIGINT NOT NULL DEFAULT 0,
		details JSONB,
		UNIQUE (category, bucket_ts, mode)
	)`,
	`CREATE INDEX IF NOT EXISTS vehicles_observed_at_idx ON vehicles (observed_at)`,
	`CREATE INDEX IF NOT EXISTS transport_stats_bucket_idx ON transport_stats (category, bucket_ts)`,
}

// EnsureSchema creates missing tables and indexes on startup.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema statement: %w", err)
		}
	}
	db.logger.Info("Database schema ensured")
	return nil
}
