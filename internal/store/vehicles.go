package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hsltracker-data/pkg/transport"
)

// UpsertVehicles stores a batch of vehicle sightings keyed on the external
// vehicle ID, inside one transaction. Existing records are overwritten in
// place (latest-wins); new records get a freshly created position row. Any
// error rolls back the entire batch.
func (s *Store) UpsertVehicles(ctx context.Context, vehicles []transport.Vehicle) (UpsertResult, error) {
	var result UpsertResult

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return result, fmt.Errorf("%w: beginning transaction: %v", ErrStoreFailed, err)
	}
	defer tx.Rollback()

	for _, vehicle := range vehicles {
		inserted, err := s.upsertVehicle(ctx, tx, vehicle)
		if err != nil {
			return UpsertResult{}, fmt.Errorf("%w: vehicle %s: %v", ErrStoreFailed, vehicle.ID, err)
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

	s.logger.Debug("Upserted vehicle batch",
		"total", len(vehicles),
		"inserted", result.Inserted,
		"updated", result.Updated)

	return result, nil
}

func (s *Store) upsertVehicle(ctx context.Context, tx *sql.Tx, vehicle transport.Vehicle) (bool, error) {
	var pk int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM vehicles WHERE vehicle_id = $1`, vehicle.ID).Scan(&pk)

	switch {
	case err == sql.ErrNoRows:
		err = tx.QueryRowContext(ctx, `
			INSERT INTO vehicles (
				vehicle_id, route_id, trip_id, mode, speed, heading,
				vehicle_number, operator_id, observed_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id
		`, vehicle.ID, nullString(vehicle.RouteID), nullString(vehicle.TripID),
			string(vehicle.Mode), vehicle.Speed, vehicle.Heading,
			nullString(vehicle.VehicleNumber), nullString(vehicle.OperatorID),
			vehicle.ObservedAt).Scan(&pk)
		if err != nil {
			return false, fmt.Errorf("inserting vehicle: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO vehicle_positions (vehicle_pk, lat, lng) VALUES ($1, $2, $3)
		`, pk, vehicle.Position.Lat, vehicle.Position.Lng)
		if err != nil {
			return false, fmt.Errorf("inserting position: %w", err)
		}

		return true, nil

	case err != nil:
		return false, fmt.Errorf("looking up vehicle: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE vehicles
		SET route_id = $2, trip_id = $3, mode = $4, speed = $5,
			heading = $6, observed_at = $7
		WHERE id = $1
	`, pk, nullString(vehicle.RouteID), nullString(vehicle.TripID),
		string(vehicle.Mode), vehicle.Speed, vehicle.Heading, vehicle.ObservedAt)
	if err != nil {
		return false, fmt.Errorf("updating vehicle: %w", err)
	}

	// A sighting without coordinates retains the previously stored position
	// rather than erasing it.
	if vehicle.Position == (transport.Position{}) {
		return false, nil
	}

	tag, err := tx.ExecContext(ctx, `
		UPDATE vehicle_positions SET lat = $2, lng = $3 WHERE vehicle_pk = $1
	`, pk, vehicle.Position.Lat, vehicle.Position.Lng)
	if err != nil {
		return false, fmt.Errorf("updating position: %w", err)
	}

	if affected, _ := tag.RowsAffected(); affected == 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO vehicle_positions (vehicle_pk, lat, lng) VALUES ($1, $2, $3)
		`, pk, vehicle.Position.Lat, vehicle.Position.Lng)
		if err != nil {
			return false, fmt.Errorf("recreating position: %w", err)
		}
	}

	return false, nil
}

// ListVehicles returns the latest stored sighting for every vehicle.
func (s *Store) ListVehicles(ctx context.Context) ([]transport.Vehicle, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT v.vehicle_id, v.route_id, v.trip_id, v.mode, v.speed, v.heading,
			v.vehicle_number, v.operator_id, v.observed_at, p.lat, p.lng
		FROM vehicles v
		LEFT JOIN vehicle_positions p ON p.vehicle_pk = v.id
		ORDER BY v.vehicle_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []transport.Vehicle
	for rows.Next() {
		var (
			vehicle                               transport.Vehicle
			routeID, tripID, vehicleNum, operator sql.NullString
			mode                                  string
			speed                                 sql.NullFloat64
			heading                               sql.NullInt32
			lat, lng                              sql.NullFloat64
		)
		if err := rows.Scan(&vehicle.ID, &routeID, &tripID, &mode, &speed, &heading,
			&vehicleNum, &operator, &vehicle.ObservedAt, &lat, &lng); err != nil {
			return nil, fmt.Errorf("scanning vehicle: %w", err)
		}

		vehicle.RouteID = routeID.String
		vehicle.TripID = tripID.String
		vehicle.Mode = transport.VehicleMode(mode)
		vehicle.VehicleNumber = vehicleNum.String
		vehicle.OperatorID = operator.String
		if speed.Valid {
			value := speed.Float64
			vehicle.Speed = &value
		}
		if heading.Valid {
			value := int(heading.Int32)
			vehicle.Heading = &value
		}
		if lat.Valid && lng.Valid {
			vehicle.Position = transport.Position{Lat: lat.Float64, Lng: lng.Float64}
		}

		vehicles = append(vehicles, vehicle)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vehicles: %w", err)
	}

	return vehicles, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
