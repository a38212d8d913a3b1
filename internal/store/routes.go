package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hsltracker-data/pkg/transport"
)

// ReplaceRoutes refreshes the route catalog wholesale inside one
// transaction: route rows are upserted on the external route ID, their
// patterns and pattern stops dropped and rebuilt from the fetched state.
func (s *Store) ReplaceRoutes(ctx context.Context, routes []transport.Route) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", ErrStoreFailed, err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, route := range routes {
		if err := s.replaceRoute(ctx, tx, route, now); err != nil {
			return fmt.Errorf("%w: route %s: %v", ErrStoreFailed, route.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction: %v", ErrStoreFailed, err)
	}

	s.logger.Debug("Replaced route catalog", "routes", len(routes))
	return nil
}

func (s *Store) replaceRoute(ctx context.Context, tx *sql.Tx, route transport.Route, now time.Time) error {
	var pk int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO routes (route_id, short_name, long_name, mode, operator_id,
			color, text_color, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (route_id) DO UPDATE
		SET short_name = EXCLUDED.short_name,
			long_name = EXCLUDED.long_name,
			mode = EXCLUDED.mode,
			operator_id = EXCLUDED.operator_id,
			color = EXCLUDED.color,
			text_color = EXCLUDED.text_color,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`, route.ID, route.ShortName, nullString(route.LongName), string(route.Mode),
		nullString(route.OperatorID), nullString(route.Color),
		nullString(route.TextColor), now).Scan(&pk)
	if err != nil {
		return fmt.Errorf("upserting route: %w", err)
	}

	// Pattern stops reference patterns, so they go first.
	_, err = tx.ExecContext(ctx, `
		DELETE FROM pattern_stops
		WHERE pattern_pk IN (SELECT id FROM route_patterns WHERE route_pk = $1)
	`, pk)
	if err != nil {
		return fmt.Errorf("clearing pattern stops: %w", err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM route_patterns WHERE route_pk = $1`, pk)
	if err != nil {
		return fmt.Errorf("clearing patterns: %w", err)
	}

	for _, pattern := range route.Patterns {
		var patternPK int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO route_patterns (pattern_id, route_pk, name)
			VALUES ($1, $2, $3)
			RETURNING id
		`, pattern.ID, pk, nullString(pattern.Name)).Scan(&patternPK)
		if err != nil {
			return fmt.Errorf("inserting pattern: %w", err)
		}

		for sequence, stopRef := range pattern.Stops {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO pattern_stops (pattern_pk, stop_ref, stop_sequence)
				VALUES ($1, $2, $3)
			`, patternPK, stopRef, sequence)
			if err != nil {
				return fmt.Errorf("inserting pattern stop: %w", err)
			}
		}
	}

	return nil
}

// ListRoutes returns the whole route catalog with ordered patterns.
func (s *Store) ListRoutes(ctx context.Context) ([]transport.Route, error) {
	return s.queryRoutes(ctx, "", nil)
}

// GetRoute looks up one route by its external ID.
func (s *Store) GetRoute(ctx context.Context, id string) (*transport.Route, error) {
	routes, err := s.queryRoutes(ctx, "WHERE r.route_id = $1", []interface{}{id})
	if err != nil {
		return nil, err
	}
	if len(routes) == 0 {
		return nil, ErrNotFound
	}
	return &routes[0], nil
}

func (s *Store) queryRoutes(ctx context.Context, where string, args []interface{}) ([]transport.Route, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT r.id, r.route_id, r.short_name, r.long_name, r.mode,
			r.operator_id, r.color, r.text_color
		FROM routes r
		`+where+`
		ORDER BY r.route_id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying routes: %w", err)
	}
	defer rows.Close()

	var (
		routes []transport.Route
		byPK   = make(map[int64]int)
	)
	for rows.Next() {
		var (
			pk                              int64
			route                           transport.Route
			longName, operator, color, text sql.NullString
			mode                            string
		)
		if err := rows.Scan(&pk, &route.ID, &route.ShortName, &longName, &mode,
			&operator, &color, &text); err != nil {
			return nil, fmt.Errorf("scanning route: %w", err)
		}

		route.LongName = longName.String
		route.Mode = transport.VehicleMode(mode)
		route.OperatorID = operator.String
		route.Color = color.String
		route.TextColor = text.String

		byPK[pk] = len(routes)
		routes = append(routes, route)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating routes: %w", err)
	}

	if len(routes) == 0 {
		return routes, nil
	}

	if err := s.attachPatterns(ctx, routes, byPK); err != nil {
		return nil, err
	}

	return routes, nil
}

func (s *Store) attachPatterns(ctx context.Context, routes []transport.Route, byPK map[int64]int) error {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT p.id, p.route_pk, p.pattern_id, p.name, ps.stop_ref
		FROM route_patterns p
		LEFT JOIN pattern_stops ps ON ps.pattern_pk = p.id
		ORDER BY p.route_pk, p.id, ps.stop_sequence
	`)
	if err != nil {
		return fmt.Errorf("querying patterns: %w", err)
	}
	defer rows.Close()

	var (
		currentPattern int64 = -1
		pattern        transport.RoutePattern
		patternRoute   int
	)
	flush := func() {
		if currentPattern >= 0 {
			routes[patternRoute].Patterns = append(routes[patternRoute].Patterns, pattern)
		}
	}

	for rows.Next() {
		var (
			patternPK, routePK int64
			patternID          string
			name               sql.NullString
			stopRef            sql.NullString
		)
		if err := rows.Scan(&patternPK, &routePK, &patternID, &name, &stopRef); err != nil {
			return fmt.Errorf("scanning pattern: %w", err)
		}

		index, ok := byPK[routePK]
		if !ok {
			continue
		}

		if patternPK != currentPattern {
			flush()
			currentPattern = patternPK
			patternRoute = index
			pattern = transport.RoutePattern{ID: patternID, Name: name.String}
		}
		if stopRef.Valid {
			pattern.Stops = append(pattern.Stops, stopRef.String)
		}
	}
	flush()

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating patterns: %w", err)
	}

	return nil
}
