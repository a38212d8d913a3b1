package digitransit

import (
	"context"
	"fmt"
	"time"

	"github.com/hsltracker-data/internal/common/logger"
	"github.com/hsltracker-data/pkg/transport"
)

// Service fetches raw batches from the Digitransit API and normalizes them
// into canonical records. Per-record schema violations are logged and
// dropped here; they never abort the batch.
type Service struct {
	client *Client
	logger logger.Logger
}

func NewService(client *Client, log logger.Logger) *Service {
	return &Service{
		client: client,
		logger: log,
	}
}

// Vehicles returns the current live vehicle fleet.
func (s *Service) Vehicles(ctx context.Context) ([]transport.Vehicle, error) {
	var payload vehiclesPayload
	if err := s.client.Execute(ctx, vehiclesQuery, nil, &payload); err != nil {
		return nil, fmt.Errorf("fetching vehicles: %w", err)
	}

	observedAt := time.Now().UTC()
	vehicles := make([]transport.Vehicle, 0, len(payload.Vehicles))
	for _, raw := range payload.Vehicles {
		vehicle, err := s.normalizeVehicle(raw, observedAt)
		if err != nil {
			s.logger.Warn("Dropping vehicle record", "vehicle_id", raw.ID, "error", err)
			continue
		}
		if vehicle == nil {
			// No position reported, nothing downstream can use it
			s.logger.Debug("Skipping vehicle without position", "vehicle_id", raw.ID)
			continue
		}
		vehicles = append(vehicles, *vehicle)
	}

	s.logger.Debug("Fetched vehicles", "raw", len(payload.Vehicles), "normalized", len(vehicles))
	return vehicles, nil
}

// Stations returns one page of stops.
func (s *Service) Stations(ctx context.Context, limit, offset int) ([]transport.Station, error) {
	variables := map[string]interface{}{
		"limit":  limit,
		"offset": offset,
	}

	var payload stopsPayload
	if err := s.client.Execute(ctx, stopsQuery, variables, &payload); err != nil {
		return nil, fmt.Errorf("fetching stations: %w", err)
	}

	stations := make([]transport.Station, 0, len(payload.Stops))
	for _, raw := range payload.Stops {
		station, err := s.normalizeStation(raw)
		if err != nil {
			s.logger.Warn("Dropping station record", "station_id", raw.ID, "error", err)
			continue
		}
		stations = append(stations, *station)
	}

	return stations, nil
}

// Routes returns all routes with their ordered stop patterns.
func (s *Service) Routes(ctx context.Context) ([]transport.Route, error) {
	var payload routesPayload
	if err := s.client.Execute(ctx, routesQuery, nil, &payload); err != nil {
		return nil, fmt.Errorf("fetching routes: %w", err)
	}

	routes := make([]transport.Route, 0, len(payload.Routes))
	for _, raw := range payload.Routes {
		route, err := s.normalizeRoute(raw)
		if err != nil {
			s.logger.Warn("Dropping route record", "route_id", raw.ID, "error", err)
			continue
		}
		routes = append(routes, *route)
	}

	return routes, nil
}

// normalizeVehicle maps a raw vehicle onto the canonical record. Returns
// (nil, nil) for a positionless vehicle, which is skipped rather than
// defaulted: position is load-bearing for every downstream consumer.
func (s *Service) normalizeVehicle(raw rawVehicle, observedAt time.Time) (*transport.Vehicle, error) {
	if raw.ID == "" {
		return nil, fmt.Errorf("%w: missing vehicle id", ErrMalformedRecord)
	}

	if raw.Position == nil || raw.Position.Latitude == nil || raw.Position.Longitude == nil {
		return nil, nil
	}

	vehicle := &transport.Vehicle{
		ID:   raw.ID,
		Mode: transport.ModeBus,
		Position: transport.Position{
			Lat: *raw.Position.Latitude,
			Lng: *raw.Position.Longitude,
		},
		Speed:         raw.Speed,
		Heading:       raw.Heading,
		VehicleNumber: raw.VehicleNumber,
		OperatorID:    raw.OperatorID,
		ObservedAt:    observedAt,
	}

	if raw.Trip != nil {
		vehicle.TripID = raw.Trip.ID
		if raw.Trip.Route != nil {
			vehicle.RouteID = raw.Trip.Route.ID
			vehicle.Mode = s.parseMode(raw.Trip.Route.Mode)
		}
	}

	return vehicle, nil
}

// normalizeStation maps a raw stop onto the canonical record. Stations are
// reference data: a missing position defaults to (0, 0) so the stop still
// shows up in search and listing.
func (s *Service) normalizeStation(raw rawStop) (*transport.Station, error) {
	if raw.ID == "" {
		return nil, fmt.Errorf("%w: missing station id", ErrMalformedRecord)
	}

	name := raw.Name
	if name == "" {
		name = "Unknown"
	}

	var position transport.Position
	if raw.Lat != nil && raw.Lon != nil {
		position = transport.Position{Lat: *raw.Lat, Lng: *raw.Lon}
	}

	var routes []string
	for _, ref := range raw.Routes {
		if ref.ID != "" {
			routes = append(routes, ref.ID)
		}
	}

	return &transport.Station{
		ID:           raw.ID,
		Name:         name,
		Code:         raw.Code,
		Position:     position,
		Routes:       routes,
		PlatformCode: raw.PlatformCode,
		Description:  raw.Desc,
		ZoneID:       raw.ZoneID,
	}, nil
}

func (s *Service) normalizeRoute(raw rawRoute) (*transport.Route, error) {
	if raw.ID == "" {
		return nil, fmt.Errorf("%w: missing route id", ErrMalformedRecord)
	}

	patterns := make([]transport.RoutePattern, 0, len(raw.Patterns))
	for _, rawPattern := range raw.Patterns {
		stops := make([]string, 0, len(rawPattern.Stops))
		for _, ref := range rawPattern.Stops {
			if ref.ID != "" {
				stops = append(stops, ref.ID)
			}
		}
		patterns = append(patterns, transport.RoutePattern{
			ID:    rawPattern.ID,
			Name:  rawPattern.Name,
			Stops: stops,
		})
	}

	return &transport.Route{
		ID:         raw.ID,
		ShortName:  raw.ShortName,
		LongName:   raw.LongName,
		Mode:       s.parseMode(raw.Mode),
		OperatorID: raw.OperatorID,
		Patterns:   patterns,
		Color:      raw.Color,
		TextColor:  raw.TextColor,
	}, nil
}

func (s *Service) parseMode(raw string) transport.VehicleMode {
	mode, known := transport.ParseMode(raw)
	if !known && raw != "" {
		s.logger.Warn("Unknown vehicle mode, defaulting to BUS", "mode", raw)
	}
	return mode
}
