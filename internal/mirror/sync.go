// Package mirror polls an external REST mirror for vehicle and station
// snapshots and feeds them through the same canonical pipeline as the
// primary GraphQL source. The loop is optional and disabled when no mirror
// URL is configured.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hsltracker-data/internal/common/config"
	"github.com/hsltracker-data/internal/common/logger"
	"github.com/hsltracker-data/internal/store"
	"github.com/hsltracker-data/pkg/transport"
)

// Upserter is the slice of the store the mirror writes through.
type Upserter interface {
	UpsertVehicles(ctx context.Context, vehicles []transport.Vehicle) (store.UpsertResult, error)
	UpsertStations(ctx context.Context, stations []transport.Station) (store.UpsertResult, error)
}

// Recorder receives stored vehicle batches after commit.
type Recorder interface {
	RecordSightings(ctx context.Context, vehicles []transport.Vehicle) error
}

type Syncer struct {
	config     config.MirrorConfig
	httpClient *http.Client
	store      Upserter
	recorder   Recorder
	logger     logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// vehicleEntry is one mirror vehicle snapshot. Optional scalar fields stay
// pointers so absent and zero are distinct.
type vehicleEntry struct {
	ID            string    `json:"id"`
	Mode          string    `json:"mode"`
	Position      *position `json:"position"`
	Speed         *float64  `json:"speed"`
	Heading       *int      `json:"heading"`
	VehicleNumber string    `json:"vehicle_number"`
	OperatorID    string    `json:"operator_id"`
	Timestamp     string    `json:"timestamp"`
}

type position struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// stationEntry is one mirror station snapshot. The mirror feed carries no
// stable station ID, so the store dedups on (name, platform code).
type stationEntry struct {
	StationName  string   `json:"station_name"`
	PlatformCode string   `json:"platform_code"`
	ZoneID       string   `json:"zone_id"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
}

func New(cfg config.MirrorConfig, st Upserter, recorder Recorder, log logger.Logger) *Syncer {
	return &Syncer{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.FetchTimeout,
		},
		store:    st,
		recorder: recorder,
		logger:   log,
	}
}

// Start runs the mirror sync loop until the context is cancelled.
func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("mirror syncer already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.logger.Info("Starting mirror sync",
		"url", s.config.URL,
		"sync_interval", s.config.SyncInterval)

	ticker := time.NewTicker(s.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Mirror sync stopped")
			return nil
		case <-ticker.C:
			s.syncVehicles(ctx)
			s.syncStations(ctx)
		}
	}
}

func (s *Syncer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return fmt.Errorf("mirror syncer not running")
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
	return nil
}

func (s *Syncer) syncVehicles(ctx context.Context) {
	var entries []vehicleEntry
	if err := s.fetch(ctx, "/live/vehicles", &entries); err != nil {
		s.logger.Error("Mirror vehicle sync abandoned", "error", err)
		return
	}

	now := time.Now().UTC()
	vehicles := make([]transport.Vehicle, 0, len(entries))
	for _, entry := range entries {
		vehicle := normalizeVehicleEntry(entry, now)
		if vehicle == nil {
			s.logger.Debug("Skipping mirror vehicle entry", "vehicle_id", entry.ID)
			continue
		}
		vehicles = append(vehicles, *vehicle)
	}
	if len(vehicles) == 0 {
		return
	}

	result, err := s.store.UpsertVehicles(ctx, vehicles)
	if err != nil {
		s.logger.Error("Mirror vehicle sync abandoned: store failed", "error", err)
		return
	}

	if err := s.recorder.RecordSightings(ctx, vehicles); err != nil {
		s.logger.Error("Failed to record mirror sightings", "error", err)
	}

	s.logger.Info("Mirror vehicle sync completed",
		"vehicles", len(vehicles),
		"inserted", result.Inserted,
		"updated", result.Updated)
}

func (s *Syncer) syncStations(ctx context.Context) {
	var entries []stationEntry
	if err := s.fetch(ctx, "/live/stations", &entries); err != nil {
		s.logger.Error("Mirror station sync abandoned", "error", err)
		return
	}

	stations := make([]transport.Station, 0, len(entries))
	for _, entry := range entries {
		station := normalizeStationEntry(entry)
		if station == nil {
			s.logger.Debug("Skipping mirror station entry", "name", entry.StationName)
			continue
		}
		stations = append(stations, *station)
	}
	if len(stations) == 0 {
		return
	}

	result, err := s.store.UpsertStations(ctx, stations)
	if err != nil {
		s.logger.Error("Mirror station sync abandoned: store failed", "error", err)
		return
	}

	s.logger.Info("Mirror station sync completed",
		"stations", len(stations),
		"inserted", result.Inserted,
		"updated", result.Updated)
}

func (s *Syncer) fetch(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.URL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

// normalizeVehicleEntry maps a mirror entry onto the canonical record.
// Entries without an ID or position are skipped, same rules as the primary
// source.
func normalizeVehicleEntry(entry vehicleEntry, now time.Time) *transport.Vehicle {
	if entry.ID == "" {
		return nil
	}
	if entry.Position == nil || entry.Position.Lat == nil || entry.Position.Lng == nil {
		return nil
	}

	mode, _ := transport.ParseMode(entry.Mode)

	observedAt := now
	if entry.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, entry.Timestamp); err == nil {
			observedAt = parsed.UTC()
		}
	}

	return &transport.Vehicle{
		ID:   entry.ID,
		Mode: mode,
		Position: transport.Position{
			Lat: *entry.Position.Lat,
			Lng: *entry.Position.Lng,
		},
		Speed:         entry.Speed,
		Heading:       entry.Heading,
		VehicleNumber: entry.VehicleNumber,
		OperatorID:    entry.OperatorID,
		ObservedAt:    observedAt,
	}
}

func normalizeStationEntry(entry stationEntry) *transport.Station {
	if entry.StationName == "" {
		return nil
	}

	var pos transport.Position
	if entry.Latitude != nil && entry.Longitude != nil {
		pos = transport.Position{Lat: *entry.Latitude, Lng: *entry.Longitude}
	}

	return &transport.Station{
		Name:         entry.StationName,
		PlatformCode: entry.PlatformCode,
		ZoneID:       entry.ZoneID,
		Position:     pos,
	}
}
