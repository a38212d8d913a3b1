package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hsltracker-data/internal/common/logger"
	"github.com/hsltracker-data/internal/store"
	"github.com/hsltracker-data/pkg/transport"
)

type fakeDirectory struct {
	vehicles []transport.Vehicle
	stations []transport.Station
	routes   []transport.Route
}

func (f *fakeDirectory) ListVehicles(ctx context.Context) ([]transport.Vehicle, error) {
	return f.vehicles, nil
}

func (f *fakeDirectory) ListStations(ctx context.Context, limit, offset int) ([]transport.Station, error) {
	if offset >= len(f.stations) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.stations) {
		end = len(f.stations)
	}
	return f.stations[offset:end], nil
}

func (f *fakeDirectory) GetStation(ctx context.Context, id string) (*transport.Station, error) {
	for i := range f.stations {
		if f.stations[i].ID == id {
			return &f.stations[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeDirectory) SearchStations(ctx context.Context, text string) ([]transport.Station, error) {
	return f.stations, nil
}

func (f *fakeDirectory) ListRoutes(ctx context.Context) ([]transport.Route, error) {
	return f.routes, nil
}

func (f *fakeDirectory) GetRoute(ctx context.Context, id string) (*transport.Route, error) {
	for i := range f.routes {
		if f.routes[i].ID == id {
			return &f.routes[i], nil
		}
	}
	return nil, store.ErrNotFound
}

type fakeStats struct {
	hourly    []transport.StatCount
	daily     []transport.StatCount
	byType    []transport.StatCount
	byStation []transport.StatCount

	hourlyDate time.Time
	dailyStart time.Time
	dailyEnd   time.Time
}

func (f *fakeStats) HourlyStats(ctx context.Context, date time.Time) ([]transport.StatCount, error) {
	f.hourlyDate = date
	return f.hourly, nil
}

func (f *fakeStats) DailyStats(ctx context.Context, startDate, endDate time.Time) ([]transport.StatCount, error) {
	f.dailyStart = startDate
	f.dailyEnd = endDate
	return f.daily, nil
}

func (f *fakeStats) StatsByType(ctx context.Context) ([]transport.StatCount, error) {
	return f.byType, nil
}

func (f *fakeStats) StatsByStation(ctx context.Context, limit int) ([]transport.StatCount, error) {
	return f.byStation, nil
}

func newTestServer(directory Directory, stats StatsProvider) *Server {
	return NewServer(directory, stats, logger.Nop())
}

func doRequest(t *testing.T, s *Server, path string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request %s failed: %v", path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("decoding body %q: %v", body, err)
	}
}

func TestListVehicles(t *testing.T) {
	directory := &fakeDirectory{vehicles: []transport.Vehicle{
		{ID: "veh:1", Mode: transport.ModeTram},
	}}
	s := newTestServer(directory, &fakeStats{})

	resp := doRequest(t, s, "/api/vehicles")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var vehicles []transport.Vehicle
	decodeBody(t, resp, &vehicles)
	if len(vehicles) != 1 || vehicles[0].ID != "veh:1" {
		t.Errorf("vehicles = %+v", vehicles)
	}
}

func TestListVehiclesEmptyIsArray(t *testing.T) {
	s := newTestServer(&fakeDirectory{}, &fakeStats{})

	resp := doRequest(t, s, "/api/vehicles")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "[]" {
		t.Errorf("empty list body = %q, want []", body)
	}
}

func TestGetStationNotFound(t *testing.T) {
	s := newTestServer(&fakeDirectory{}, &fakeStats{})

	resp := doRequest(t, s, "/api/station/missing")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}

	var body map[string]string
	decodeBody(t, resp, &body)
	if body["error"] == "" {
		t.Error("error body missing")
	}
}

func TestGetStation(t *testing.T) {
	directory := &fakeDirectory{stations: []transport.Station{
		{ID: "stop:1", Name: "Rautatientori"},
	}}
	s := newTestServer(directory, &fakeStats{})

	resp := doRequest(t, s, "/api/station/stop:1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var station transport.Station
	decodeBody(t, resp, &station)
	if station.Name != "Rautatientori" {
		t.Errorf("station = %+v", station)
	}
}

func TestSearchStationsRequiresQuery(t *testing.T) {
	s := newTestServer(&fakeDirectory{}, &fakeStats{})

	resp := doRequest(t, s, "/api/stations/search")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestListStationsRejectsBadPaging(t *testing.T) {
	s := newTestServer(&fakeDirectory{}, &fakeStats{})

	resp := doRequest(t, s, "/api/stations?limit=-5")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetRouteNotFound(t *testing.T) {
	s := newTestServer(&fakeDirectory{}, &fakeStats{})

	resp := doRequest(t, s, "/api/route/missing")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHourlyStatsDateFilter(t *testing.T) {
	stats := &fakeStats{hourly: []transport.StatCount{
		{Category: "hour-8", Count: 3},
	}}
	s := newTestServer(&fakeDirectory{}, stats)

	resp := doRequest(t, s, "/api/stats/hourly?date=2026-03-14")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	want := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if !stats.hourlyDate.Equal(want) {
		t.Errorf("date passed = %v, want %v", stats.hourlyDate, want)
	}
}

func TestHourlyStatsRejectsBadDate(t *testing.T) {
	s := newTestServer(&fakeDirectory{}, &fakeStats{})

	resp := doRequest(t, s, "/api/stats/hourly?date=14.03.2026")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDailyStatsRange(t *testing.T) {
	stats := &fakeStats{}
	s := newTestServer(&fakeDirectory{}, stats)

	resp := doRequest(t, s, "/api/stats/daily?start_date=2026-03-01&end_date=2026-03-07")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if stats.dailyStart != time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) {
		t.Errorf("start = %v", stats.dailyStart)
	}
	if stats.dailyEnd != time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC) {
		t.Errorf("end = %v", stats.dailyEnd)
	}
}

func TestDailyStatsRejectsInvertedRange(t *testing.T) {
	s := newTestServer(&fakeDirectory{}, &fakeStats{})

	resp := doRequest(t, s, "/api/stats/daily?start_date=2026-03-07&end_date=2026-03-01")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeDirectory{}, &fakeStats{})

	resp := doRequest(t, s, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]string
	decodeBody(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("health body = %v", body)
	}
}
