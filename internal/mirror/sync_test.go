package mirror

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hsltracker-data/internal/common/config"
	"github.com/hsltracker-data/internal/common/logger"
	"github.com/hsltracker-data/internal/store"
	"github.com/hsltracker-data/pkg/transport"
)

type fakeStore struct {
	mu       sync.Mutex
	vehicles [][]transport.Vehicle
	stations [][]transport.Station
}

func (f *fakeStore) UpsertVehicles(ctx context.Context, vehicles []transport.Vehicle) (store.UpsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vehicles = append(f.vehicles, vehicles)
	return store.UpsertResult{Inserted: len(vehicles)}, nil
}

func (f *fakeStore) UpsertStations(ctx context.Context, stations []transport.Station) (store.UpsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stations = append(f.stations, stations)
	return store.UpsertResult{Inserted: len(stations)}, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	batches [][]transport.Vehicle
}

func (f *fakeRecorder) RecordSightings(ctx context.Context, vehicles []transport.Vehicle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, vehicles)
	return nil
}

func newTestSyncer(t *testing.T, routes map[string]string) (*Syncer, *fakeStore, *fakeRecorder) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	st := &fakeStore{}
	recorder := &fakeRecorder{}
	syncer := New(config.MirrorConfig{
		URL:          server.URL,
		SyncInterval: time.Hour,
		FetchTimeout: 5 * time.Second,
	}, st, recorder, logger.Nop())

	return syncer, st, recorder
}

func TestSyncVehicles(t *testing.T) {
	syncer, st, recorder := newTestSyncer(t, map[string]string{
		"/live/vehicles": `[
			{"id":"veh:1","mode":"TRAM","position":{"lat":60.17,"lng":24.94},
			 "speed":6.1,"heading":90,"vehicle_number":"417","operator_id":"HSL",
			 "timestamp":"2026-03-14T08:15:00Z"},
			{"id":"veh:2","mode":"BUS"},
			{"id":"","position":{"lat":60.0,"lng":24.0}}
		]`,
	})

	syncer.syncVehicles(context.Background())

	// veh:2 has no position and the last entry has no id; both skipped
	if len(st.vehicles) != 1 || len(st.vehicles[0]) != 1 {
		t.Fatalf("stored batches = %v, want one batch of 1", st.vehicles)
	}

	v := st.vehicles[0][0]
	if v.ID != "veh:1" || v.Mode != transport.ModeTram {
		t.Errorf("vehicle = %+v", v)
	}
	want := time.Date(2026, 3, 14, 8, 15, 0, 0, time.UTC)
	if !v.ObservedAt.Equal(want) {
		t.Errorf("ObservedAt = %v, want %v", v.ObservedAt, want)
	}

	if len(recorder.batches) != 1 {
		t.Errorf("recorded batches = %d, want 1", len(recorder.batches))
	}
}

func TestSyncVehiclesTimestampFallback(t *testing.T) {
	syncer, st, _ := newTestSyncer(t, map[string]string{
		"/live/vehicles": `[{"id":"veh:1","mode":"BUS","position":{"lat":60.1,"lng":24.9},"timestamp":"yesterday"}]`,
	})

	before := time.Now().UTC()
	syncer.syncVehicles(context.Background())

	if len(st.vehicles) != 1 {
		t.Fatalf("stored batches = %d, want 1", len(st.vehicles))
	}
	got := st.vehicles[0][0].ObservedAt
	if got.Before(before) || got.After(time.Now().UTC()) {
		t.Errorf("unparseable timestamp should fall back to now, got %v", got)
	}
}

func TestSyncStations(t *testing.T) {
	syncer, st, _ := newTestSyncer(t, map[string]string{
		"/live/stations": `[
			{"station_name":"Rautatientori","platform_code":"19","zone_id":"A",
			 "latitude":60.171,"longitude":24.945},
			{"station_name":""}
		]`,
	})

	syncer.syncStations(context.Background())

	if len(st.stations) != 1 || len(st.stations[0]) != 1 {
		t.Fatalf("stored batches = %v, want one batch of 1", st.stations)
	}

	station := st.stations[0][0]
	if station.ID != "" {
		t.Errorf("mirror stations carry no external id, got %q", station.ID)
	}
	if station.Name != "Rautatientori" || station.PlatformCode != "19" || station.ZoneID != "A" {
		t.Errorf("station = %+v", station)
	}
	if station.Position.Lat != 60.171 || station.Position.Lng != 24.945 {
		t.Errorf("position = %+v", station.Position)
	}
}

func TestSyncAbandonedOnHTTPError(t *testing.T) {
	syncer, st, recorder := newTestSyncer(t, map[string]string{})

	syncer.syncVehicles(context.Background())
	syncer.syncStations(context.Background())

	if len(st.vehicles) != 0 || len(st.stations) != 0 {
		t.Errorf("store called despite fetch failure")
	}
	if len(recorder.batches) != 0 {
		t.Errorf("recorder called despite fetch failure")
	}
}

func TestStartStop(t *testing.T) {
	syncer, _, _ := newTestSyncer(t, map[string]string{
		"/live/vehicles": `[]`,
		"/live/stations": `[]`,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- syncer.Start(context.Background()) }()

	// Give the loop a moment to register as running
	deadline := time.After(2 * time.Second)
	for !func() bool {
		syncer.mu.Lock()
		defer syncer.mu.Unlock()
		return syncer.running
	}() {
		select {
		case <-deadline:
			t.Fatal("syncer did not start")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if err := syncer.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after Stop()")
	}

	if err := syncer.Stop(); err == nil {
		t.Error("second Stop() should report not running")
	}
}
