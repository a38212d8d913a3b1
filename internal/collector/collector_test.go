package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hsltracker-data/internal/common/config"
	"github.com/hsltracker-data/internal/common/logger"
	"github.com/hsltracker-data/internal/store"
	"github.com/hsltracker-data/pkg/transport"
)

type fakeFetcher struct {
	vehicles    []transport.Vehicle
	vehiclesErr error
	stationPage func(limit, offset int) ([]transport.Station, error)
	routes      []transport.Route
	routesErr   error

	mu           sync.Mutex
	vehicleCalls int
}

func (f *fakeFetcher) Vehicles(ctx context.Context) ([]transport.Vehicle, error) {
	f.mu.Lock()
	f.vehicleCalls++
	f.mu.Unlock()
	return f.vehicles, f.vehiclesErr
}

func (f *fakeFetcher) Stations(ctx context.Context, limit, offset int) ([]transport.Station, error) {
	if f.stationPage == nil {
		return nil, nil
	}
	return f.stationPage(limit, offset)
}

func (f *fakeFetcher) Routes(ctx context.Context) ([]transport.Route, error) {
	return f.routes, f.routesErr
}

type fakeUpserter struct {
	mu             sync.Mutex
	vehicleBatches [][]transport.Vehicle
	stationBatches [][]transport.Station
	routeBatches   [][]transport.Route
	upsertErr      error
}

func (f *fakeUpserter) UpsertVehicles(ctx context.Context, vehicles []transport.Vehicle) (store.UpsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return store.UpsertResult{}, f.upsertErr
	}
	f.vehicleBatches = append(f.vehicleBatches, vehicles)
	return store.UpsertResult{Inserted: len(vehicles)}, nil
}

func (f *fakeUpserter) UpsertStations(ctx context.Context, stations []transport.Station) (store.UpsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stationBatches = append(f.stationBatches, stations)
	return store.UpsertResult{Inserted: len(stations)}, nil
}

func (f *fakeUpserter) ReplaceRoutes(ctx context.Context, routes []transport.Route) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routeBatches = append(f.routeBatches, routes)
	return nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	batches [][]transport.Vehicle
	err     error
	block   chan struct{}
}

func (f *fakeRecorder) RecordSightings(ctx context.Context, vehicles []transport.Vehicle) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, vehicles)
	return nil
}

func testConfig() config.CollectorConfig {
	return config.CollectorConfig{
		CollectionInterval:   time.Hour,
		RouteRefreshInterval: time.Hour,
	}
}

func TestCollectVehicles(t *testing.T) {
	fetcher := &fakeFetcher{vehicles: []transport.Vehicle{
		{ID: "veh:1", Mode: transport.ModeBus, Position: transport.Position{Lat: 60.1, Lng: 24.9}},
		{ID: "veh:2", Mode: transport.ModeTram, Position: transport.Position{Lat: 60.2, Lng: 24.8}},
	}}
	upserter := &fakeUpserter{}
	recorder := &fakeRecorder{}

	c := New(testConfig(), fetcher, upserter, recorder, logger.Nop())
	c.CollectVehicles(context.Background())

	if len(upserter.vehicleBatches) != 1 || len(upserter.vehicleBatches[0]) != 2 {
		t.Fatalf("upserted batches = %v, want one batch of 2", upserter.vehicleBatches)
	}
	if len(recorder.batches) != 1 || len(recorder.batches[0]) != 2 {
		t.Fatalf("recorded batches = %v, want one batch of 2", recorder.batches)
	}
}

func TestCollectVehiclesFetchFailureWritesNothing(t *testing.T) {
	fetcher := &fakeFetcher{vehiclesErr: errors.New("upstream down")}
	upserter := &fakeUpserter{}
	recorder := &fakeRecorder{}

	c := New(testConfig(), fetcher, upserter, recorder, logger.Nop())
	c.CollectVehicles(context.Background())

	if len(upserter.vehicleBatches) != 0 {
		t.Errorf("upserter called despite fetch failure")
	}
	if len(recorder.batches) != 0 {
		t.Errorf("recorder called despite fetch failure")
	}
}

func TestCollectVehiclesStoreFailureSkipsRecorder(t *testing.T) {
	fetcher := &fakeFetcher{vehicles: []transport.Vehicle{{ID: "veh:1"}}}
	upserter := &fakeUpserter{upsertErr: errors.New("db gone")}
	recorder := &fakeRecorder{}

	c := New(testConfig(), fetcher, upserter, recorder, logger.Nop())
	c.CollectVehicles(context.Background())

	if len(recorder.batches) != 0 {
		t.Errorf("recorder called despite store failure")
	}
}

func TestCollectVehiclesRecorderFailureDoesNotAbort(t *testing.T) {
	fetcher := &fakeFetcher{vehicles: []transport.Vehicle{{ID: "veh:1"}}}
	upserter := &fakeUpserter{}
	recorder := &fakeRecorder{err: errors.New("counters unavailable")}

	c := New(testConfig(), fetcher, upserter, recorder, logger.Nop())
	c.CollectVehicles(context.Background())

	// The stored batch stays committed even when aggregation fails
	if len(upserter.vehicleBatches) != 1 {
		t.Errorf("upserted batches = %d, want 1", len(upserter.vehicleBatches))
	}
}

func TestCollectVehiclesSkipsOverlappingCycle(t *testing.T) {
	release := make(chan struct{})
	fetcher := &fakeFetcher{vehicles: []transport.Vehicle{{ID: "veh:1"}}}
	upserter := &fakeUpserter{}
	recorder := &fakeRecorder{block: release}

	c := New(testConfig(), fetcher, upserter, recorder, logger.Nop())

	done := make(chan struct{})
	go func() {
		c.CollectVehicles(context.Background())
		close(done)
	}()

	// Wait for the first cycle to reach the recorder, then tick again
	for {
		fetcher.mu.Lock()
		calls := fetcher.vehicleCalls
		fetcher.mu.Unlock()
		if calls == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	c.CollectVehicles(context.Background())

	fetcher.mu.Lock()
	calls := fetcher.vehicleCalls
	fetcher.mu.Unlock()
	if calls != 1 {
		t.Errorf("fetch calls = %d, want 1: overlapping tick should be skipped", calls)
	}

	close(release)
	<-done
}

func TestRefreshReferencePagesStations(t *testing.T) {
	pages := map[int][]transport.Station{
		0: make([]transport.Station, stationPageSize),
		1: {{ID: "stop:last", Name: "Last"}},
	}
	for i := range pages[0] {
		pages[0][i] = transport.Station{ID: "stop:" + string(rune('a'+i%26)), Name: "Stop"}
	}

	fetcher := &fakeFetcher{
		stationPage: func(limit, offset int) ([]transport.Station, error) {
			return pages[offset/stationPageSize], nil
		},
		routes: []transport.Route{{ID: "route:1", ShortName: "550"}},
	}
	upserter := &fakeUpserter{}

	c := New(testConfig(), fetcher, upserter, &fakeRecorder{}, logger.Nop())
	c.RefreshReference(context.Background())

	if len(upserter.stationBatches) != 2 {
		t.Fatalf("station batches = %d, want 2 pages", len(upserter.stationBatches))
	}
	if len(upserter.stationBatches[1]) != 1 {
		t.Errorf("short final page = %d stations, want 1", len(upserter.stationBatches[1]))
	}
	if len(upserter.routeBatches) != 1 {
		t.Errorf("route batches = %d, want 1", len(upserter.routeBatches))
	}
}

func TestStartStop(t *testing.T) {
	fetcher := &fakeFetcher{}
	c := New(testConfig(), fetcher, &fakeUpserter{}, &fakeRecorder{}, logger.Nop())

	ctx := context.Background()
	errCh := make(chan error, 1)
	go func() { errCh <- c.Start(ctx) }()

	// Wait for the initial collection run before stopping
	for {
		fetcher.mu.Lock()
		calls := fetcher.vehicleCalls
		fetcher.mu.Unlock()
		if calls >= 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := c.Stop(); err != nil {
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

	if err := c.Stop(); err == nil {
		t.Error("second Stop() should report not running")
	}
}
