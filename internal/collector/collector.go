// Package collector drives the periodic fetch-normalize-store-aggregate
// pipeline. Every cycle is isolated: a failure at any stage is logged and
// the loop keeps its schedule.
package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hsltracker-data/internal/common/config"
	"github.com/hsltracker-data/internal/common/logger"
	"github.com/hsltracker-data/internal/store"
	"github.com/hsltracker-data/pkg/transport"
)

const stationPageSize = 100

// Fetcher is the upstream boundary the collector polls.
type Fetcher interface {
	Vehicles(ctx context.Context) ([]transport.Vehicle, error)
	Stations(ctx context.Context, limit, offset int) ([]transport.Station, error)
	Routes(ctx context.Context) ([]transport.Route, error)
}

// Upserter is the slice of the store the collector writes through.
type Upserter interface {
	UpsertVehicles(ctx context.Context, vehicles []transport.Vehicle) (store.UpsertResult, error)
	UpsertStations(ctx context.Context, stations []transport.Station) (store.UpsertResult, error)
	ReplaceRoutes(ctx context.Context, routes []transport.Route) error
}

// Recorder receives the stored batch after commit.
type Recorder interface {
	RecordSightings(ctx context.Context, vehicles []transport.Vehicle) error
}

type Collector struct {
	config   config.CollectorConfig
	fetcher  Fetcher
	store    Upserter
	recorder Recorder
	logger   logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool

	// collecting guards against overlapping collection cycles. If a tick
	// arrives while the previous cycle still runs, the tick is skipped:
	// running cycles concurrently would race writers on the same identity
	// keys.
	collecting sync.Mutex
}

func New(cfg config.CollectorConfig, fetcher Fetcher, st Upserter, recorder Recorder, log logger.Logger) *Collector {
	return &Collector{
		config:   cfg,
		fetcher:  fetcher,
		store:    st,
		recorder: recorder,
		logger:   log,
	}
}

// Start runs the collection loop until the context is cancelled. Vehicle
// collection ticks on the collection interval; the station and route
// reference catalog refreshes on its own slower cadence.
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("collector already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	c.mu.Unlock()

	c.logger.Info("Starting collector",
		"collection_interval", c.config.CollectionInterval,
		"route_refresh_interval", c.config.RouteRefreshInterval)

	collectTicker := time.NewTicker(c.config.CollectionInterval)
	defer collectTicker.Stop()
	refreshTicker := time.NewTicker(c.config.RouteRefreshInterval)
	defer refreshTicker.Stop()

	// Initial runs so data shows up before the first tick
	c.CollectVehicles(ctx)
	c.RefreshReference(ctx)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Collector stopped")
			return nil
		case <-collectTicker.C:
			c.CollectVehicles(ctx)
		case <-refreshTicker.C:
			c.RefreshReference(ctx)
		}
	}
}

func (c *Collector) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return fmt.Errorf("collector not running")
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.running = false
	return nil
}

// CollectVehicles runs one fetch-store-aggregate cycle for the live fleet.
// Nothing is partially written: fetch failures abandon the cycle before any
// write, store failures roll back the whole batch, and aggregation failures
// never undo the committed upsert.
func (c *Collector) CollectVehicles(ctx context.Context) {
	if !c.collecting.TryLock() {
		c.logger.Warn("Previous collection cycle still running, skipping tick")
		return
	}
	defer c.collecting.Unlock()

	started := time.Now()

	vehicles, err := c.fetcher.Vehicles(ctx)
	if err != nil {
		c.logger.Error("Collection cycle abandoned: fetch failed", "error", err)
		return
	}
	if len(vehicles) == 0 {
		c.logger.Debug("Collection cycle fetched no vehicles")
		return
	}

	result, err := c.store.UpsertVehicles(ctx, vehicles)
	if err != nil {
		c.logger.Error("Collection cycle abandoned: store failed", "error", err)
		return
	}

	// Counters update after commit; a failure here is logged and dropped
	// rather than retried against the already stored sightings.
	if err := c.recorder.RecordSightings(ctx, vehicles); err != nil {
		c.logger.Error("Failed to record sightings", "error", err)
	}

	c.logger.Info("Collection cycle completed",
		"vehicles", len(vehicles),
		"inserted", result.Inserted,
		"updated", result.Updated,
		"duration_ms", time.Since(started).Milliseconds())
}

// RefreshReference re-syncs the station and route catalogs. Reference data
// is read-mostly; failures are logged and retried on the next refresh tick.
func (c *Collector) RefreshReference(ctx context.Context) {
	started := time.Now()

	total := 0
	for offset := 0; ; offset += stationPageSize {
		page, err := c.fetcher.Stations(ctx, stationPageSize, offset)
		if err != nil {
			c.logger.Error("Station refresh abandoned", "error", err, "offset", offset)
			break
		}
		if len(page) == 0 {
			break
		}

		if _, err := c.store.UpsertStations(ctx, page); err != nil {
			c.logger.Error("Station refresh abandoned: store failed", "error", err)
			break
		}
		total += len(page)

		if len(page) < stationPageSize {
			break
		}
	}

	routes, err := c.fetcher.Routes(ctx)
	if err != nil {
		c.logger.Error("Route refresh abandoned", "error", err)
		return
	}
	if len(routes) > 0 {
		if err := c.store.ReplaceRoutes(ctx, routes); err != nil {
			c.logger.Error("Route refresh abandoned: store failed", "error", err)
			return
		}
	}

	c.logger.Info("Reference refresh completed",
		"stations", total,
		"routes", len(routes),
		"duration_ms", time.Since(started).Milliseconds())
}
