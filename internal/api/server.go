// Package api exposes the query surface over HTTP. It is a thin layer:
// status-code and JSON mapping only, all reads served from the last
// successfully stored snapshot.
package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/hsltracker-data/internal/common/logger"
	"github.com/hsltracker-data/pkg/transport"
)

// Directory is the record query surface the store exposes.
type Directory interface {
	ListVehicles(ctx context.Context) ([]transport.Vehicle, error)
	ListStations(ctx context.Context, limit, offset int) ([]transport.Station, error)
	GetStation(ctx context.Context, id string) (*transport.Station, error)
	SearchStations(ctx context.Context, text string) ([]transport.Station, error)
	ListRoutes(ctx context.Context) ([]transport.Route, error)
	GetRoute(ctx context.Context, id string) (*transport.Route, error)
}

// StatsProvider is the counter query surface the aggregator exposes.
type StatsProvider interface {
	HourlyStats(ctx context.Context, date time.Time) ([]transport.StatCount, error)
	DailyStats(ctx context.Context, startDate, endDate time.Time) ([]transport.StatCount, error)
	StatsByType(ctx context.Context) ([]transport.StatCount, error)
	StatsByStation(ctx context.Context, limit int) ([]transport.StatCount, error)
}

type Server struct {
	app     *fiber.App
	handler *handler
}

func NewServer(directory Directory, stats StatsProvider, log logger.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(NewRequestLogger(log))

	h := &handler{
		directory: directory,
		stats:     stats,
		logger:    log,
	}

	group := app.Group("/api")

	group.Get("/vehicles", h.listVehicles)

	group.Get("/stations", h.listStations)
	group.Get("/stations/search", h.searchStations)
	group.Get("/station/:id", h.getStation)

	group.Get("/routes", h.listRoutes)
	group.Get("/route/:id", h.getRoute)

	group.Get("/stats/hourly", h.hourlyStats)
	group.Get("/stats/daily", h.dailyStats)
	group.Get("/stats/by_type", h.statsByType)
	group.Get("/stats/by_station", h.statsByStation)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	return &Server{app: app, handler: h}
}

// Listen blocks serving HTTP on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
