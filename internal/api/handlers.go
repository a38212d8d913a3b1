package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/hsltracker-data/internal/common/logger"
	"github.com/hsltracker-data/internal/store"
	"github.com/hsltracker-data/pkg/transport"
)

const dateLayout = "2006-01-02"

type handler struct {
	directory Directory
	stats     StatsProvider
	logger    logger.Logger
}

func (h *handler) listVehicles(c *fiber.Ctx) error {
	vehicles, err := h.directory.ListVehicles(c.Context())
	if err != nil {
		return h.internalError(c, "listing vehicles", err)
	}
	if vehicles == nil {
		vehicles = []transport.Vehicle{}
	}
	return c.JSON(vehicles)
}

func (h *handler) listStations(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	offset := c.QueryInt("offset", 0)
	if limit <= 0 || offset < 0 {
		return badRequest(c, "limit must be positive and offset non-negative")
	}

	stations, err := h.directory.ListStations(c.Context(), limit, offset)
	if err != nil {
		return h.internalError(c, "listing stations", err)
	}
	if stations == nil {
		stations = []transport.Station{}
	}
	return c.JSON(stations)
}

func (h *handler) getStation(c *fiber.Ctx) error {
	station, err := h.directory.GetStation(c.Context(), c.Params("id"))
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Station not found",
		})
	}
	if err != nil {
		return h.internalError(c, "fetching station", err)
	}
	return c.JSON(station)
}

func (h *handler) searchStations(c *fiber.Ctx) error {
	query := c.Query("query")
	if query == "" {
		return badRequest(c, "Search query is required")
	}

	stations, err := h.directory.SearchStations(c.Context(), query)
	if err != nil {
		return h.internalError(c, "searching stations", err)
	}
	if stations == nil {
		stations = []transport.Station{}
	}
	return c.JSON(stations)
}

func (h *handler) listRoutes(c *fiber.Ctx) error {
	routes, err := h.directory.ListRoutes(c.Context())
	if err != nil {
		return h.internalError(c, "listing routes", err)
	}
	if routes == nil {
		routes = []transport.Route{}
	}
	return c.JSON(routes)
}

func (h *handler) getRoute(c *fiber.Ctx) error {
	route, err := h.directory.GetRoute(c.Context(), c.Params("id"))
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Route not found",
		})
	}
	if err != nil {
		return h.internalError(c, "fetching route", err)
	}
	return c.JSON(route)
}

func (h *handler) hourlyStats(c *fiber.Ctx) error {
	date := time.Now().UTC()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return badRequest(c, "Invalid date format, use YYYY-MM-DD")
		}
		date = parsed
	}

	counts, err := h.stats.HourlyStats(c.Context(), date)
	if err != nil {
		return h.internalError(c, "fetching hourly stats", err)
	}
	if counts == nil {
		counts = []transport.StatCount{}
	}
	return c.JSON(counts)
}

func (h *handler) dailyStats(c *fiber.Ctx) error {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -7)

	if raw := c.Query("start_date"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return badRequest(c, "Invalid start_date format, use YYYY-MM-DD")
		}
		start = parsed
	}
	if raw := c.Query("end_date"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return badRequest(c, "Invalid end_date format, use YYYY-MM-DD")
		}
		end = parsed
	}
	if end.Before(start) {
		return badRequest(c, "end_date must not precede start_date")
	}

	counts, err := h.stats.DailyStats(c.Context(), start, end)
	if err != nil {
		return h.internalError(c, "fetching daily stats", err)
	}
	if counts == nil {
		counts = []transport.StatCount{}
	}
	return c.JSON(counts)
}

func (h *handler) statsByType(c *fiber.Ctx) error {
	counts, err := h.stats.StatsByType(c.Context())
	if err != nil {
		return h.internalError(c, "fetching type stats", err)
	}
	if counts == nil {
		counts = []transport.StatCount{}
	}
	return c.JSON(counts)
}

func (h *handler) statsByStation(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 10)
	if limit <= 0 {
		return badRequest(c, "limit must be positive")
	}

	counts, err := h.stats.StatsByStation(c.Context(), limit)
	if err != nil {
		return h.internalError(c, "fetching station stats", err)
	}
	if counts == nil {
		counts = []transport.StatCount{}
	}
	return c.JSON(counts)
}

func (h *handler) internalError(c *fiber.Ctx, action string, err error) error {
	h.logger.Error("Request failed", "action", action, "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal server error",
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}
