package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/hsltracker-data/internal/common/logger"
)

// NewRequestLogger returns a fiber middleware logging one line per request.
func NewRequestLogger(log logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		startTime := time.Now()
		err := c.Next()

		msg := "HTTP request"
		if err != nil {
			msg = err.Error()
		}

		code := c.Response().StatusCode()
		fields := []interface{}{
			"status", code,
			"method", c.Method(),
			"path", c.Path(),
			"ip", c.IP(),
			"latency", time.Since(startTime).String(),
		}

		switch {
		case code >= fiber.StatusInternalServerError:
			log.Error(msg, fields...)
		case code >= fiber.StatusBadRequest:
			log.Warn(msg, fields...)
		default:
			log.Info(msg, fields...)
		}

		return nil
	}
}
