package httpapi

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/noisegrid/noise-data-aggregation/internal/noise"
	"github.com/noisegrid/noise-data-aggregation/internal/store"
)

var validate = validator.New()

// TransportStatus exposes the state of the external broker connection for
// the status endpoints. It may be nil when the service runs without MQTT.
type TransportStatus interface {
	Connected() bool
	Degraded() bool
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *noise.Service, transport TransportStatus) {
	v1 := app.Group("/api/v1")

	v1.Get("/sensors/current", func(c *fiber.Ctx) error {
		readings := service.Snapshot()
		return c.JSON(fiber.Map{
			"status":       "success",
			"data":         readings,
			"device_count": len(readings),
			"timestamp":    time.Now().UnixMilli(),
		})
	})

	v1.Get("/sensors/:id", func(c *fiber.Ctx) error {
		var req deviceQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		reading, err := service.Reading(req.DeviceID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "device not found")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch device data")
		}

		history, _ := service.History(req.DeviceID, req.Limit)
		return c.JSON(fiber.Map{
			"status":    "success",
			"device_id": req.DeviceID,
			"data":      reading,
			"history":   history,
		})
	})

	v1.Get("/grid", func(c *fiber.Ctx) error {
		grid := service.LatestGrid()
		if grid == nil {
			return fiber.NewError(fiber.StatusNotFound, "no interpolated grid available yet")
		}
		return c.JSON(grid)
	})

	v1.Get("/status", func(c *fiber.Ctx) error {
		status := fiber.Map{
			"status":       "running",
			"device_count": service.SensorCount(),
			"endpoints": fiber.Map{
				"current_data": "/api/v1/sensors/current",
				"device_data":  "/api/v1/sensors/{device_id}",
				"grid":         "/api/v1/grid",
				"stream":       "/ws",
			},
		}
		if transport != nil {
			status["mqtt"] = fiber.Map{
				"connected": transport.Connected(),
				"degraded":  transport.Degraded(),
			}
		}
		return c.JSON(status)
	})

	registerWebSocket(app, service)
}

// deviceQuery holds the path and query parameters for device lookups.
type deviceQuery struct {
	DeviceID string `validate:"required"`
	Limit    int    `validate:"omitempty,min=1,max=100"`
}

func (q *deviceQuery) bind(c *fiber.Ctx) error {
	q.DeviceID = c.Params("id")
	q.Limit = c.QueryInt("limit", 10)
	return validate.Struct(q)
}
