package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	httpapi "github.com/noisegrid/noise-data-aggregation/internal/api/http"
	"github.com/noisegrid/noise-data-aggregation/internal/config"
	"github.com/noisegrid/noise-data-aggregation/internal/hub"
	"github.com/noisegrid/noise-data-aggregation/internal/ingest"
	"github.com/noisegrid/noise-data-aggregation/internal/noise"
	"github.com/noisegrid/noise-data-aggregation/internal/scheduler"
	"github.com/noisegrid/noise-data-aggregation/internal/store"
)

// transportStatus bundles the consumer and publisher sides of the broker
// connection for the status endpoints.
type transportStatus struct {
	consumer  *ingest.Consumer
	publisher *ingest.Publisher
}

func (t transportStatus) Connected() bool { return t.consumer.Connected() }
func (t transportStatus) Degraded() bool  { return t.publisher.Degraded() }

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Lifetime of the whole pipeline; cancelled on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// In-memory store of the latest reading per device.
	memStore := store.NewMemoryStore(cfg.HistoryLimit)

	// Interpolation engine and recompute debounce.
	engine := noise.NewEngine(noise.EngineConfig{
		Power:      cfg.IDWPower,
		MinPadding: cfg.GridPadding,
		MinSensors: cfg.MinSensors,
	})
	debounce := scheduler.NewDebouncer(cfg.RecomputeInterval)

	// Fan-out to visualization clients.
	broadcast := hub.New()
	defer broadcast.Close()

	// Transport adapters. The consumer feeds the pipeline; the publisher
	// republishes grids on the processed topic.
	var service *noise.Service
	consumer := ingest.NewConsumer(cfg.BrokerURL(), cfg.TopicPrefix, func(ctx context.Context, topic string, payload []byte) error {
		return service.HandleReading(ctx, payload)
	})
	publisher := consumer.Publisher(cfg.ProcessedTopic)

	// Core pipeline: reading -> store -> debounce -> engine -> fan-out.
	service = noise.NewService(memStore, engine, debounce, broadcast, publisher)

	if err := consumer.Start(ctx); err != nil {
		log.Fatalf("failed to connect to MQTT broker: %v", err)
	}
	defer consumer.Stop()

	// Stale sensors are swept on a fixed cadence, independent of traffic.
	sweeper := scheduler.NewSweeper(memStore, cfg.EvictionInterval, cfg.MaxSensorAge)
	if err := sweeper.Start(); err != nil {
		log.Fatalf("failed to start eviction sweeper: %v", err)
	}
	defer sweeper.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "noise-data-aggregation",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":         "ok",
			"service":        "noise-data-aggregation",
			"mqtt_connected": consumer.Connected(),
			"device_count":   service.SensorCount(),
		})
	})

	// API routes and the websocket stream.
	httpapi.RegisterRoutes(app, service, transportStatus{consumer: consumer, publisher: publisher})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Port
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	log.Printf("noise-data-aggregation listening on :%s, broker %s", port, cfg.BrokerURL())

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
