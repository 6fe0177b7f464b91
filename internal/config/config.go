package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds every runtime setting the service needs.
type AppConfig struct {
	// MQTT broker the ingest adapter connects to.
	BrokerHost string
	BrokerPort int

	// Topic layout. Sensors publish under "<prefix>/+" and "<prefix>/esp32/+";
	// processed grids are republished on ProcessedTopic.
	TopicPrefix    string
	ProcessedTopic string

	// RecomputeInterval is the debounce window for grid recomputation.
	RecomputeInterval time.Duration

	// MaxSensorAge is how long a silent device stays in the live snapshot.
	MaxSensorAge time.Duration

	// EvictionInterval is the cadence of the stale-sensor sweep, independent
	// of ingestion traffic.
	EvictionInterval time.Duration

	// Interpolation tuning.
	IDWPower    float64
	GridPadding float64 // degrees
	MinSensors  int

	// HistoryLimit caps retained readings per device.
	HistoryLimit int

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.BrokerHost = getenvDefault("MQTT_BROKER_HOST", "localhost")
	cfg.BrokerPort = getenvInt("MQTT_BROKER_PORT", 1883)
	cfg.TopicPrefix = getenvDefault("SENSOR_TOPIC_PREFIX", "noise")
	cfg.ProcessedTopic = getenvDefault("PROCESSED_TOPIC", "noise/processed")

	interval, err := time.ParseDuration(getenvDefault("UPDATE_INTERVAL", "2s"))
	if err != nil {
		return nil, fmt.Errorf("invalid UPDATE_INTERVAL: %w", err)
	}
	cfg.RecomputeInterval = interval

	maxAge, err := time.ParseDuration(getenvDefault("MAX_SENSOR_AGE", "300s"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_SENSOR_AGE: %w", err)
	}
	cfg.MaxSensorAge = maxAge

	eviction, err := time.ParseDuration(getenvDefault("EVICTION_INTERVAL", "60s"))
	if err != nil {
		return nil, fmt.Errorf("invalid EVICTION_INTERVAL: %w", err)
	}
	cfg.EvictionInterval = eviction

	cfg.IDWPower = getenvFloat("IDW_POWER", 2.0)
	cfg.GridPadding = getenvFloat("GRID_PADDING", 0.001)
	cfg.MinSensors = getenvInt("MIN_SENSORS", 2)
	cfg.HistoryLimit = getenvInt("HISTORY_LIMIT", 100)
	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

// BrokerURL returns the paho connection string.
func (c *AppConfig) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.BrokerHost, c.BrokerPort)
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}
