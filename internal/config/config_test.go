package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.BrokerHost)
	assert.Equal(t, 1883, cfg.BrokerPort)
	assert.Equal(t, "noise", cfg.TopicPrefix)
	assert.Equal(t, "noise/processed", cfg.ProcessedTopic)
	assert.Equal(t, 2*time.Second, cfg.RecomputeInterval)
	assert.Equal(t, 300*time.Second, cfg.MaxSensorAge)
	assert.Equal(t, 60*time.Second, cfg.EvictionInterval)
	assert.Equal(t, 2.0, cfg.IDWPower)
	assert.Equal(t, 0.001, cfg.GridPadding)
	assert.Equal(t, 2, cfg.MinSensors)
	assert.Equal(t, 100, cfg.HistoryLimit)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MQTT_BROKER_HOST", "broker.local")
	t.Setenv("MQTT_BROKER_PORT", "1884")
	t.Setenv("UPDATE_INTERVAL", "5s")
	t.Setenv("IDW_POWER", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "broker.local", cfg.BrokerHost)
	assert.Equal(t, 1884, cfg.BrokerPort)
	assert.Equal(t, 5*time.Second, cfg.RecomputeInterval)
	assert.Equal(t, 3.0, cfg.IDWPower)
	assert.Equal(t, "tcp://broker.local:1884", cfg.BrokerURL())
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("MAX_SENSOR_AGE", "five minutes")

	_, err := Load()
	assert.Error(t, err)
}
