package store

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noisegrid/noise-data-aggregation/internal/noise"
)

var (
	// ErrNotFound is returned when no data is available for a given device.
	ErrNotFound = errors.New("no sensor data for device")

	// ErrValidation wraps rejections of malformed inbound readings. Callers
	// log these and keep ingesting; they are never fatal.
	ErrValidation = errors.New("invalid sensor reading")
)

var validate = validator.New()

// deviceEntry holds the live reading and a bounded recent history for one device.
type deviceEntry struct {
	latest  noise.SensorReading
	history []noise.SensorReading
}

// MemoryStore is a concurrency-safe in-memory store of the latest reading
// per device. Insert, Snapshot and EvictExpired may be called concurrently;
// snapshots are deep copies and never observe later mutation.
type MemoryStore struct {
	mu sync.RWMutex

	// key: device id
	data map[string]*deviceEntry

	// max number of historical readings retained per device
	historyLimit int

	now func() time.Time
}

// NewMemoryStore creates a MemoryStore. If historyLimit is <= 0 no
// per-device history is kept.
func NewMemoryStore(historyLimit int) *MemoryStore {
	return &MemoryStore{
		data:         make(map[string]*deviceEntry),
		historyLimit: historyLimit,
		now:          time.Now,
	}
}

// Insert validates an inbound reading, stamps it with the ingestion time and
// stores it, replacing any previous entry for the same device. The stored
// reading is returned so callers can forward it downstream.
func (s *MemoryStore) Insert(in noise.InboundReading) (noise.SensorReading, error) {
	if err := validate.Struct(in); err != nil {
		return noise.SensorReading{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if *in.DeviceID == "" {
		return noise.SensorReading{}, fmt.Errorf("%w: empty device_id", ErrValidation)
	}
	for name, v := range map[string]float64{"lat": *in.Lat, "lon": *in.Lon, "db": *in.DB} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return noise.SensorReading{}, fmt.Errorf("%w: non-finite %s", ErrValidation, name)
		}
	}

	reading := noise.SensorReading{
		DeviceID:   *in.DeviceID,
		Lat:        *in.Lat,
		Lon:        *in.Lon,
		DB:         *in.DB,
		Timestamp:  *in.Timestamp,
		ReceivedAt: s.now().UnixMilli(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.data[reading.DeviceID]
	if !ok {
		entry = &deviceEntry{}
		s.data[reading.DeviceID] = entry
	}
	entry.latest = reading

	if s.historyLimit > 0 {
		entry.history = append(entry.history, reading)
		if len(entry.history) > s.historyLimit {
			over := len(entry.history) - s.historyLimit
			entry.history = entry.history[over:]
		}
	}

	return reading, nil
}

// Snapshot returns a copy of all live readings, sorted by device id.
func (s *MemoryStore) Snapshot() []noise.SensorReading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	readings := make([]noise.SensorReading, 0, len(s.data))
	for _, entry := range s.data {
		readings = append(readings, entry.latest)
	}
	sort.Slice(readings, func(i, j int) bool {
		return readings[i].DeviceID < readings[j].DeviceID
	})
	return readings
}

// Get returns the latest reading for a device.
func (s *MemoryStore) Get(deviceID string) (noise.SensorReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.data[deviceID]
	if !ok {
		return noise.SensorReading{}, ErrNotFound
	}
	return entry.latest, nil
}

// History returns up to limit recent readings for a device, oldest first.
// limit <= 0 returns the full retained history.
func (s *MemoryStore) History(deviceID string, limit int) ([]noise.SensorReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.data[deviceID]
	if !ok {
		return nil, ErrNotFound
	}

	history := entry.history
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]noise.SensorReading, len(history))
	copy(out, history)
	return out, nil
}

// EvictExpired removes every device whose last reading is older than maxAge
// and returns the number of devices removed.
func (s *MemoryStore) EvictExpired(maxAge time.Duration) int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for deviceID, entry := range s.data {
		if entry.latest.Age(now) > maxAge {
			delete(s.data, deviceID)
			removed++
		}
	}
	return removed
}

// Count returns the number of live devices.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
