package noise

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/noisegrid/noise-data-aggregation/internal/hub"
	"github.com/noisegrid/noise-data-aggregation/internal/scheduler"
)

// Store is the contract the in-memory sensor store (and any future
// persistent store) must satisfy.
type Store interface {
	Insert(in InboundReading) (SensorReading, error)
	Snapshot() []SensorReading
	Get(deviceID string) (SensorReading, error)
	History(deviceID string, limit int) ([]SensorReading, error)
	Count() int
}

// Publisher forwards processed grids to the external transport. Failures are
// the transport's problem, not the pipeline's; the service only logs them.
type Publisher interface {
	Publish(payload []byte) error
}

// Service wires the ingestion pipeline together: reading -> store ->
// debounce -> engine -> fan-out. Everything downstream of the store's
// snapshot operates on private copies.
type Service struct {
	store     Store
	engine    *Engine
	debounce  *scheduler.Debouncer
	hub       *hub.Hub
	publisher Publisher

	mu       sync.RWMutex
	lastGrid *Grid
}

// NewService creates a Service. publisher may be nil when no outbound
// transport is configured.
func NewService(store Store, engine *Engine, debounce *scheduler.Debouncer, h *hub.Hub, publisher Publisher) *Service {
	return &Service{
		store:     store,
		engine:    engine,
		debounce:  debounce,
		hub:       h,
		publisher: publisher,
	}
}

// HandleReading ingests one decoded transport payload. Malformed payloads
// are rejected with an error the caller logs; ingestion continues either way.
// An accepted reading is fanned out immediately and may trigger a recompute
// if the debounce interval has elapsed.
func (s *Service) HandleReading(ctx context.Context, payload []byte) error {
	var in InboundReading
	if err := json.Unmarshal(payload, &in); err != nil {
		return fmt.Errorf("decode reading: %w", err)
	}

	reading, err := s.store.Insert(in)
	if err != nil {
		return err
	}

	if msg, err := json.Marshal(NewEnvelope(TypeSensorUpdate, reading)); err == nil {
		s.hub.Publish(msg)
	}

	if s.debounce.Allow() {
		s.Recompute(ctx)
	}
	return nil
}

// Recompute interpolates the current snapshot and distributes the result.
// It returns the new grid, or nil when there are not enough live sensors.
// The computation always completes against the snapshot it started with; the
// result is simply not published if shutdown has begun.
func (s *Service) Recompute(ctx context.Context) *Grid {
	snapshot := s.store.Snapshot()

	grid := s.engine.Compute(snapshot)
	if grid == nil {
		log.Printf("service: not enough sensors for interpolation (%d live)", len(snapshot))
		return nil
	}

	if ctx.Err() != nil {
		return grid
	}

	s.mu.Lock()
	s.lastGrid = grid
	s.mu.Unlock()

	msg, err := json.Marshal(NewEnvelope(TypeInterpolatedGrid, grid))
	if err != nil {
		log.Printf("service: marshal grid: %v", err)
		return grid
	}

	s.hub.Publish(msg)

	if s.publisher != nil {
		if err := s.publisher.Publish(msg); err != nil {
			log.Printf("service: forward grid to transport: %v", err)
		}
	}
	return grid
}

// Subscribe registers a new output sink. The subscriber receives the full
// current sensor snapshot (and the latest grid, when one exists) before any
// incremental message.
func (s *Service) Subscribe() (*hub.Subscriber, error) {
	initial := make([][]byte, 0, 2)

	if msg, err := json.Marshal(NewEnvelope(TypeSensorData, s.store.Snapshot())); err == nil {
		initial = append(initial, msg)
	}
	if grid := s.LatestGrid(); grid != nil {
		if msg, err := json.Marshal(NewEnvelope(TypeInterpolatedGrid, grid)); err == nil {
			initial = append(initial, msg)
		}
	}

	return s.hub.Register(initial...)
}

// Unsubscribe removes a subscriber registered via Subscribe.
func (s *Service) Unsubscribe(id string) {
	s.hub.Unregister(id)
}

// Snapshot returns the current live readings.
func (s *Service) Snapshot() []SensorReading {
	return s.store.Snapshot()
}

// Reading returns the latest reading for one device.
func (s *Service) Reading(deviceID string) (SensorReading, error) {
	return s.store.Get(deviceID)
}

// History returns recent readings for one device, oldest first.
func (s *Service) History(deviceID string, limit int) ([]SensorReading, error) {
	return s.store.History(deviceID, limit)
}

// SensorCount returns the number of live devices.
func (s *Service) SensorCount() int {
	return s.store.Count()
}

// LatestGrid returns the most recently computed grid, or nil before the
// first successful recompute.
func (s *Service) LatestGrid() *Grid {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastGrid
}
