package noise

import (
	"time"
)

// SensorReading is the latest known state of one noise sensor.
// Timestamp is producer-supplied; ReceivedAt is stamped by the store on
// ingestion. Both are milliseconds since epoch, matching the ESP32 wire format.
type SensorReading struct {
	DeviceID   string  `json:"device_id"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	DB         float64 `json:"db"`
	Timestamp  int64   `json:"timestamp"`
	ReceivedAt int64   `json:"received_at"`
}

// Age returns how long ago the reading was received, relative to now.
func (r SensorReading) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(r.ReceivedAt))
}

// InboundReading is the decoded transport payload before validation.
// Fields are pointers so a missing key is distinguishable from a zero value.
type InboundReading struct {
	DeviceID  *string  `json:"device_id" validate:"required"`
	Lat       *float64 `json:"lat" validate:"required"`
	Lon       *float64 `json:"lon" validate:"required"`
	DB        *float64 `json:"db" validate:"required"`
	Timestamp *int64   `json:"timestamp" validate:"required"`
}

// Grid is one interpolated noise field. It is derived entirely from the
// sensor snapshot that produced it and is never mutated after Compute returns.
type Grid struct {
	// Bounds is [[latMin, lonMin], [latMax, lonMax]] of the padded box.
	Bounds [2][2]float64 `json:"bounds"`
	// GridSize is [rows, cols]. Rows run north to south, columns west to east.
	GridSize [2]int `json:"grid_size"`
	// Values is the flattened row-major grid of estimated dB levels.
	Values      []float64 `json:"values"`
	MinDB       float64   `json:"min_db"`
	MaxDB       float64   `json:"max_db"`
	SensorCount int       `json:"sensor_count"`
	Timestamp   int64     `json:"timestamp"`
}

// Envelope message types pushed to subscribers.
const (
	TypeSensorData       = "sensor_data"       // full snapshot, payload is []SensorReading
	TypeSensorUpdate     = "sensor_update"     // single reading, payload is SensorReading
	TypeInterpolatedGrid = "interpolated_grid" // payload is Grid
)

// Envelope is the outbound message shape consumed by visualization clients.
type Envelope struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp int64       `json:"timestamp"`
}

// NewEnvelope stamps an envelope with the current wall clock.
func NewEnvelope(msgType string, payload interface{}) Envelope {
	return Envelope{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}
