package noise

import (
	"math"
	"sort"
	"time"
)

// epsilon keeps IDW weights finite for cells that sit very close to,
// but not exactly on, a sensor.
const epsilon = 1e-10

// EngineConfig tunes the interpolation. Zero values fall back to the
// defaults used by the deployed sensor network.
type EngineConfig struct {
	// Power is the IDW exponent applied to distance.
	Power float64
	// MinPadding is the minimum bounding-box margin in degrees, so the box
	// stays non-degenerate even when all sensors are colocated.
	MinPadding float64
	// MinSensors is the number of readings required to interpolate.
	MinSensors int
}

// Engine derives interpolated noise grids from sensor snapshots using
// inverse distance weighting. It holds no state between computations.
type Engine struct {
	power      float64
	minPadding float64
	minSensors int
	now        func() time.Time
}

// NewEngine creates an Engine from config.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Power <= 0 {
		cfg.Power = 2.0
	}
	if cfg.MinPadding <= 0 {
		cfg.MinPadding = 0.001
	}
	if cfg.MinSensors < 2 {
		cfg.MinSensors = 2
	}
	return &Engine{
		power:      cfg.Power,
		minPadding: cfg.MinPadding,
		minSensors: cfg.MinSensors,
		now:        time.Now,
	}
}

// Compute interpolates a rectangular grid over the given readings.
// It returns nil when there are not enough readings to interpolate;
// callers must treat that as "insufficient data", not an error.
func (e *Engine) Compute(readings []SensorReading) *Grid {
	if len(readings) < e.minSensors {
		return nil
	}

	// Fix the accumulation order so the output is invariant under
	// permutation of the input snapshot.
	sensors := make([]SensorReading, len(readings))
	copy(sensors, readings)
	sort.Slice(sensors, func(i, j int) bool {
		return sensors[i].DeviceID < sensors[j].DeviceID
	})

	minLat, maxLat := sensors[0].Lat, sensors[0].Lat
	minLon, maxLon := sensors[0].Lon, sensors[0].Lon
	for _, s := range sensors[1:] {
		minLat = math.Min(minLat, s.Lat)
		maxLat = math.Max(maxLat, s.Lat)
		minLon = math.Min(minLon, s.Lon)
		maxLon = math.Max(maxLon, s.Lon)
	}

	// Pad by 2% of the larger span, with a floor so colocated sensors
	// still produce a usable box.
	maxSpan := math.Max(maxLat-minLat, maxLon-minLon)
	padding := math.Max(maxSpan*0.02, e.minPadding)
	minLat -= padding
	maxLat += padding
	minLon -= padding
	maxLon += padding

	res := resolutionFor(math.Max(maxLat-minLat, maxLon-minLon))

	latStep := (maxLat - minLat) / float64(res-1)
	lonStep := (maxLon - minLon) / float64(res-1)

	values := make([]float64, 0, res*res)
	minDB := math.Inf(1)
	maxDB := math.Inf(-1)

	for i := 0; i < res; i++ {
		lat := maxLat - float64(i)*latStep // north to south
		for j := 0; j < res; j++ {
			lon := minLon + float64(j)*lonStep // west to east
			v := e.valueAt(lat, lon, sensors)
			values = append(values, v)
			minDB = math.Min(minDB, v)
			maxDB = math.Max(maxDB, v)
		}
	}

	return &Grid{
		Bounds:      [2][2]float64{{minLat, minLon}, {maxLat, maxLon}},
		GridSize:    [2]int{res, res},
		Values:      values,
		MinDB:       minDB,
		MaxDB:       maxDB,
		SensorCount: len(sensors),
		Timestamp:   e.now().UnixMilli(),
	}
}

// resolutionFor picks the grid side length from the padded span in degrees.
// Coarser grids over large areas keep the per-cycle cost bounded.
func resolutionFor(span float64) int {
	switch {
	case span < 1:
		return 60
	case span < 5:
		return 40
	default:
		return 30
	}
}

// valueAt estimates the noise level at one grid cell center. Longitude
// deltas are scaled by cos(lat) to approximate equirectangular distortion
// at that latitude. A cell that coincides exactly with a sensor takes that
// sensor's value directly.
func (e *Engine) valueAt(lat, lon float64, sensors []SensorReading) float64 {
	cosLat := math.Cos(lat * math.Pi / 180)

	var weightedSum, weightSum float64
	for _, s := range sensors {
		dLat := lat - s.Lat
		dLon := (lon - s.Lon) * cosLat
		distSq := dLat*dLat + dLon*dLon

		if distSq == 0 {
			return s.DB
		}

		var w float64
		if e.power == 2.0 {
			w = 1 / (distSq + epsilon)
		} else {
			w = 1 / (math.Pow(distSq, e.power/2) + epsilon)
		}
		weightedSum += s.DB * w
		weightSum += w
	}

	return weightedSum / weightSum
}
