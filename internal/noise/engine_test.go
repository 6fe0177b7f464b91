package noise

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sensor(deviceID string, lat, lon, db float64) SensorReading {
	return SensorReading{
		DeviceID:  deviceID,
		Lat:       lat,
		Lon:       lon,
		DB:        db,
		Timestamp: 1700000000000,
	}
}

func defaultEngine() *Engine {
	return NewEngine(EngineConfig{})
}

func TestComputeRequiresTwoSensors(t *testing.T) {
	e := defaultEngine()

	assert.Nil(t, e.Compute(nil))
	assert.Nil(t, e.Compute([]SensorReading{}))
	assert.Nil(t, e.Compute([]SensorReading{sensor("a", 0, 0, 50)}))
}

func TestComputeGridShape(t *testing.T) {
	e := defaultEngine()

	grid := e.Compute([]SensorReading{
		sensor("a", 48.85, 2.34, 55),
		sensor("b", 48.87, 2.36, 70),
	})
	require.NotNil(t, grid)

	rows, cols := grid.GridSize[0], grid.GridSize[1]
	assert.Equal(t, 60, rows) // span well under 1 degree
	assert.Equal(t, 60, cols)
	assert.Len(t, grid.Values, rows*cols)
	assert.Equal(t, 2, grid.SensorCount)

	assert.LessOrEqual(t, grid.MinDB, grid.MaxDB)
	assert.GreaterOrEqual(t, grid.MinDB, 55.0)
	assert.LessOrEqual(t, grid.MaxDB, 70.0)
}

func TestComputeBoundsPadding(t *testing.T) {
	e := defaultEngine()

	grid := e.Compute([]SensorReading{
		sensor("a", 10, 20, 50),
		sensor("b", 11, 21, 60),
	})
	require.NotNil(t, grid)

	// 2% of the 1-degree span beats the 0.001 floor.
	assert.InDelta(t, 9.98, grid.Bounds[0][0], 1e-9)
	assert.InDelta(t, 19.98, grid.Bounds[0][1], 1e-9)
	assert.InDelta(t, 11.02, grid.Bounds[1][0], 1e-9)
	assert.InDelta(t, 21.02, grid.Bounds[1][1], 1e-9)
}

func TestComputeColocatedSensorsGetMinimumPadding(t *testing.T) {
	e := defaultEngine()

	grid := e.Compute([]SensorReading{
		sensor("a", 50, 8, 40),
		sensor("b", 50, 8, 60),
	})
	require.NotNil(t, grid)

	// Zero span still yields a non-degenerate box.
	assert.InDelta(t, 49.999, grid.Bounds[0][0], 1e-9)
	assert.InDelta(t, 50.001, grid.Bounds[1][0], 1e-9)
	assert.InDelta(t, 7.999, grid.Bounds[0][1], 1e-9)
	assert.InDelta(t, 8.001, grid.Bounds[1][1], 1e-9)
}

func TestComputeAdaptiveResolution(t *testing.T) {
	e := defaultEngine()

	cases := []struct {
		name string
		span float64
		want int
	}{
		{"local area", 0.5, 60},
		{"regional area", 3, 40},
		{"wide area", 8, 30},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			grid := e.Compute([]SensorReading{
				sensor("a", 0, 0, 50),
				sensor("b", tc.span, tc.span, 60),
			})
			require.NotNil(t, grid)
			assert.Equal(t, tc.want, grid.GridSize[0])
			assert.Equal(t, tc.want, grid.GridSize[1])
		})
	}
}

func TestComputeIsOrderIndependent(t *testing.T) {
	e := defaultEngine()

	sensors := []SensorReading{
		sensor("a", 48.85, 2.34, 55),
		sensor("b", 48.87, 2.36, 70),
		sensor("c", 48.86, 2.30, 63),
	}
	reversed := []SensorReading{sensors[2], sensors[1], sensors[0]}

	first := e.Compute(sensors)
	second := e.Compute(reversed)
	require.NotNil(t, first)
	require.NotNil(t, second)

	assert.Equal(t, first.Bounds, second.Bounds)
	assert.Equal(t, first.GridSize, second.GridSize)
	assert.Equal(t, first.Values, second.Values)
	assert.Equal(t, first.MinDB, second.MinDB)
	assert.Equal(t, first.MaxDB, second.MaxDB)
}

func TestValueAtMidpointIsEqualWeightAverage(t *testing.T) {
	e := defaultEngine()

	sensors := []SensorReading{
		sensor("a", 0, 0, 40),
		sensor("b", 0, 1, 80),
	}

	// Equidistant from both sensors on the equator.
	assert.InDelta(t, 60.0, e.valueAt(0, 0.5, sensors), 1e-9)
}

func TestValueAtExactSensorLocation(t *testing.T) {
	e := defaultEngine()

	sensors := []SensorReading{
		sensor("a", 48.85, 2.34, 41.5),
		sensor("b", 48.87, 2.36, 78.25),
	}

	// A cell that coincides with a sensor takes its value exactly, not a
	// weighted blend.
	assert.Equal(t, 41.5, e.valueAt(48.85, 2.34, sensors))
	assert.Equal(t, 78.25, e.valueAt(48.87, 2.36, sensors))
}

func TestValueAtUsesLatitudeScaledLongitude(t *testing.T) {
	e := defaultEngine()

	// Sensor b is further in raw longitude but at high latitude the scaled
	// distance shrinks, pulling the estimate toward b.
	sensors := []SensorReading{
		sensor("a", 60.1, 0, 40),
		sensor("b", 60, 0.15, 80),
	}

	v := e.valueAt(60, 0, sensors)
	assert.Greater(t, v, 60.0)
}
