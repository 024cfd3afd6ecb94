package telemetry

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFluxWindow(t *testing.T) {
	assert.Equal(t, "3600s", fluxWindow(time.Hour))
	assert.Equal(t, "900s", fluxWindow(15*time.Minute))
	assert.Equal(t, "86400s", fluxWindow(24*time.Hour))
}

func TestSeriesFilter(t *testing.T) {
	ia := &InfluxAdapter{bucket: "homeassistant"}
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	t.Run("Basic", func(t *testing.T) {
		flux := ia.seriesFilter("sensor.apartment_1_energy", start, end)
		assert.Equal(t,
			`from(bucket: "homeassistant") |> range(start: 2026-07-01T00:00:00Z, stop: 2026-08-01T00:00:00Z) |> filter(fn: (r) => r["entity_id"] == "sensor.apartment_1_energy" and r["_field"] == "value")`,
			flux)
	})

	t.Run("ConvertsToUTC", func(t *testing.T) {
		zurich := time.FixedZone("CEST", 2*3600)
		flux := ia.seriesFilter("sensor.pv_power", start.In(zurich), end.In(zurich))
		assert.Contains(t, flux, "start: 2026-07-01T00:00:00Z")
		assert.Contains(t, flux, "stop: 2026-08-01T00:00:00Z")
	})

	t.Run("EscapesQuotesAndBackslashes", func(t *testing.T) {
		flux := ia.seriesFilter(`sensor."odd\name`, start, end)
		assert.Contains(t, flux, `r["entity_id"] == "sensor.\"odd\\name"`)

		escaped := &InfluxAdapter{bucket: `ha"prod`}
		assert.Contains(t, escaped.seriesFilter("sensor.x", start, end), `from(bucket: "ha\"prod")`)
	})

	t.Run("NoMeasurementFilter", func(t *testing.T) {
		// units vary per sensor (kWh, W, ...) and each unit is its own
		// measurement, so the filter must only pin entity_id and _field
		flux := ia.seriesFilter("sensor.grid_import", start, end)
		assert.NotContains(t, flux, "_measurement")
	})
}

func TestCounterFilter(t *testing.T) {
	ia := &InfluxAdapter{bucket: "homeassistant"}
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC)

	flux := ia.counterFilter("sensor.apartment_1_energy", start, end)
	assert.Contains(t, flux, `r["_value"] > 0.0`,
		"counter queries must drop the zero readings meters emit on restart")
	assert.Contains(t, flux, `r["entity_id"] == "sensor.apartment_1_energy"`)
	assert.Contains(t, flux, `r["_field"] == "value"`)
}

func TestMeanFlux(t *testing.T) {
	ia := &InfluxAdapter{bucket: "homeassistant"}
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC)

	t.Run("FillZero", func(t *testing.T) {
		flux := ia.meanFlux("sensor.pv_power", start, end, time.Hour, FillZero)
		assert.Contains(t, flux, `aggregateWindow(every: 3600s, fn: mean, createEmpty: true, timeSrc: "_start")`)
		assert.Contains(t, flux, `fill(value: 0.0)`)
		assert.NotContains(t, flux, "usePrevious")
	})

	t.Run("FillPrevious", func(t *testing.T) {
		flux := ia.meanFlux("sensor.grid_price", start, end, time.Hour, FillPrevious)
		assert.Contains(t, flux, `fill(usePrevious: true)`)
		assert.NotContains(t, flux, "fill(value:")
	})

	t.Run("WindowBucketsAlignToStart", func(t *testing.T) {
		// points must be stamped with the window start so they join up with
		// counter deltas over the same windows
		flux := ia.meanFlux("sensor.pv_power", start, end, 15*time.Minute, FillZero)
		assert.Contains(t, flux, "every: 900s")
		assert.Contains(t, flux, `timeSrc: "_start"`)
	})
}

func TestCounterFlux(t *testing.T) {
	ia := &InfluxAdapter{bucket: "homeassistant"}
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC)

	flux := ia.counterFlux("sensor.apartment_1_energy", start, end, time.Hour)
	assert.Contains(t, flux, `r["_value"] > 0.0`)
	assert.Contains(t, flux, `aggregateWindow(every: 3600s, fn: last, createEmpty: true, timeSrc: "_start")`)
	assert.Contains(t, flux, `fill(usePrevious: true)`,
		"gaps must carry the previous counter reading forward so deltas stay zero")
	assert.True(t, strings.HasPrefix(flux, `from(bucket: "homeassistant")`))
}
