package telemetry

import (
	"context"
	"time"
)

// Sample is a single reading from a series. Unit is the measurement the value
// was recorded under (e.g. "W", "kW", "kWh", "EUR/kWh").
type Sample struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
	Unit  string    `json:"unit"`
}

// Point is one bucket of a windowed series.
type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// FillMode controls how empty buckets of a windowed query are filled.
type FillMode int

const (
	// FillZero fills empty buckets with 0.
	FillZero FillMode = iota
	// FillPrevious carries the previous bucket's value forward. Leading
	// buckets with no prior value are omitted.
	FillPrevious
)

// Adapter is the narrow read-only view of the time-series telemetry store.
// All methods report absence of data by returning nil/empty results, not
// errors; errors mean the store itself could not be queried.
type Adapter interface {
	// LastValue returns the most recent reading of the series, or nil when
	// the series has no data.
	LastValue(ctx context.Context, seriesID string) (*Sample, error)

	// MeanOverWindows returns the per-window mean of the series over
	// [start, end).
	MeanOverWindows(ctx context.Context, seriesID string, start, end time.Time, window time.Duration, fill FillMode) ([]Point, error)

	// CounterOverWindows returns the per-window last reading of a monotonic
	// counter over [start, end), carrying the previous value into empty
	// windows. Zero readings are dropped since counters report spurious
	// zeroes on device restarts.
	CounterOverWindows(ctx context.Context, seriesID string, start, end time.Time, window time.Duration) ([]Point, error)

	// CounterFirstLast returns the first and last positive readings of a
	// monotonic counter in [start, end). Both are nil when the range holds
	// no data.
	CounterFirstLast(ctx context.Context, seriesID string, start, end time.Time) (*Sample, *Sample, error)
}
