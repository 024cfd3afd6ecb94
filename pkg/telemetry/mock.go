package telemetry

import (
	"context"
	"time"
)

// FirstLast holds the endpoints of a counter range for the mock adapter.
type FirstLast struct {
	First *Sample
	Last  *Sample
}

// Mock is an in-memory Adapter for tests. Series without configured data
// return "no data" results, matching the real adapter's behavior for
// unconfigured or silent sensors.
type Mock struct {
	LastValues map[string]Sample
	Means      map[string][]Point
	Counters   map[string][]Point
	FirstLasts map[string]FirstLast

	// Errs makes queries against specific series fail.
	Errs map[string]error
}

// NewMock returns an empty mock adapter.
func NewMock() *Mock {
	return &Mock{
		LastValues: map[string]Sample{},
		Means:      map[string][]Point{},
		Counters:   map[string][]Point{},
		FirstLasts: map[string]FirstLast{},
		Errs:       map[string]error{},
	}
}

func (m *Mock) LastValue(ctx context.Context, seriesID string) (*Sample, error) {
	if err := m.Errs[seriesID]; err != nil {
		return nil, err
	}
	if s, ok := m.LastValues[seriesID]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *Mock) MeanOverWindows(ctx context.Context, seriesID string, start, end time.Time, window time.Duration, fill FillMode) ([]Point, error) {
	if err := m.Errs[seriesID]; err != nil {
		return nil, err
	}
	return append([]Point(nil), m.Means[seriesID]...), nil
}

func (m *Mock) CounterOverWindows(ctx context.Context, seriesID string, start, end time.Time, window time.Duration) ([]Point, error) {
	if err := m.Errs[seriesID]; err != nil {
		return nil, err
	}
	return append([]Point(nil), m.Counters[seriesID]...), nil
}

func (m *Mock) CounterFirstLast(ctx context.Context, seriesID string, start, end time.Time) (*Sample, *Sample, error) {
	if err := m.Errs[seriesID]; err != nil {
		return nil, nil, err
	}
	fl := m.FirstLasts[seriesID]
	return fl.First, fl.Last, nil
}
