// Package billing implements the energy attribution and cost calculation
// engine for a shared installation that combines grid power, on-site PV and a
// battery. It reconstructs per-interval consumption from monotonic counters,
// classifies each interval as internally or externally sourced, prices it and
// aggregates the results into bills, profit reports and live estimates.
package billing

import (
	"errors"
	"sync/atomic"

	"github.com/zevbilling/zevbilling/pkg/telemetry"
)

// ErrNoPriceSeries is returned when a calculation needs a grid price series
// but none is configured. Callers surface this as "system not configured".
var ErrNoPriceSeries = errors.New("no price series configured")

// Engine runs billing calculations against a telemetry store. It holds no
// state between invocations; every calculation recomputes from telemetry.
type Engine struct {
	adapter telemetry.Adapter

	outlierSpikes atomic.Int64
}

// New returns an engine reading from the given telemetry adapter.
func New(adapter telemetry.Adapter) *Engine {
	return &Engine{adapter: adapter}
}

// OutlierSpikes returns the number of counter deltas discarded by the sanity
// ceiling since the engine was created.
func (e *Engine) OutlierSpikes() int64 {
	return e.outlierSpikes.Load()
}
