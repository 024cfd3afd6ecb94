package billing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zevbilling/zevbilling/pkg/log"
	"github.com/zevbilling/zevbilling/pkg/types"
)

// MappingResult holds the usage and cost totals for one sensor mapping over a
// period, split into internally and externally sourced shares.
type MappingResult struct {
	Mapping types.SensorMapping `json:"mapping"`

	UsageKWH float64 `json:"usageKWH"`
	Cost     float64 `json:"cost"`

	UsageInternalKWH float64 `json:"usageInternalKWH"`
	UsageExternalKWH float64 `json:"usageExternalKWH"`
	CostInternal     float64 `json:"costInternal"`
	CostExternal     float64 `json:"costExternal"`
}

// CalculateMapping runs the delta resolver, classifier and pricing resolver
// for one mapping against the shared system data. systemData must have been
// fetched with the same window so that buckets align by timestamp.
func (e *Engine) CalculateMapping(ctx context.Context, mapping types.SensorMapping, start, end time.Time, window time.Duration, systemData []SystemIntervalData, rules types.PricingRules) (MappingResult, error) {
	res := MappingResult{Mapping: mapping}

	points, err := e.adapter.CounterOverWindows(ctx, mapping.UsageSensorID, start, end, window)
	if err != nil {
		return res, fmt.Errorf("usage series %s: %w", mapping.UsageSensorID, err)
	}

	index := indexSystemData(systemData)
	for _, iv := range e.resolveDeltas(ctx, points, mapping.Factor) {
		internal, price := classifyInterval(index[iv.Time.UnixNano()], rules)
		price = resolvePrice(internal, price, rules)

		cost := iv.UsageKWH * price
		res.UsageKWH += iv.UsageKWH
		res.Cost += cost
		if internal {
			res.UsageInternalKWH += iv.UsageKWH
			res.CostInternal += cost
		} else {
			res.UsageExternalKWH += iv.UsageKWH
			res.CostExternal += cost
		}
	}
	return res, nil
}

// Calculate computes results for a set of mappings in parallel. The mappings
// share the already-fetched system data, so no locking is needed between
// them. A mapping whose telemetry fails contributes zero instead of aborting
// the others. Purely organizational virtual containers are skipped. Results
// come back in the order of the input mappings.
func (e *Engine) Calculate(ctx context.Context, mappings []types.SensorMapping, start, end time.Time, window time.Duration, systemData []SystemIntervalData, rules types.PricingRules) []MappingResult {
	ordered := make([]*MappingResult, len(mappings))
	var wg sync.WaitGroup
	for i, m := range mappings {
		if m.ContainerOnly() {
			continue
		}
		wg.Add(1)
		go func(i int, m types.SensorMapping) {
			defer wg.Done()
			r, err := e.CalculateMapping(ctx, m, start, end, window, systemData, rules)
			if err != nil {
				log.Ctx(ctx).WarnContext(ctx, "mapping calculation failed, contributing zero",
					slog.String("label", m.Label), slog.Any("error", err))
				r = MappingResult{Mapping: m}
			}
			ordered[i] = &r
		}(i, m)
	}
	wg.Wait()

	results := make([]MappingResult, 0, len(mappings))
	for _, r := range ordered {
		if r != nil {
			results = append(results, *r)
		}
	}
	return results
}
