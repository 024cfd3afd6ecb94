package billing

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zevbilling/zevbilling/pkg/telemetry"
	"github.com/zevbilling/zevbilling/pkg/types"
)

const (
	// liveLookback is the counter-slope window used when a mapping has no
	// dedicated power sensor.
	liveLookback = 15 * time.Minute

	// liveSourceThresholdKW mirrors the classifier's 50 W source threshold
	// for instantaneous kW readings.
	liveSourceThresholdKW = 0.05
)

// LiveEstimate is a near-real-time power and cost estimate for one mapping or
// one folded virtual group. IsLive is true when the value came from a
// dedicated power sensor rather than a short-window counter slope.
type LiveEstimate struct {
	Label          string  `json:"label"`
	UsageKW        float64 `json:"usageKW"`
	CostPerHour    float64 `json:"costPerHour"`
	CurrentPrice   float64 `json:"currentPrice"`
	IsLive         bool    `json:"isLive"`
	IsVirtual      bool    `json:"isVirtual"`
	ComponentCount int     `json:"componentCount,omitempty"`
}

// MappingEstimate pairs a live estimate with the mapping it was computed for,
// so group folding can happen later.
type MappingEstimate struct {
	Mapping types.SensorMapping
	LiveEstimate
}

// sampleKW normalizes an instantaneous power sample to kW using its unit
// measurement. Values recorded under a watt measurement are divided by 1000;
// anything else passes through.
func sampleKW(s *telemetry.Sample) float64 {
	if s == nil {
		return 0
	}
	switch s.Unit {
	case "W", "power", "Leistung":
		return s.Value / 1000
	}
	return s.Value
}

// LiveEstimate computes a point-in-time estimate for one mapping. A
// configured power sensor is preferred and marks the result live; otherwise
// the usage counter's slope over the last 15 minutes is converted to an
// hourly rate. The price applies the same internal/external decision as the
// historical classifier, against instantaneous last values.
func (e *Engine) LiveEstimate(ctx context.Context, mapping types.SensorMapping, settings types.SystemSettings, rules types.PricingRules) (MappingEstimate, error) {
	est := MappingEstimate{
		Mapping:      mapping,
		LiveEstimate: LiveEstimate{Label: mapping.Label, IsVirtual: mapping.IsVirtual},
	}

	var direct *float64
	var slope float64
	var price float64

	g, gctx := errgroup.WithContext(ctx)
	if mapping.PowerSensorID != "" {
		g.Go(func() error {
			s, err := e.adapter.LastValue(gctx, mapping.PowerSensorID)
			if err != nil {
				return fmt.Errorf("power series %s: %w", mapping.PowerSensorID, err)
			}
			if s != nil {
				v := sampleKW(s) * mapping.Factor
				direct = &v
			}
			return nil
		})
	}
	g.Go(func() error {
		now := time.Now()
		first, last, err := e.adapter.CounterFirstLast(gctx, mapping.UsageSensorID, now.Add(-liveLookback), now)
		if err != nil {
			return fmt.Errorf("usage series %s: %w", mapping.UsageSensorID, err)
		}
		if first == nil || last == nil {
			return nil
		}
		delta := last.Value - first.Value
		if delta < 0 {
			// counter reset inside the window
			delta = 0
		}
		slope = delta / liveLookback.Hours() * mapping.Factor
		return nil
	})
	g.Go(func() error {
		var err error
		price, err = e.livePrice(gctx, mapping.PriceSensorID, settings, rules)
		return err
	})
	if err := g.Wait(); err != nil {
		return est, err
	}

	est.UsageKW = slope
	if direct != nil {
		est.UsageKW = *direct
		est.IsLive = true
	}
	est.CurrentPrice = price
	est.CostPerHour = est.UsageKW * price
	return est, nil
}

// livePrice resolves the price for a live estimate: the dynamic grid price
// unless the instantaneous system state classifies internal. The grid buffer
// is compared in kW terms against last-value readings.
func (e *Engine) livePrice(ctx context.Context, priceSeriesID string, settings types.SystemSettings, rules types.PricingRules) (float64, error) {
	var gridPrice float64
	if s, err := e.adapter.LastValue(ctx, priceSeriesID); err != nil {
		return 0, fmt.Errorf("price series %s: %w", priceSeriesID, err)
	} else if s != nil {
		gridPrice = s.Value
	}

	internal, err := e.liveInternal(ctx, settings, rules)
	if err != nil {
		return 0, err
	}

	price := gridPrice
	if internal {
		price = rules.InternalPrice
	}
	return resolvePrice(internal, price, rules), nil
}

func (e *Engine) liveInternal(ctx context.Context, settings types.SystemSettings, rules types.PricingRules) (bool, error) {
	gridSeries := gridImportSeries(settings)
	if gridSeries == "" {
		return false, nil
	}

	gs, err := e.adapter.LastValue(ctx, gridSeries)
	if err != nil {
		return false, fmt.Errorf("grid series %s: %w", gridSeries, err)
	}
	if gs == nil {
		// no grid data means no basis to claim internal sourcing
		return false, nil
	}

	norm := newSignNormalizer(settings)
	gridKW := norm.gridImport(sampleKW(gs))
	if gridKW >= rules.GridBufferWatts/1000 {
		return false, nil
	}

	if settings.PVPowerSensorID != "" {
		pv, err := e.adapter.LastValue(ctx, settings.PVPowerSensorID)
		if err != nil {
			return false, fmt.Errorf("pv series %s: %w", settings.PVPowerSensorID, err)
		}
		if sampleKW(pv) > liveSourceThresholdKW {
			return true, nil
		}
	}
	if rules.AllowBatteryPricing && settings.BatteryPowerSensorID != "" {
		batt, err := e.adapter.LastValue(ctx, settings.BatteryPowerSensorID)
		if err != nil {
			return false, fmt.Errorf("battery series %s: %w", settings.BatteryPowerSensorID, err)
		}
		if norm.batteryDischarge(sampleKW(batt)) > liveSourceThresholdKW {
			return true, nil
		}
	}
	return false, nil
}

// FoldEstimates combines per-mapping estimates the same way bill aggregation
// does: virtual group members collapse into one line with summed usage and
// cost. A group is live if any member is live; its price is the first
// member's.
func FoldEstimates(ests []MappingEstimate) []LiveEstimate {
	var out []LiveEstimate
	groupIdx := map[string]int{}

	for _, est := range ests {
		m := est.Mapping
		if m.VirtualGroupID != "" {
			idx, ok := groupIdx[m.VirtualGroupID]
			if !ok {
				out = append(out, LiveEstimate{
					Label:        groupLabel(m.Label),
					CurrentPrice: est.CurrentPrice,
					IsVirtual:    true,
				})
				idx = len(out) - 1
				groupIdx[m.VirtualGroupID] = idx
			}
			g := &out[idx]
			g.UsageKW += est.UsageKW
			g.CostPerHour += est.CostPerHour
			g.ComponentCount++
			if est.IsLive {
				g.IsLive = true
			}
			continue
		}
		out = append(out, est.LiveEstimate)
	}
	return out
}
