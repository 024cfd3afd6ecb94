package billing

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zevbilling/zevbilling/pkg/telemetry"
	"github.com/zevbilling/zevbilling/pkg/types"
)

// HistoryPoint is one bucket of a mapping's usage/price history, with the
// mapping's factor already applied to the usage.
type HistoryPoint struct {
	Time     time.Time `json:"time"`
	UsageKWH float64   `json:"usageKWH"`
	Price    float64   `json:"price"`
}

// History returns the bucketed usage and mean price for one mapping, for
// charts and monthly rollups. It prices each bucket from the mapping's own
// price series with the fallback applied to gaps; it does not attribute
// internal vs external sourcing.
func (e *Engine) History(ctx context.Context, mapping types.SensorMapping, start, end time.Time, window time.Duration, fallbackPrice float64) ([]HistoryPoint, error) {
	var counter, prices []telemetry.Point

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		counter, err = e.adapter.CounterOverWindows(gctx, mapping.UsageSensorID, start, end, window)
		if err != nil {
			return fmt.Errorf("usage series %s: %w", mapping.UsageSensorID, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		prices, err = e.adapter.MeanOverWindows(gctx, mapping.PriceSensorID, start, end, window, telemetry.FillPrevious)
		if err != nil {
			return fmt.Errorf("price series %s: %w", mapping.PriceSensorID, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	priceAt := make(map[int64]float64, len(prices))
	for _, p := range prices {
		priceAt[p.Time.UnixNano()] = p.Value
	}

	var out []HistoryPoint
	for _, iv := range e.resolveDeltas(ctx, counter, mapping.Factor) {
		price := priceAt[iv.Time.UnixNano()]
		if price <= priceEpsilon && fallbackPrice > 0 {
			price = fallbackPrice
		}
		out = append(out, HistoryPoint{Time: iv.Time, UsageKWH: iv.UsageKWH, Price: price})
	}
	return out, nil
}
