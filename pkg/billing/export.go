package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/zevbilling/zevbilling/pkg/types"
)

// ExportRevenue is the feed-in result for a period.
type ExportRevenue struct {
	ExportKWH float64 `json:"exportKWH"`
	Revenue   float64 `json:"revenue"`
}

// ExportRevenue computes the revenue from energy fed back into the grid: the
// dedicated export counter's delta over the period times the feed-in price,
// with the same reset protection as consumption counters.
//
// Without a dedicated export counter the calculation is skipped entirely.
// Deriving export kWh from a bidirectional power sensor would require
// integration this engine does not attempt.
func (e *Engine) ExportRevenue(ctx context.Context, settings types.SystemSettings, start, end time.Time) (ExportRevenue, error) {
	var out ExportRevenue
	if settings.GridExportKWHSensorID == "" {
		return out, nil
	}

	first, last, err := e.adapter.CounterFirstLast(ctx, settings.GridExportKWHSensorID, start, end)
	if err != nil {
		return out, fmt.Errorf("export series %s: %w", settings.GridExportKWHSensorID, err)
	}
	if first == nil || last == nil {
		return out, nil
	}

	kwh := last.Value - first.Value
	if kwh < 0 {
		// counter reset
		kwh = 0
	}

	out.ExportKWH = kwh
	out.Revenue = kwh * settings.GridExportPrice
	return out, nil
}
