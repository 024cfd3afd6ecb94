package billing

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/zevbilling/zevbilling/pkg/log"
	"github.com/zevbilling/zevbilling/pkg/telemetry"
)

const (
	// outlierCeilingKWH is the sanity ceiling for a single interval's usage.
	// Anything larger is a sensor glitch, not consumption.
	outlierCeilingKWH = 500
	// usageNoiseFloorKWH drops intervals of floating-point/sensor dust so
	// they accumulate neither usage nor cost.
	usageNoiseFloorKWH = 0.0001
)

// UsageInterval is the consumption attributed to one time bucket, with the
// mapping's factor already applied (so it may be negative for subtracted
// components of virtual meters).
type UsageInterval struct {
	Time     time.Time
	UsageKWH float64
}

// resolveDeltas converts a bucketed monotonic counter series into
// per-interval usage. The first bucket only establishes the baseline. A
// counter that drops was reset, so that interval clamps to zero instead of
// producing negative usage; subsequent deltas are relative to the post-reset
// value.
func (e *Engine) resolveDeltas(ctx context.Context, points []telemetry.Point, factor float64) []UsageInterval {
	var out []UsageInterval
	var prev float64
	first := true
	for _, p := range points {
		if first {
			prev = p.Value
			first = false
			continue
		}
		rawDelta := p.Value - prev
		prev = p.Value

		if rawDelta < 0 {
			// counter reset
			rawDelta = 0
		}

		usage := rawDelta * factor

		if math.Abs(usage) > outlierCeilingKWH {
			e.outlierSpikes.Add(1)
			log.Ctx(ctx).DebugContext(ctx, "discarding counter spike",
				slog.Time("bucket", p.Time), slog.Float64("usageKWH", usage))
			continue
		}
		if math.Abs(usage) <= usageNoiseFloorKWH {
			continue
		}

		out = append(out, UsageInterval{Time: p.Time, UsageKWH: usage})
	}
	return out
}
