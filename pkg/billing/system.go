package billing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zevbilling/zevbilling/pkg/telemetry"
	"github.com/zevbilling/zevbilling/pkg/types"
)

// SystemIntervalData is the merged view of the shared system for one time
// bucket: what the grid price was and how much power the grid, battery and PV
// delivered. It is built fresh per calculation and never persisted.
//
// Power fields carry whatever unit the underlying sensor reports (usually W);
// the classifier thresholds assume watts. BatteryDischarge is sign-normalized
// so positive always means discharging. A field stays 0 when its sensor is not
// configured or reported nothing, which the classifier treats as "no internal
// source available".
type SystemIntervalData struct {
	Time             time.Time `json:"time"`
	GridPrice        float64   `json:"gridPrice"`
	GridImport       float64   `json:"gridImport"`
	BatteryDischarge float64   `json:"batteryDischarge"`
	PVProduction     float64   `json:"pvProduction"`
}

// signNormalizer applies the installation's sign conventions once at
// ingestion so the rest of the engine can assume positive battery discharge
// and non-negative grid import.
type signNormalizer struct {
	batteryFactor float64
	splitGrid     bool
}

func newSignNormalizer(s types.SystemSettings) signNormalizer {
	n := signNormalizer{batteryFactor: 1}
	if s.InvertBatterySign {
		n.batteryFactor = -1
	}
	// without a dedicated import sensor the bidirectional sensor encodes
	// export as negative; only the import side matters here
	n.splitGrid = s.GridImportSensorID == "" && s.GridPowerSensorID != ""
	return n
}

func (n signNormalizer) batteryDischarge(v float64) float64 {
	return v * n.batteryFactor
}

func (n signNormalizer) gridImport(v float64) float64 {
	if n.splitGrid && v < 0 {
		return 0
	}
	return v
}

// gridImportSeries returns the series to read grid import from: a dedicated
// import sensor is trusted directly, otherwise the bidirectional sensor is
// split by sign.
func gridImportSeries(s types.SystemSettings) string {
	if s.GridImportSensorID != "" {
		return s.GridImportSensorID
	}
	return s.GridPowerSensorID
}

// FetchSystemHistory queries the shared system telemetry (price, grid,
// battery, PV) once for the period and merges it into one interval-aligned
// sequence. The component queries run concurrently. Price buckets carry the
// previous value forward; power buckets default to zero. A failure of any
// component query fails the whole fetch since every mapping's classification
// depends on it.
func (e *Engine) FetchSystemHistory(ctx context.Context, settings types.SystemSettings, priceSeriesID string, start, end time.Time, window time.Duration) ([]SystemIntervalData, error) {
	if priceSeriesID == "" {
		return nil, ErrNoPriceSeries
	}

	norm := newSignNormalizer(settings)
	gridSeries := gridImportSeries(settings)

	var price, grid, battery, pv []telemetry.Point

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		price, err = e.adapter.MeanOverWindows(gctx, priceSeriesID, start, end, window, telemetry.FillPrevious)
		if err != nil {
			return fmt.Errorf("price series %s: %w", priceSeriesID, err)
		}
		return nil
	})
	if gridSeries != "" {
		g.Go(func() error {
			var err error
			grid, err = e.adapter.MeanOverWindows(gctx, gridSeries, start, end, window, telemetry.FillZero)
			if err != nil {
				return fmt.Errorf("grid series %s: %w", gridSeries, err)
			}
			return nil
		})
	}
	if settings.BatteryPowerSensorID != "" {
		g.Go(func() error {
			var err error
			battery, err = e.adapter.MeanOverWindows(gctx, settings.BatteryPowerSensorID, start, end, window, telemetry.FillZero)
			if err != nil {
				return fmt.Errorf("battery series %s: %w", settings.BatteryPowerSensorID, err)
			}
			return nil
		})
	}
	if settings.PVPowerSensorID != "" {
		g.Go(func() error {
			var err error
			pv, err = e.adapter.MeanOverWindows(gctx, settings.PVPowerSensorID, start, end, window, telemetry.FillZero)
			if err != nil {
				return fmt.Errorf("pv series %s: %w", settings.PVPowerSensorID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("system telemetry fetch failed: %w", err)
	}

	merged := map[int64]*SystemIntervalData{}
	apply := func(points []telemetry.Point, set func(*SystemIntervalData, float64)) {
		for _, p := range points {
			k := p.Time.UnixNano()
			d, ok := merged[k]
			if !ok {
				d = &SystemIntervalData{Time: p.Time}
				merged[k] = d
			}
			set(d, p.Value)
		}
	}
	apply(price, func(d *SystemIntervalData, v float64) { d.GridPrice = v })
	apply(grid, func(d *SystemIntervalData, v float64) { d.GridImport = norm.gridImport(v) })
	apply(battery, func(d *SystemIntervalData, v float64) { d.BatteryDischarge = norm.batteryDischarge(v) })
	apply(pv, func(d *SystemIntervalData, v float64) { d.PVProduction = v })

	out := make([]SystemIntervalData, 0, len(merged))
	for _, d := range merged {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func indexSystemData(data []SystemIntervalData) map[int64]*SystemIntervalData {
	idx := make(map[int64]*SystemIntervalData, len(data))
	for i := range data {
		idx[data[i].Time.UnixNano()] = &data[i]
	}
	return idx
}
