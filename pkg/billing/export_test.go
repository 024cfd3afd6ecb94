package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zevbilling/zevbilling/pkg/telemetry"
	"github.com/zevbilling/zevbilling/pkg/types"
)

func TestExportRevenue(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	t.Run("CounterDelta", func(t *testing.T) {
		mock := telemetry.NewMock()
		mock.FirstLasts["sensor.grid_export_total"] = telemetry.FirstLast{
			First: &telemetry.Sample{Time: start, Value: 1000},
			Last:  &telemetry.Sample{Time: end, Value: 1250},
		}
		settings := types.SystemSettings{
			GridExportKWHSensorID: "sensor.grid_export_total",
			GridExportPrice:       0.08,
		}

		e := New(mock)
		rev, err := e.ExportRevenue(ctx, settings, start, end)
		require.NoError(t, err)
		assert.InDelta(t, 250, rev.ExportKWH, 1e-9)
		assert.InDelta(t, 20, rev.Revenue, 1e-9)
	})

	t.Run("NoExportCounterConfigured", func(t *testing.T) {
		// a bidirectional power sensor alone is not enough to bill export
		e := New(telemetry.NewMock())
		rev, err := e.ExportRevenue(ctx, types.SystemSettings{
			GridPowerSensorID: "sensor.grid_power",
			GridExportPrice:   0.08,
		}, start, end)
		require.NoError(t, err)
		assert.Equal(t, ExportRevenue{}, rev)
	})

	t.Run("CounterReset", func(t *testing.T) {
		mock := telemetry.NewMock()
		mock.FirstLasts["sensor.grid_export_total"] = telemetry.FirstLast{
			First: &telemetry.Sample{Time: start, Value: 1000},
			Last:  &telemetry.Sample{Time: end, Value: 5},
		}
		settings := types.SystemSettings{
			GridExportKWHSensorID: "sensor.grid_export_total",
			GridExportPrice:       0.08,
		}

		e := New(mock)
		rev, err := e.ExportRevenue(ctx, settings, start, end)
		require.NoError(t, err)
		assert.Equal(t, 0.0, rev.ExportKWH)
		assert.Equal(t, 0.0, rev.Revenue)
	})

	t.Run("NoData", func(t *testing.T) {
		e := New(telemetry.NewMock())
		rev, err := e.ExportRevenue(ctx, types.SystemSettings{
			GridExportKWHSensorID: "sensor.grid_export_total",
			GridExportPrice:       0.08,
		}, start, end)
		require.NoError(t, err)
		assert.Equal(t, ExportRevenue{}, rev)
	})
}
