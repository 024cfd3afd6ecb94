package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/levenlabs/go-lflag"
	"github.com/zevbilling/zevbilling/pkg/common"
)

// InfluxAdapter implements Adapter against an InfluxDB 2.x server holding
// Home-Assistant style telemetry: one measurement per unit, sensors tagged
// with entity_id and a single "value" field.
type InfluxAdapter struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI

	url    string
	token  string
	org    string
	bucket string
}

// Configured sets up the telemetry adapter based on flags.
func Configured() Adapter {
	url := lflag.RequiredString("influx-url", "InfluxDB server URL")
	token := lflag.String("influx-token", "", "InfluxDB API token")
	org := lflag.String("influx-org", "", "InfluxDB organization")
	bucket := lflag.String("influx-bucket", "homeassistant", "InfluxDB bucket holding the sensor telemetry")

	var a struct{ Adapter }

	ia := &InfluxAdapter{}

	lflag.Do(func() {
		ia.url = *url
		ia.token = *token
		ia.org = *org
		ia.bucket = *bucket
		if err := ia.Init(); err != nil {
			panic(fmt.Sprintf("influx init failed: %v", err))
		}
		a.Adapter = ia
	})

	return &a
}

// Init creates the InfluxDB client. It must be called before any queries.
func (ia *InfluxAdapter) Init() error {
	if ia.url == "" {
		return fmt.Errorf("influx url cannot be empty")
	}
	opts := influxdb2.DefaultOptions().SetHTTPClient(common.HTTPClient(30 * time.Second))
	ia.client = influxdb2.NewClientWithOptions(ia.url, ia.token, opts)
	ia.queryAPI = ia.client.QueryAPI(ia.org)
	return nil
}

// Close releases the underlying client.
func (ia *InfluxAdapter) Close() {
	if ia.client != nil {
		ia.client.Close()
	}
}

var fluxEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// seriesFilter builds the range + filter portion of a Flux query for one
// sensor. Measurements are not filtered since the unit measurement differs
// per sensor; entity_id is unique across them.
func (ia *InfluxAdapter) seriesFilter(seriesID string, start, end time.Time) string {
	return fmt.Sprintf(
		`from(bucket: "%s") |> range(start: %s, stop: %s) |> filter(fn: (r) => r["entity_id"] == "%s" and r["_field"] == "value")`,
		fluxEscaper.Replace(ia.bucket),
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
		fluxEscaper.Replace(seriesID),
	)
}

func fluxWindow(window time.Duration) string {
	return fmt.Sprintf("%ds", int(window.Seconds()))
}

// LastValue implements Adapter. It looks back at most 30 days for the most
// recent reading.
func (ia *InfluxAdapter) LastValue(ctx context.Context, seriesID string) (*Sample, error) {
	if seriesID == "" {
		return nil, nil
	}
	now := time.Now()
	flux := ia.seriesFilter(seriesID, now.Add(-30*24*time.Hour), now) + ` |> last()`

	res, err := ia.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("last value query for %s failed: %w", seriesID, err)
	}
	defer res.Close()

	var sample *Sample
	for res.Next() {
		rec := res.Record()
		v, ok := rec.Value().(float64)
		if !ok {
			continue
		}
		// a sensor that changed measurements over time yields one table per
		// measurement; keep the newest
		if sample == nil || rec.Time().After(sample.Time) {
			sample = &Sample{Time: rec.Time(), Value: v, Unit: rec.Measurement()}
		}
	}
	if res.Err() != nil {
		return nil, fmt.Errorf("last value query for %s failed: %w", seriesID, res.Err())
	}
	return sample, nil
}

// counterFilter is seriesFilter with spurious zero readings dropped; counters
// report zeroes on device restarts.
func (ia *InfluxAdapter) counterFilter(seriesID string, start, end time.Time) string {
	return fmt.Sprintf(
		`from(bucket: "%s") |> range(start: %s, stop: %s) |> filter(fn: (r) => r["entity_id"] == "%s" and r["_field"] == "value" and r["_value"] > 0.0)`,
		fluxEscaper.Replace(ia.bucket),
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
		fluxEscaper.Replace(seriesID),
	)
}

func (ia *InfluxAdapter) meanFlux(seriesID string, start, end time.Time, window time.Duration, fill FillMode) string {
	flux := ia.seriesFilter(seriesID, start, end) +
		fmt.Sprintf(` |> aggregateWindow(every: %s, fn: mean, createEmpty: true, timeSrc: "_start")`, fluxWindow(window))
	switch fill {
	case FillPrevious:
		flux += ` |> fill(usePrevious: true)`
	default:
		flux += ` |> fill(value: 0.0)`
	}
	return flux
}

func (ia *InfluxAdapter) counterFlux(seriesID string, start, end time.Time, window time.Duration) string {
	return ia.counterFilter(seriesID, start, end) +
		fmt.Sprintf(` |> aggregateWindow(every: %s, fn: last, createEmpty: true, timeSrc: "_start") |> fill(usePrevious: true)`, fluxWindow(window))
}

// MeanOverWindows implements Adapter.
func (ia *InfluxAdapter) MeanOverWindows(ctx context.Context, seriesID string, start, end time.Time, window time.Duration, fill FillMode) ([]Point, error) {
	if seriesID == "" {
		return nil, nil
	}
	return ia.queryPoints(ctx, seriesID, ia.meanFlux(seriesID, start, end, window, fill))
}

// CounterOverWindows implements Adapter.
func (ia *InfluxAdapter) CounterOverWindows(ctx context.Context, seriesID string, start, end time.Time, window time.Duration) ([]Point, error) {
	if seriesID == "" {
		return nil, nil
	}
	return ia.queryPoints(ctx, seriesID, ia.counterFlux(seriesID, start, end, window))
}

// CounterFirstLast implements Adapter.
func (ia *InfluxAdapter) CounterFirstLast(ctx context.Context, seriesID string, start, end time.Time) (*Sample, *Sample, error) {
	if seriesID == "" {
		return nil, nil, nil
	}
	base := ia.counterFilter(seriesID, start, end)

	first, err := ia.querySingle(ctx, seriesID, base+` |> first()`)
	if err != nil {
		return nil, nil, err
	}
	last, err := ia.querySingle(ctx, seriesID, base+` |> last()`)
	if err != nil {
		return nil, nil, err
	}
	return first, last, nil
}

func (ia *InfluxAdapter) queryPoints(ctx context.Context, seriesID, flux string) ([]Point, error) {
	res, err := ia.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("windowed query for %s failed: %w", seriesID, err)
	}
	defer res.Close()

	var points []Point
	for res.Next() {
		rec := res.Record()
		v, ok := rec.Value().(float64)
		if !ok {
			// leading windows before the first reading stay null even with
			// fill; those buckets simply have no data
			continue
		}
		points = append(points, Point{Time: rec.Time(), Value: v})
	}
	if res.Err() != nil {
		return nil, fmt.Errorf("windowed query for %s failed: %w", seriesID, res.Err())
	}
	return points, nil
}

func (ia *InfluxAdapter) querySingle(ctx context.Context, seriesID, flux string) (*Sample, error) {
	res, err := ia.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("query for %s failed: %w", seriesID, err)
	}
	defer res.Close()

	var sample *Sample
	for res.Next() {
		rec := res.Record()
		v, ok := rec.Value().(float64)
		if !ok {
			continue
		}
		sample = &Sample{Time: rec.Time(), Value: v, Unit: rec.Measurement()}
	}
	if res.Err() != nil {
		return nil, fmt.Errorf("query for %s failed: %w", seriesID, res.Err())
	}
	return sample, nil
}
