package cohort

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const (
	unitsMetric    = "latentlogic.cohort.units"
	durationMetric = "latentlogic.cohort.unit.duration"
)

// unitMetrics records one counter increment and one duration sample per
// finished unit.
type unitMetrics struct {
	units    metric.Int64Counter
	duration metric.Float64Histogram
}

func newUnitMetrics(m metric.Meter) unitMetrics {
	if m == nil {
		m = otel.Meter(tracerName)
	}
	units, err := m.Int64Counter(unitsMetric,
		metric.WithDescription("Finished cohort units by verdict"),
		metric.WithUnit("{unit}"))
	if err != nil {
		units, _ = noop.NewMeterProvider().Meter(tracerName).Int64Counter(unitsMetric)
	}
	duration, err := m.Float64Histogram(durationMetric,
		metric.WithDescription("Wall-clock duration of a cohort unit"),
		metric.WithUnit("s"))
	if err != nil {
		duration, _ = noop.NewMeterProvider().Meter(tracerName).Float64Histogram(durationMetric)
	}
	return unitMetrics{units: units, duration: duration}
}

func (m unitMetrics) record(ctx context.Context, framework string, res UnitResult, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("framework", framework),
		attribute.String("model", res.Model),
		attribute.String("status", string(res.Status)),
		attribute.String("valid", res.Valid.String()),
		attribute.Bool("error", res.Err != nil),
	)
	m.units.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}
