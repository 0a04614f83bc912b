package oteladapters

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore"
)

const totalSuffix = "_total"

// MetricsCollector implements eventstore.ContextualMetricsCollector with OTel instruments,
// created lazily per metric name:
//   - RecordDuration -> Float64Histogram in seconds
//   - IncrementCounter -> Int64Counter
//   - RecordValue -> Float64Counter for names ending in "_total", Float64Gauge otherwise
type MetricsCollector struct {
	meter metric.Meter

	mu            sync.Mutex
	histograms    map[string]metric.Float64Histogram
	counters      map[string]metric.Int64Counter
	valueCounters map[string]metric.Float64Counter
	gauges        map[string]metric.Float64Gauge
}

// NewMetricsCollector creates a collector that registers its instruments on the given meter.
func NewMetricsCollector(meter metric.Meter) *MetricsCollector {
	return &MetricsCollector{
		meter:         meter,
		histograms:    make(map[string]metric.Float64Histogram),
		counters:      make(map[string]metric.Int64Counter),
		valueCounters: make(map[string]metric.Float64Counter),
		gauges:        make(map[string]metric.Float64Gauge),
	}
}

// RecordDuration records into a histogram without a context.
func (m *MetricsCollector) RecordDuration(metricName string, duration time.Duration, labels map[string]string) {
	m.RecordDurationContext(context.Background(), metricName, duration, labels)
}

// RecordDurationContext records the duration in seconds.
func (m *MetricsCollector) RecordDurationContext(
	ctx context.Context,
	metricName string,
	duration time.Duration,
	labels map[string]string,
) {
	histogram := m.histogram(metricName)
	if histogram == nil {
		return
	}

	histogram.Record(ctx, duration.Seconds(), metric.WithAttributes(toAttributes(labels)...))
}

// IncrementCounter adds one to a counter without a context.
func (m *MetricsCollector) IncrementCounter(metricName string, labels map[string]string) {
	m.IncrementCounterContext(context.Background(), metricName, labels)
}

// IncrementCounterContext adds one to a counter.
func (m *MetricsCollector) IncrementCounterContext(ctx context.Context, metricName string, labels map[string]string) {
	counter := m.counter(metricName)
	if counter == nil {
		return
	}

	counter.Add(ctx, 1, metric.WithAttributes(toAttributes(labels)...))
}

// RecordValue records a value without a context.
func (m *MetricsCollector) RecordValue(metricName string, value float64, labels map[string]string) {
	m.RecordValueContext(context.Background(), metricName, value, labels)
}

// RecordValueContext adds the value to a monotonic counter when the name is a "_total" metric,
// otherwise it records the value as the current gauge reading.
// Negative values for "_total" metrics are ignored.
func (m *MetricsCollector) RecordValueContext(
	ctx context.Context,
	metricName string,
	value float64,
	labels map[string]string,
) {
	attrs := metric.WithAttributes(toAttributes(labels)...)

	if strings.HasSuffix(metricName, totalSuffix) {
		counter := m.valueCounter(metricName)
		if counter == nil || value < 0 {
			return
		}

		counter.Add(ctx, value, attrs)

		return
	}

	gauge := m.gauge(metricName)
	if gauge == nil {
		return
	}

	gauge.Record(ctx, value, attrs)
}

// The instrument getters return nil when the meter refuses to create the instrument,
// in which case the measurement is dropped.

func (m *MetricsCollector) histogram(name string) metric.Float64Histogram {
	m.mu.Lock()
	defer m.mu.Unlock()

	if histogram, ok := m.histograms[name]; ok {
		return histogram
	}

	histogram, err := m.meter.Float64Histogram(
		name,
		metric.WithDescription("EventStore operation duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil
	}

	m.histograms[name] = histogram

	return histogram
}

func (m *MetricsCollector) counter(name string) metric.Int64Counter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if counter, ok := m.counters[name]; ok {
		return counter
	}

	counter, err := m.meter.Int64Counter(name, metric.WithDescription("EventStore occurrences"))
	if err != nil {
		return nil
	}

	m.counters[name] = counter

	return counter
}

func (m *MetricsCollector) valueCounter(name string) metric.Float64Counter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if counter, ok := m.valueCounters[name]; ok {
		return counter
	}

	counter, err := m.meter.Float64Counter(name, metric.WithDescription("EventStore accumulated amount"))
	if err != nil {
		return nil
	}

	m.valueCounters[name] = counter

	return counter
}

func (m *MetricsCollector) gauge(name string) metric.Float64Gauge {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gauge, ok := m.gauges[name]; ok {
		return gauge
	}

	gauge, err := m.meter.Float64Gauge(name, metric.WithDescription("EventStore current value"))
	if err != nil {
		return nil
	}

	m.gauges[name] = gauge

	return gauge
}

func toAttributes(labels map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for key, value := range labels {
		attrs = append(attrs, attribute.String(key, value))
	}

	return attrs
}

var _ eventstore.ContextualMetricsCollector = (*MetricsCollector)(nil)
