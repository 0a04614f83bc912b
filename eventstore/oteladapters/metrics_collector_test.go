package oteladapters_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore/oteladapters"
)

func givenMetricsCollector(t *testing.T) (*oteladapters.MetricsCollector, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	return oteladapters.NewMetricsCollector(provider.Meter("eventstore-test")), reader
}

func collectMetric(t *testing.T, reader *sdkmetric.ManualReader, name string) metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m
			}
		}
	}

	require.Failf(t, "metric not collected", "metric %q", name)

	return metricdata.Metrics{}
}

func Test_MetricsCollector_RecordDuration_RecordsSecondsIntoAHistogram(t *testing.T) {
	// setup
	collector, reader := givenMetricsCollector(t)
	labels := map[string]string{"operation": "query", "status": "success"}

	// act
	collector.RecordDuration("eventstore_query_duration_seconds", 250*time.Millisecond, labels)
	collector.RecordDurationContext(context.Background(), "eventstore_query_duration_seconds", 750*time.Millisecond, labels)

	// assert
	m := collectMetric(t, reader, "eventstore_query_duration_seconds")
	assert.Equal(t, "s", m.Unit)

	histogram, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, histogram.DataPoints, 1)

	point := histogram.DataPoints[0]
	assert.Equal(t, uint64(2), point.Count)
	assert.InDelta(t, 1.0, point.Sum, 1e-9)

	operation, _ := point.Attributes.Value(attribute.Key("operation"))
	assert.Equal(t, "query", operation.AsString())
}

func Test_MetricsCollector_IncrementCounter_SeparatesLabelSets(t *testing.T) {
	// setup
	collector, reader := givenMetricsCollector(t)

	// act
	collector.IncrementCounter("eventstore_database_errors_total", map[string]string{"error_type": "insert_error"})
	collector.IncrementCounter("eventstore_database_errors_total", map[string]string{"error_type": "insert_error"})
	collector.IncrementCounterContext(
		context.Background(),
		"eventstore_database_errors_total",
		map[string]string{"error_type": "commit_error"},
	)

	// assert
	sum, ok := collectMetric(t, reader, "eventstore_database_errors_total").Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.True(t, sum.IsMonotonic)

	byErrorType := map[string]int64{}
	for _, point := range sum.DataPoints {
		errorType, _ := point.Attributes.Value(attribute.Key("error_type"))
		byErrorType[errorType.AsString()] = point.Value
	}

	assert.Equal(t, map[string]int64{"insert_error": 2, "commit_error": 1}, byErrorType)
}

func Test_MetricsCollector_RecordValue_When_NameEndsInTotal_ValuesAccumulate(t *testing.T) {
	// setup
	collector, reader := givenMetricsCollector(t)

	// act
	collector.RecordValue("eventstore_events_appended_total", 3, nil)
	collector.RecordValueContext(context.Background(), "eventstore_events_appended_total", 2, nil)
	collector.RecordValue("eventstore_events_appended_total", -5, nil)

	// assert
	sum, ok := collectMetric(t, reader, "eventstore_events_appended_total").Data.(metricdata.Sum[float64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.InDelta(t, 5.0, sum.DataPoints[0].Value, 1e-9)
}

func Test_MetricsCollector_RecordValue_When_NameIsNotATotal_TheLastValueWins(t *testing.T) {
	// setup
	collector, reader := givenMetricsCollector(t)

	// act
	collector.RecordValue("eventstore_subscribers", 4, nil)
	collector.RecordValue("eventstore_subscribers", 2, nil)

	// assert
	gauge, ok := collectMetric(t, reader, "eventstore_subscribers").Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.InDelta(t, 2.0, gauge.DataPoints[0].Value, 1e-9)
}

func Test_MetricsCollector_When_UsedConcurrently_EveryIncrementIsCounted(t *testing.T) {
	// setup
	collector, reader := givenMetricsCollector(t)

	const goroutines = 16
	const increments = 50

	// act
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := 0; i < increments; i++ {
				collector.IncrementCounter("eventstore_concurrency_conflicts_total", nil)
			}
		}()
	}

	wg.Wait()

	// assert
	sum, ok := collectMetric(t, reader, "eventstore_concurrency_conflicts_total").Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(goroutines*increments), sum.DataPoints[0].Value)
}
