package sqlengine_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore"
	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore/sqlengine"
	. "github.com/AntonStoeckl/scoped-eventstore-go/testutil/helper"
)

func Test_Logging_When_LoggerIsConfigured_SQLAndOperationsAreLogged(t *testing.T) {
	// setup
	ctx := context.Background()
	logSpy := NewLogHandlerSpy(false)
	es := givenInitializedSQLiteStore(t, sqlengine.WithLogger(slog.New(logSpy)))
	bookID := GivenUniqueID(t)

	// act
	GivenBookCopyAddedToCirculationWasAppended(t, ctx, es, bookID)
	_, err := es.Query(ctx, FilterAllEventTypesForOneBook(bookID))
	require.NoError(t, err)

	// assert
	assert.True(t, logSpy.HasDebugLogWithMessage("executed sql for: query").WithDurationMS().WithAttribute("query").Assert())
	assert.True(t, logSpy.HasDebugLogWithMessage("executed sql for: append").WithDurationMS().Assert())
	assert.True(t, logSpy.HasDebugLogWithMessage("executed sql for: transaction").Assert())
	assert.True(t, logSpy.HasInfoLogWithMessage("eventstore operation: query completed").WithEventCount(1).WithDurationMS().Assert())
	assert.True(t, logSpy.HasInfoLogWithMessage("eventstore operation: events appended").WithEventCount(1).Assert())
	assert.True(t, logSpy.HasInfoLogWithMessage("eventstore operation: database initialized").Assert())
}

func Test_Logging_When_AppendConflicts_TheConflictIsLogged(t *testing.T) {
	// setup
	ctx := context.Background()
	logSpy := NewLogHandlerSpy(false)
	es := givenInitializedSQLiteStore(t, sqlengine.WithContextualLogger(slog.New(logSpy)))

	// arrange
	bookID := GivenUniqueID(t)
	GivenBookCopyAddedToCirculationWasAppended(t, ctx, es, bookID)

	// act
	err := es.Append(
		ctx,
		eventstore.ScopedTo(FilterAllEventTypesForOneBook(bookID)).ExpectingMaxSequenceNumber(0),
		FixtureBookCopyRemovedFromCirculation(t, bookID),
	)

	// assert
	assert.ErrorIs(t, err, eventstore.ErrConcurrencyConflict)
	assert.True(t, logSpy.
		HasInfoLogWithMessage("eventstore operation: concurrency conflict detected").
		WithAttribute("expected_sequence").
		WithAttribute("observed_sequence").
		Assert())
	assert.True(t, logSpy.HasDebugLogWithMessage("executed sql for: recheck").Assert())
}

func Test_Logging_When_ASubscriberFails_AWarningIsLogged(t *testing.T) {
	// setup
	ctx := context.Background()
	logSpy := NewLogHandlerSpy(false)
	metricsSpy := NewMetricsCollectorSpy()
	es := givenInitializedSQLiteStore(t, sqlengine.WithLogger(slog.New(logSpy)), sqlengine.WithMetrics(metricsSpy))

	_, err := es.Subscribe(func(_ context.Context, _ eventstore.EventRecords) error {
		return errors.New("projection is broken")
	})
	require.NoError(t, err)

	// act
	GivenBookCopyAddedToCirculationWasAppended(t, ctx, es, GivenUniqueID(t))

	// assert
	assert.True(t, logSpy.HasWarnLogWithMessage("failed to notify subscribers about appended events").WithAttribute("error").Assert())
	assert.True(t, metricsSpy.HasCounterRecordForMetric("eventstore_notify_failures_total").WithOperation("notify").Assert())
}

func Test_Logging_When_AnInsertFails_TheFailureIsLoggedAsError(t *testing.T) {
	// setup
	ctx := context.Background()
	logSpy := NewLogHandlerSpy(false)
	es, spy := givenSpiedSQLiteStore(t, sqlengine.WithLogger(slog.New(logSpy)))
	spy.FailQuery("INSERT", 0, errors.New("disk full"))

	// act
	err := es.Append(ctx, eventstore.Unscoped(), FixtureBookCopyAddedToCirculation(t, GivenUniqueID(t)))

	// assert
	assert.Error(t, err)
	assert.True(t, logSpy.HasErrorLogWithMessage("database insert failed during event append").WithAttribute("event_type").Assert())
}

func Test_Metrics_QueryAndAppendAreMeasured(t *testing.T) {
	// setup
	ctx := context.Background()
	metricsSpy := NewMetricsCollectorSpy()
	es := givenInitializedSQLiteStore(t, sqlengine.WithMetrics(metricsSpy))
	bookID := GivenUniqueID(t)
	readerID := GivenUniqueID(t)

	// act
	err := es.Append(
		ctx,
		eventstore.Unscoped(),
		FixtureBookCopyAddedToCirculation(t, bookID),
		FixtureBookCopyLentToReader(t, bookID, readerID),
	)
	require.NoError(t, err)
	_, queryErr := es.Query(ctx, FilterAllEventTypesForOneBook(bookID))
	require.NoError(t, queryErr)

	// assert
	assert.True(t, metricsSpy.HasDurationRecordForMetric("eventstore_append_duration_seconds").WithOperation("append").WithStatus("success").Assert())
	assert.True(t, metricsSpy.HasDurationRecordForMetric("eventstore_query_duration_seconds").WithOperation("query").WithStatus("success").Assert())

	var appended, queried float64
	for _, record := range metricsSpy.GetValueRecords() {
		switch record.Metric {
		case "eventstore_events_appended_total":
			appended += record.Value
		case "eventstore_events_queried_total":
			queried += record.Value
		}
	}

	assert.Equal(t, float64(2), appended)
	assert.Equal(t, float64(2), queried)
}

func Test_Metrics_When_AppendConflicts_TheConflictIsCounted(t *testing.T) {
	// setup
	ctx := context.Background()
	metricsSpy := NewMetricsCollectorSpy()
	es := givenInitializedSQLiteStore(t, sqlengine.WithMetrics(metricsSpy))

	// arrange
	bookID := GivenUniqueID(t)
	GivenBookCopyAddedToCirculationWasAppended(t, ctx, es, bookID)

	// act
	err := es.Append(
		ctx,
		eventstore.ScopedTo(FilterAllEventTypesForOneBook(bookID)).ExpectingMaxSequenceNumber(0),
		FixtureBookCopyRemovedFromCirculation(t, bookID),
	)

	// assert
	assert.ErrorIs(t, err, eventstore.ErrConcurrencyConflict)
	assert.True(t, metricsSpy.HasCounterRecordForMetric("eventstore_concurrency_conflicts_total").WithOperation("append").Assert())
	assert.True(t, metricsSpy.HasDurationRecordForMetric("eventstore_append_duration_seconds").WithStatus("conflict").Assert())
	assert.False(t, metricsSpy.HasCounterRecordForMetric("eventstore_database_errors_total").Assert())
}

func Test_Metrics_When_TheBackendFails_ADatabaseErrorIsCounted(t *testing.T) {
	// setup
	ctx := context.Background()
	metricsSpy := NewMetricsCollectorSpy()
	es, spy := givenSpiedSQLiteStore(t, sqlengine.WithMetrics(metricsSpy))
	spy.FailQuery("INSERT", 0, errors.New("disk full"))
	spy.FailQuery("SELECT", 0, errors.New("disk I/O error"))

	// act
	appendErr := es.Append(ctx, eventstore.Unscoped(), FixtureBookCopyAddedToCirculation(t, GivenUniqueID(t)))
	_, queryErr := es.Query(ctx, nil)

	// assert
	require.Error(t, appendErr)
	require.Error(t, queryErr)
	assert.True(t, metricsSpy.
		HasCounterRecordForMetric("eventstore_database_errors_total").
		WithOperation("append").
		WithErrorType("insert_error").
		Assert())
	assert.True(t, metricsSpy.
		HasCounterRecordForMetric("eventstore_database_errors_total").
		WithOperation("query").
		WithErrorType("database_query_error").
		Assert())
}

func Test_Metrics_When_CollectorIsContextual_TheContextualMethodsAreUsed(t *testing.T) {
	// setup
	ctx := context.Background()
	metricsSpy := NewContextualMetricsCollectorSpy()
	es := givenInitializedSQLiteStore(t, sqlengine.WithMetrics(metricsSpy))

	// act
	GivenBookCopyAddedToCirculationWasAppended(t, ctx, es, GivenUniqueID(t))

	// assert
	assert.Positive(t, metricsSpy.ContextualCallCount())
	assert.Equal(t, len(metricsSpy.GetDurationRecords())+len(metricsSpy.GetValueRecords())+len(metricsSpy.GetCounterRecords()),
		metricsSpy.ContextualCallCount())
}

func Test_Tracing_QueryAndAppendCreateSpans(t *testing.T) {
	// setup
	ctx := context.Background()
	tracingSpy := NewTracingCollectorSpy()
	es := givenInitializedSQLiteStore(t, sqlengine.WithTracing(tracingSpy))
	bookID := GivenUniqueID(t)
	scope := FilterAllEventTypesForOneBook(bookID)

	// act
	err := es.Append(
		ctx,
		eventstore.ScopedTo(scope).ExpectingMaxSequenceNumber(0),
		FixtureBookCopyAddedToCirculation(t, bookID),
	)
	require.NoError(t, err)
	_, queryErr := es.Query(ctx, scope)
	require.NoError(t, queryErr)

	// assert
	appendSpan, found := tracingSpy.FindFinishedSpan("EventStore.Append", "success")
	require.True(t, found)
	assert.Equal(t, "scoped", appendSpan.StartAttributes["scope"])
	assert.Equal(t, "0", appendSpan.StartAttributes["expected_sequence"])
	assert.Equal(t, "1", appendSpan.EndAttributes["max_sequence"])

	querySpan, found := tracingSpy.FindFinishedSpan("EventStore.Query", "success")
	require.True(t, found)
	assert.Equal(t, "1", querySpan.EndAttributes["event_count"])
}

func Test_Tracing_When_AppendConflicts_TheSpanFinishesWithError(t *testing.T) {
	// setup
	ctx := context.Background()
	tracingSpy := NewTracingCollectorSpy()
	es := givenInitializedSQLiteStore(t, sqlengine.WithTracing(tracingSpy))

	// arrange
	bookID := GivenUniqueID(t)
	GivenBookCopyAddedToCirculationWasAppended(t, ctx, es, bookID)
	tracingSpy.Reset()

	// act
	err := es.Append(
		ctx,
		eventstore.ScopedTo(FilterAllEventTypesForOneBook(bookID)).ExpectingMaxSequenceNumber(0),
		FixtureBookCopyRemovedFromCirculation(t, bookID),
	)

	// assert
	assert.ErrorIs(t, err, eventstore.ErrConcurrencyConflict)
	span, found := tracingSpy.FindFinishedSpan("EventStore.Append", "error")
	require.True(t, found)
	assert.Equal(t, "concurrency_conflict", span.EndAttributes["error_type"])
}
