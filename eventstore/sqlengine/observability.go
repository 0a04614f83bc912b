package sqlengine

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore"
)

// === Logging ===
// Both loggers are optional and independent, each one that is configured receives every message.

// logQueryWithDuration logs SQL statements with execution time at debug level.
func (es *EventStore) logQueryWithDuration(
	ctx context.Context,
	sqlQuery string,
	action string,
	duration time.Duration,
) {
	args := []any{logAttrDurationMS, es.toMilliseconds(duration), logAttrQuery, sqlQuery}

	if es.logger != nil {
		es.logger.Debug(logMsgSQLExecuted+action, args...)
	}

	if es.contextualLogger != nil {
		es.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action, args...)
	}
}

// logOperation logs operational information at info level.
func (es *EventStore) logOperation(ctx context.Context, action string, args ...any) {
	if es.logger != nil {
		es.logger.Info(logMsgOperation+action, args...)
	}

	if es.contextualLogger != nil {
		es.contextualLogger.InfoContext(ctx, logMsgOperation+action, args...)
	}
}

// logWarn logs non-critical issues at warn level.
func (es *EventStore) logWarn(ctx context.Context, message string, args ...any) {
	if es.logger != nil {
		es.logger.Warn(message, args...)
	}

	if es.contextualLogger != nil {
		es.contextualLogger.WarnContext(ctx, message, args...)
	}
}

// logError logs error information at error level.
func (es *EventStore) logError(ctx context.Context, message string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	if es.logger != nil {
		es.logger.Error(message, allArgs...)
	}

	if es.contextualLogger != nil {
		es.contextualLogger.ErrorContext(ctx, message, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func (es *EventStore) toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// === Metrics ===

func (es *EventStore) recordDuration(ctx context.Context, metric string, d time.Duration, labels map[string]string) {
	if es.metricsCollector == nil {
		return
	}

	if contextual, ok := es.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, d, labels)
		return
	}

	es.metricsCollector.RecordDuration(metric, d, labels)
}

func (es *EventStore) recordValue(ctx context.Context, metric string, value float64, labels map[string]string) {
	if es.metricsCollector == nil {
		return
	}

	if contextual, ok := es.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextual.RecordValueContext(ctx, metric, value, labels)
		return
	}

	es.metricsCollector.RecordValue(metric, value, labels)
}

func (es *EventStore) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if es.metricsCollector == nil {
		return
	}

	if contextual, ok := es.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	es.metricsCollector.IncrementCounter(metric, labels)
}

func (es *EventStore) recordDatabaseError(ctx context.Context, operation, errorType string) {
	es.incrementCounter(ctx, metricDatabaseErrors, map[string]string{
		spanAttrOperation: operation,
		"status":          statusError,
		spanAttrErrorType: errorType,
	})
}

func (es *EventStore) recordNotifyFailure(ctx context.Context) {
	es.incrementCounter(ctx, metricNotifyFailures, map[string]string{
		spanAttrOperation: operationNotify,
		spanAttrErrorType: errorTypeNotify,
	})
}

func statusLabels(operation, status string) map[string]string {
	return map[string]string{
		spanAttrOperation: operation,
		"status":          status,
	}
}

// queryMetricsObserver encapsulates the metrics collection for query operations.
type queryMetricsObserver struct {
	es  *EventStore
	ctx context.Context
}

func (es *EventStore) startQueryMetrics(ctx context.Context) *queryMetricsObserver {
	return &queryMetricsObserver{es: es, ctx: ctx}
}

func (qmo *queryMetricsObserver) recordSuccess(result eventstore.QueryResult, duration time.Duration) {
	qmo.es.recordDuration(qmo.ctx, metricQueryDuration, duration, statusLabels(operationQuery, statusSuccess))
	qmo.es.recordValue(qmo.ctx, metricEventsQueried, float64(len(result.Events)), statusLabels(operationQuery, statusSuccess))
}

func (qmo *queryMetricsObserver) recordError(errorType string, duration time.Duration) {
	qmo.es.recordDuration(qmo.ctx, metricQueryDuration, duration, statusLabels(operationQuery, statusError))
	qmo.es.recordDatabaseError(qmo.ctx, operationQuery, errorType)
}

// appendMetricsObserver encapsulates the metrics collection for append operations.
type appendMetricsObserver struct {
	es  *EventStore
	ctx context.Context
}

func (es *EventStore) startAppendMetrics(ctx context.Context) *appendMetricsObserver {
	return &appendMetricsObserver{es: es, ctx: ctx}
}

func (amo *appendMetricsObserver) recordSuccess(eventCount int, duration time.Duration) {
	amo.es.recordDuration(amo.ctx, metricAppendDuration, duration, statusLabels(operationAppend, statusSuccess))
	amo.es.recordValue(amo.ctx, metricEventsAppended, float64(eventCount), statusLabels(operationAppend, statusSuccess))
}

func (amo *appendMetricsObserver) recordError(errorType string, duration time.Duration) {
	amo.es.recordDuration(amo.ctx, metricAppendDuration, duration, statusLabels(operationAppend, statusError))
	amo.es.recordDatabaseError(amo.ctx, operationAppend, errorType)
}

func (amo *appendMetricsObserver) recordConcurrencyConflict(duration time.Duration) {
	amo.es.recordDuration(amo.ctx, metricAppendDuration, duration, statusLabels(operationAppend, statusConflict))
	amo.es.incrementCounter(amo.ctx, metricConcurrencyConflicts, map[string]string{
		spanAttrOperation: operationAppend,
		"conflict_type":   "concurrency",
	})
}

// === Tracing ===

func formatDurationMS(duration time.Duration) string {
	return fmt.Sprintf("%.2f", float64(duration.Nanoseconds())/1e6)
}

// startTraceSpan starts a tracing span if the tracing collector is configured.
func (es *EventStore) startTraceSpan(
	ctx context.Context,
	name string,
	attrs map[string]string,
) (context.Context, SpanContext) {

	if es.tracingCollector != nil {
		return es.tracingCollector.StartSpan(ctx, name, attrs)
	}

	return ctx, nil
}

// finishTraceSpan sets the status and the attributes on the span and finishes it.
func (es *EventStore) finishTraceSpan(span SpanContext, status string, attrs map[string]string) {
	if es.tracingCollector == nil || span == nil {
		return
	}

	span.SetStatus(status)
	for key, value := range attrs {
		span.AddAttribute(key, value)
	}

	es.tracingCollector.FinishSpan(span, status, attrs)
}

// queryTracingObserver encapsulates the tracing span lifecycle of query operations.
type queryTracingObserver struct {
	es   *EventStore
	span SpanContext
}

func (es *EventStore) startQueryTracing(ctx context.Context) (*queryTracingObserver, context.Context) {
	newCtx, span := es.startTraceSpan(ctx, spanNameQuery, map[string]string{
		spanAttrOperation: operationQuery,
	})

	return &queryTracingObserver{es: es, span: span}, newCtx
}

func (qto *queryTracingObserver) finishSuccess(result eventstore.QueryResult, duration time.Duration) {
	qto.es.finishTraceSpan(qto.span, statusSuccess, map[string]string{
		spanAttrEventCount:  strconv.Itoa(len(result.Events)),
		spanAttrMaxSequence: strconv.FormatUint(result.MaxSequenceNumber, 10),
		spanAttrDurationMS:  formatDurationMS(duration),
	})
}

func (qto *queryTracingObserver) finishError(errorType string, duration time.Duration) {
	qto.es.finishTraceSpan(qto.span, statusError, map[string]string{
		spanAttrErrorType:  errorType,
		spanAttrDurationMS: formatDurationMS(duration),
	})
}

// appendTracingObserver encapsulates the tracing span lifecycle of append operations.
type appendTracingObserver struct {
	es   *EventStore
	span SpanContext
}

func (es *EventStore) startAppendTracing(
	ctx context.Context,
	events eventstore.Events,
	resolved eventstore.ResolvedScope,
) (*appendTracingObserver, context.Context) {

	attrs := map[string]string{
		spanAttrOperation:  operationAppend,
		spanAttrEventCount: strconv.Itoa(len(events)),
		spanAttrScope:      resolved.Kind.String(),
	}

	if resolved.Kind == eventstore.ScopedKind {
		attrs[spanAttrExpectedSeq] = strconv.FormatUint(resolved.Expected, 10)
	}

	if len(events) > 0 {
		attrs[spanAttrEventType] = events[0].EventType
	}

	newCtx, span := es.startTraceSpan(ctx, spanNameAppend, attrs)

	return &appendTracingObserver{es: es, span: span}, newCtx
}

func (ato *appendTracingObserver) finishSuccess(records eventstore.EventRecords, duration time.Duration) {
	ato.es.finishTraceSpan(ato.span, statusSuccess, map[string]string{
		spanAttrEventCount:  strconv.Itoa(len(records)),
		spanAttrMaxSequence: strconv.FormatUint(eventstore.ExtractMaxSequenceNumber(records), 10),
		spanAttrDurationMS:  formatDurationMS(duration),
	})
}

func (ato *appendTracingObserver) finishError(errorType string, duration time.Duration) {
	ato.es.finishTraceSpan(ato.span, statusError, map[string]string{
		spanAttrErrorType:  errorType,
		spanAttrDurationMS: formatDurationMS(duration),
	})
}
