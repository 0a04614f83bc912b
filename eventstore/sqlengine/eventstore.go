package sqlengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore"
	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore/memorynotifier"
	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore/sqlengine/internal/adapters"
)

const (
	defaultEventTableName = "events"

	logMsgBuildSelectQueryFailed = "failed to build select query"
	logMsgBuildInsertQueryFailed = "failed to build insert query"
	logMsgAcquireSessionFailed   = "failed to acquire database session"
	logMsgDBQueryFailed          = "database query execution failed"
	logMsgTransformRowsFailed    = "failed to transform database rows into event records"
	logMsgDBInsertFailed         = "database insert failed during event append"
	logMsgBeginFailed            = "failed to begin transaction"
	logMsgCommitFailed           = "failed to commit transaction"
	logMsgRollbackFailed         = "failed to roll back transaction"
	logMsgMarshalPayloadFailed   = "failed to marshal event payload"
	logMsgInvalidAppendScope     = "invalid append scope"
	logMsgInvalidEvent           = "invalid event"
	logMsgNotifyFailed           = "failed to notify subscribers about appended events"
	logMsgInitializeFailed       = "failed to initialize database schema"
	logMsgQueryCompleted         = "query completed"
	logMsgEventsAppended         = "events appended"
	logMsgConcurrencyConflict    = "concurrency conflict detected"
	logMsgDatabaseInitialized    = "database initialized"
	logMsgSQLExecuted            = "executed sql for: "
	logMsgOperation              = "eventstore operation: "

	logAttrError            = "error"
	logAttrQuery            = "query"
	logAttrEventType        = "event_type"
	logAttrEventCount       = "event_count"
	logAttrDurationMS       = "duration_ms"
	logAttrExpectedSequence = "expected_sequence"
	logAttrObservedSequence = "observed_sequence"
	logAttrScope            = "scope"
	logAttrTable            = "table"

	logActionQuery    = "query"
	logActionAppend   = "append"
	logActionRecheck  = "recheck"
	logActionSchema   = "schema"
	logActionTxStmt   = "transaction"
	operationQuery    = "query"
	operationAppend   = "append"
	operationNotify   = "notify"
	spanNameQuery     = "EventStore.Query"
	spanNameAppend    = "EventStore.Append"
	statusSuccess     = "success"
	statusError       = "error"
	statusConflict    = "conflict"
	errorTypeSession  = "session_error"
	errorTypeBuild    = "build_query_error"
	errorTypeDBQuery  = "database_query_error"
	errorTypeTransf   = "row_transform_error"
	errorTypeBegin    = "begin_error"
	errorTypeInsert   = "insert_error"
	errorTypeCommit   = "commit_error"
	errorTypeConflict = "concurrency_conflict"
	errorTypeNotify   = "notify_error"

	metricQueryDuration        = "eventstore_query_duration_seconds"
	metricAppendDuration       = "eventstore_append_duration_seconds"
	metricEventsQueried        = "eventstore_events_queried_total"
	metricEventsAppended       = "eventstore_events_appended_total"
	metricConcurrencyConflicts = "eventstore_concurrency_conflicts_total"
	metricDatabaseErrors       = "eventstore_database_errors_total"
	metricNotifyFailures       = "eventstore_notify_failures_total"

	spanAttrOperation   = "operation"
	spanAttrEventCount  = "event_count"
	spanAttrEventType   = "event_type"
	spanAttrMaxSequence = "max_sequence"
	spanAttrExpectedSeq = "expected_sequence"
	spanAttrScope       = "scope"
	spanAttrErrorType   = "error_type"
	spanAttrDurationMS  = "duration_ms"

	colSequenceNumber = "sequence_number"
	colOccurredAt     = "occurred_at"
	colEventType      = "event_type"
	colPayload        = "payload"

	returningClause = " RETURNING sequence_number, occurred_at, event_type, payload"

	stmtBegin          = "BEGIN"
	stmtBeginImmediate = "BEGIN IMMEDIATE TRANSACTION"
	stmtCommit         = "COMMIT"
	stmtRollback       = "ROLLBACK"
)

type sqlQueryString = string

type (
	Database     = adapters.Database
	Session      = adapters.Session
	Statement    = adapters.Statement
	Row          = adapters.Row
	AccessIntent = adapters.AccessIntent
)

const (
	ReadIntent  = adapters.ReadIntent
	WriteIntent = adapters.WriteIntent
)

// EventStore is an append-only event log on top of a SQL database.
//
// Queries push only the event types down to the database and match payload predicates in memory.
// Appends can be scoped to a Filter or Query: they then only succeed if the max sequence number of that scope
// is still the one the caller observed, which is re-checked inside the append transaction.
//
// An EventStore holds no locks of its own and is safe for concurrent use.
type EventStore struct {
	db               Database
	dialect          Dialect
	eventTableName   string
	notifier         eventstore.EventStreamNotifier
	logger           Logger
	metricsCollector MetricsCollector
	tracingCollector TracingCollector
	contextualLogger ContextualLogger
}

// NewEventStore creates a new EventStore on any Database implementation with optional configuration.
func NewEventStore(db Database, dialect Dialect, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	es := &EventStore{
		db:             db,
		dialect:        dialect,
		eventTableName: defaultEventTableName,
	}

	for _, option := range options {
		if err := option(es); err != nil {
			return nil, err
		}
	}

	if err := es.dialect.validate(); err != nil {
		return nil, err
	}

	if es.notifier == nil {
		es.notifier = memorynotifier.NewMemoryEventStreamNotifier()
	}

	return es, nil
}

// NewEventStoreFromPGXPool creates a new Postgres EventStore using a pgx Pool with optional configuration.
func NewEventStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return NewEventStore(adapters.NewPGXAdapter(db), DialectPostgres, options...)
}

// NewEventStoreFromPGXPoolWithReplica creates a new Postgres EventStore using a primary and a replica pgx Pool.
// Queries are served by the replica only if their context carries eventstore.EventualConsistency.
func NewEventStoreFromPGXPoolWithReplica(primary *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (*EventStore, error) {
	if primary == nil || replica == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return NewEventStore(adapters.NewPGXAdapterWithReplica(primary, replica), DialectPostgres, options...)
}

// NewEventStoreFromSQLDB creates a new EventStore using a sql.DB with optional configuration.
// The dialect defaults to Postgres, use WithDialect(DialectSQLite) for SQLite.
func NewEventStoreFromSQLDB(db *sql.DB, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return NewEventStore(adapters.NewSQLAdapter(db), DialectPostgres, options...)
}

// NewEventStoreFromSQLite creates a new SQLite EventStore using a sql.DB opened with the sqlite3 driver.
func NewEventStoreFromSQLite(db *sql.DB, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return NewEventStore(adapters.NewSQLAdapter(db), DialectSQLite, options...)
}

// NewEventStoreFromSQLX creates a new EventStore using a sqlx.DB with optional configuration.
// The dialect is derived from the driver name of the sqlx.DB.
func NewEventStoreFromSQLX(db *sqlx.DB, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	dialect, err := DialectFromDriverName(db.DriverName())
	if err != nil {
		return nil, err
	}

	return NewEventStore(adapters.NewSQLXAdapter(db), dialect, options...)
}

// NewDatabaseFromSQLDB wraps a sql.DB into a Database, e.g. to decorate it before passing it to NewEventStore.
func NewDatabaseFromSQLDB(db *sql.DB) Database {
	return adapters.NewSQLAdapter(db)
}

// Dialect returns the SQL dialect of the EventStore.
func (es *EventStore) Dialect() Dialect {
	return es.dialect
}

// Query returns the events matching the criteria (a Filter or a Query) in ascending sequence number order,
// together with their max sequence number, which is 0 if nothing matches.
//
// Nil criteria return the whole event log. A Query without filters matches nothing.
func (es *EventStore) Query(ctx context.Context, criteria eventstore.FilterCriteria) (eventstore.QueryResult, error) {
	start := time.Now()
	tracer, ctx := es.startQueryTracing(ctx)
	metrics := es.startQueryMetrics(ctx)

	query, hasCriteria := eventstore.NormalizeCriteria(criteria)
	if hasCriteria && query.IsEmpty() {
		result := eventstore.NewQueryResult(eventstore.EventRecords{})
		tracer.finishSuccess(result, time.Since(start))
		metrics.recordSuccess(result, time.Since(start))

		return result, nil
	}

	session, err := es.acquireSession(ctx, ReadIntent)
	if err != nil {
		tracer.finishError(errorTypeSession, time.Since(start))
		metrics.recordError(errorTypeSession, time.Since(start))

		return eventstore.QueryResult{}, err
	}
	defer session.Release()

	result, errorType, err := es.runQuery(ctx, session, query, hasCriteria, logActionQuery)
	if err != nil {
		tracer.finishError(errorType, time.Since(start))
		metrics.recordError(errorType, time.Since(start))

		return eventstore.QueryResult{}, err
	}

	duration := time.Since(start)
	tracer.finishSuccess(result, duration)
	metrics.recordSuccess(result, duration)

	es.logOperation(
		ctx,
		logMsgQueryCompleted,
		logAttrEventCount, len(result.Events),
		logAttrDurationMS, es.toMilliseconds(duration),
	)

	return result, nil
}

// runQuery runs the coarse SQL query on the session and applies the precise filter to the result.
func (es *EventStore) runQuery(
	ctx context.Context,
	session Session,
	query eventstore.Query,
	hasCriteria bool,
	action string,
) (eventstore.QueryResult, string, error) {

	sqlQuery, args, buildErr := es.buildSelectQuery(query, hasCriteria)
	if buildErr != nil {
		es.logError(ctx, logMsgBuildSelectQueryFailed, buildErr)
		return eventstore.QueryResult{}, errorTypeBuild, buildErr
	}

	start := time.Now()
	rows, queryErr := session.Prepare(sqlQuery).Bind(args...).All(ctx)
	es.logQueryWithDuration(ctx, sqlQuery, action, time.Since(start))

	if queryErr != nil {
		es.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return eventstore.QueryResult{}, errorTypeDBQuery, errors.Join(eventstore.ErrQueryingEventsFailed, queryErr)
	}

	records, transformErr := transformRows(rows)
	if transformErr != nil {
		es.logError(ctx, logMsgTransformRowsFailed, transformErr)
		return eventstore.QueryResult{}, errorTypeTransf, transformErr
	}

	if hasCriteria {
		records = eventstore.FilterRecordsByQuery(records, query)
	}

	return eventstore.NewQueryResult(records), "", nil
}

type pendingInsert struct {
	eventType string
	sqlQuery  sqlQueryString
	args      []any
}

// Append appends the events atomically, in the given order.
//
// With eventstore.Unscoped() the events are appended unconditionally.
// With eventstore.ScopedTo(criteria).ExpectingMaxSequenceNumber(maxSeq) the max sequence number of the criteria is
// computed again inside the transaction, and eventstore.ErrConcurrencyConflict is returned if it differs from maxSeq.
// The criteria should be the ones the caller queried with before making its decision.
//
// No events is a no-op. Subscribers are notified after the commit, with exactly the appended records.
// A failed notification doesn't fail the append, it is logged and counted instead.
func (es *EventStore) Append(ctx context.Context, scope eventstore.AppendScope, events ...eventstore.Event) error {
	resolved, scopeErr := scope.Resolve()
	if scopeErr != nil {
		es.logError(ctx, logMsgInvalidAppendScope, scopeErr)
		return scopeErr
	}

	for _, event := range events {
		if err := event.Validate(); err != nil {
			es.logError(ctx, logMsgInvalidEvent, err)
			return err
		}
	}

	if len(events) == 0 {
		return nil
	}

	inserts, buildErr := es.buildInserts(ctx, events)
	if buildErr != nil {
		return buildErr
	}

	start := time.Now()
	tracer, ctx := es.startAppendTracing(ctx, events, resolved)
	metrics := es.startAppendMetrics(ctx)

	records, errorType, err := es.appendInTransaction(ctx, resolved, inserts)
	if err != nil {
		duration := time.Since(start)

		if errors.Is(err, eventstore.ErrConcurrencyConflict) {
			tracer.finishError(errorTypeConflict, duration)
			metrics.recordConcurrencyConflict(duration)

			return err
		}

		tracer.finishError(errorType, duration)
		metrics.recordError(errorType, duration)

		return err
	}

	duration := time.Since(start)
	tracer.finishSuccess(records, duration)
	metrics.recordSuccess(len(records), duration)

	es.logOperation(
		ctx,
		logMsgEventsAppended,
		logAttrEventCount, len(records),
		logAttrScope, resolved.Kind.String(),
		logAttrDurationMS, es.toMilliseconds(duration),
	)

	es.notify(ctx, records)

	return nil
}

func (es *EventStore) buildInserts(ctx context.Context, events eventstore.Events) ([]pendingInsert, error) {
	inserts := make([]pendingInsert, 0, len(events))

	for _, event := range events {
		payloadJSON, marshalErr := eventstore.MarshalValue(event.Payload)
		if marshalErr != nil {
			es.logError(ctx, logMsgMarshalPayloadFailed, marshalErr, logAttrEventType, event.EventType)
			return nil, errors.Join(eventstore.ErrInvalidPayloadJSON, marshalErr)
		}

		sqlQuery, args, buildErr := es.buildInsertQuery(event.EventType, string(payloadJSON))
		if buildErr != nil {
			es.logError(ctx, logMsgBuildInsertQueryFailed, buildErr, logAttrEventType, event.EventType)
			return nil, buildErr
		}

		inserts = append(inserts, pendingInsert{eventType: event.EventType, sqlQuery: sqlQuery, args: args})
	}

	return inserts, nil
}

// appendInTransaction runs the concurrency re-check and the inserts in one transaction.
// Once the transaction is open, every failure rolls it back before the error is returned.
func (es *EventStore) appendInTransaction(
	ctx context.Context,
	resolved eventstore.ResolvedScope,
	inserts []pendingInsert,
) (eventstore.EventRecords, string, error) {

	session, err := es.acquireSession(ctx, WriteIntent)
	if err != nil {
		return nil, errorTypeSession, err
	}
	defer session.Release()

	if beginErr := es.begin(ctx, session); beginErr != nil {
		return nil, errorTypeBegin, beginErr
	}

	records, errorType, txErr := es.appendWithinTransaction(ctx, session, resolved, inserts)
	if txErr != nil {
		return nil, errorType, es.rollback(ctx, session, txErr)
	}

	start := time.Now()
	commitErr := session.Exec(ctx, stmtCommit)
	es.logQueryWithDuration(ctx, stmtCommit, logActionTxStmt, time.Since(start))

	if commitErr != nil {
		es.logError(ctx, logMsgCommitFailed, commitErr)
		return nil, errorTypeCommit, es.rollback(ctx, session, errors.Join(eventstore.ErrCommitTransactionFailed, commitErr))
	}

	return records, "", nil
}

func (es *EventStore) appendWithinTransaction(
	ctx context.Context,
	session Session,
	resolved eventstore.ResolvedScope,
	inserts []pendingInsert,
) (eventstore.EventRecords, string, error) {

	if resolved.Kind == eventstore.ScopedKind {
		current, errorType, queryErr := es.runQuery(ctx, session, resolved.Query, true, logActionRecheck)
		if queryErr != nil {
			return nil, errorType, queryErr
		}

		if current.MaxSequenceNumber != resolved.Expected {
			es.logOperation(
				ctx,
				logMsgConcurrencyConflict,
				logAttrExpectedSequence, resolved.Expected,
				logAttrObservedSequence, current.MaxSequenceNumber,
			)

			return nil, errorTypeConflict, errors.Join(
				eventstore.ErrConcurrencyConflict,
				fmt.Errorf("expected max sequence number %d, found %d", resolved.Expected, current.MaxSequenceNumber),
			)
		}
	}

	records := make(eventstore.EventRecords, 0, len(inserts))

	for _, insert := range inserts {
		start := time.Now()
		rows, insertErr := session.Prepare(insert.sqlQuery).Bind(insert.args...).All(ctx)
		es.logQueryWithDuration(ctx, insert.sqlQuery, logActionAppend, time.Since(start))

		if insertErr != nil {
			es.logError(ctx, logMsgDBInsertFailed, insertErr, logAttrEventType, insert.eventType)
			return nil, errorTypeInsert, errors.Join(eventstore.ErrAppendingEventFailed, insertErr)
		}

		if len(rows) != 1 {
			return nil, errorTypeInsert, errors.Join(
				eventstore.ErrAppendingEventFailed,
				fmt.Errorf("insert returned %d rows instead of 1", len(rows)),
			)
		}

		record, transformErr := transformRow(rows[0])
		if transformErr != nil {
			return nil, errorTypeTransf, errors.Join(eventstore.ErrAppendingEventFailed, transformErr)
		}

		records = append(records, record)
	}

	return records, "", nil
}

func (es *EventStore) begin(ctx context.Context, session Session) error {
	for i, stmt := range es.dialect.beginStatements(es.eventTableName) {
		start := time.Now()
		execErr := session.Exec(ctx, stmt)
		es.logQueryWithDuration(ctx, stmt, logActionTxStmt, time.Since(start))

		if execErr != nil {
			es.logError(ctx, logMsgBeginFailed, execErr, logAttrQuery, stmt)
			beginErr := errors.Join(eventstore.ErrBeginTransactionFailed, execErr)

			if i > 0 {
				return es.rollback(ctx, session, beginErr)
			}

			return beginErr
		}
	}

	return nil
}

// rollback ends the transaction even if ctx is already cancelled. A failed rollback is joined to cause.
func (es *EventStore) rollback(ctx context.Context, session Session, cause error) error {
	rollbackCtx := context.WithoutCancel(ctx)

	start := time.Now()
	rollbackErr := session.Exec(rollbackCtx, stmtRollback)
	es.logQueryWithDuration(rollbackCtx, stmtRollback, logActionTxStmt, time.Since(start))

	if rollbackErr != nil {
		es.logWarn(rollbackCtx, logMsgRollbackFailed, logAttrError, rollbackErr.Error())
		return errors.Join(cause, eventstore.ErrRollbackTransactionFailed, rollbackErr)
	}

	return cause
}

func (es *EventStore) notify(ctx context.Context, records eventstore.EventRecords) {
	if notifyErr := es.notifier.Notify(ctx, records); notifyErr != nil {
		es.logWarn(ctx, logMsgNotifyFailed, logAttrError, notifyErr.Error(), logAttrEventCount, len(records))
		es.recordNotifyFailure(ctx)
	}
}

func (es *EventStore) acquireSession(ctx context.Context, intent AccessIntent) (Session, error) {
	session, err := es.db.Session(ctx, intent)
	if err != nil {
		es.logError(ctx, logMsgAcquireSessionFailed, err)
		return nil, errors.Join(eventstore.ErrAcquiringSessionFailed, err)
	}

	return session, nil
}

// Subscribe registers handle for the records of all future successful appends.
func (es *EventStore) Subscribe(handle eventstore.HandleEvents) (eventstore.EventSubscription, error) {
	return es.notifier.Subscribe(handle)
}

// InitializeDatabase creates the events table and its indexes if they don't exist yet.
func (es *EventStore) InitializeDatabase(ctx context.Context) error {
	session, err := es.acquireSession(ctx, WriteIntent)
	if err != nil {
		return err
	}
	defer session.Release()

	for _, stmt := range es.dialect.schemaStatements(es.eventTableName) {
		start := time.Now()
		execErr := session.Exec(ctx, stmt)
		es.logQueryWithDuration(ctx, stmt, logActionSchema, time.Since(start))

		if execErr != nil {
			es.logError(ctx, logMsgInitializeFailed, execErr, logAttrQuery, stmt)
			return errors.Join(eventstore.ErrInitializingDatabaseFailed, execErr)
		}
	}

	es.logOperation(ctx, logMsgDatabaseInitialized, logAttrTable, es.eventTableName)

	return nil
}

// Close closes the notifier. The database connection is owned by the caller and stays open.
func (es *EventStore) Close() error {
	return es.notifier.Close()
}
