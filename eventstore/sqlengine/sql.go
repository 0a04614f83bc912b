package sqlengine

import (
	"errors"

	"github.com/doug-martin/goqu/v9"

	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore"
)

// buildSelectQuery builds the coarse query for the given criteria.
//
// Only the event types are pushed down, as the union of the event types of all filters.
// Payload predicates are never translated to SQL, they are matched in memory afterward.
// The result is always ordered by ascending sequence number, which the max sequence number extraction relies on.
func (es *EventStore) buildSelectQuery(query eventstore.Query, hasCriteria bool) (sqlQueryString, []any, error) {
	selectStmt := es.dialect.builder().
		From(es.eventTableName).
		Prepared(true).
		Select(colSequenceNumber, colOccurredAt, colEventType, colPayload).
		Order(goqu.C(colSequenceNumber).Asc())

	if hasCriteria {
		if eventTypes := query.EventTypes(); len(eventTypes) > 0 {
			selectStmt = selectStmt.Where(goqu.C(colEventType).In(eventTypes))
		}
	}

	sqlQuery, args, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return "", nil, errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, args, nil
}

// buildInsertQuery builds the insert for one event, returning the persisted row.
func (es *EventStore) buildInsertQuery(eventType string, payloadJSON string) (sqlQueryString, []any, error) {
	insertStmt := es.dialect.builder().
		Insert(es.eventTableName).
		Prepared(true).
		Rows(goqu.Record{
			colEventType: eventType,
			colPayload:   payloadJSON,
		})

	sqlQuery, args, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		return "", nil, errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	// the sqlite3 dialect of goqu doesn't know RETURNING, SQLite supports it since 3.35
	return sqlQuery + returningClause, args, nil
}
