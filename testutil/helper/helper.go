package helper

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore"
)

// Event types of the book lending domain the tests are written in.
const (
	BookCopyAddedToCirculationEventType     = "BookCopyAddedToCirculation"
	BookCopyRemovedFromCirculationEventType = "BookCopyRemovedFromCirculation"
	BookCopyLentToReaderEventType           = "BookCopyLentToReader"
	BookCopyReturnedByReaderEventType       = "BookCopyReturnedByReader"
)

// EventStore is the subset of the engine API the helpers need.
type EventStore interface {
	Query(ctx context.Context, criteria eventstore.FilterCriteria) (eventstore.QueryResult, error)
	Append(ctx context.Context, scope eventstore.AppendScope, events ...eventstore.Event) error
}

func GivenUniqueID(t testing.TB) uuid.UUID {
	id, err := uuid.NewV7()
	require.NoError(t, err, "error in arranging test data")

	return id
}

func FixtureBookCopyAddedToCirculation(t testing.TB, bookID uuid.UUID) eventstore.Event {
	return buildEvent(t, BookCopyAddedToCirculationEventType, map[string]any{
		"BookID":          bookID.String(),
		"ISBN":            "978-1-098-10013-1",
		"Title":           "Learning Domain-Driven Design",
		"Authors":         []any{"Vlad Khononov"},
		"Edition":         "First Edition",
		"Publisher":       "O'Reilly Media, Inc.",
		"PublicationYear": 2021,
	})
}

func FixtureBookCopyRemovedFromCirculation(t testing.TB, bookID uuid.UUID) eventstore.Event {
	return buildEvent(t, BookCopyRemovedFromCirculationEventType, map[string]any{
		"BookID": bookID.String(),
	})
}

func FixtureBookCopyLentToReader(t testing.TB, bookID uuid.UUID, readerID uuid.UUID) eventstore.Event {
	return buildEvent(t, BookCopyLentToReaderEventType, map[string]any{
		"BookID":   bookID.String(),
		"ReaderID": readerID.String(),
	})
}

func FixtureBookCopyReturnedByReader(t testing.TB, bookID uuid.UUID, readerID uuid.UUID) eventstore.Event {
	return buildEvent(t, BookCopyReturnedByReaderEventType, map[string]any{
		"BookID":   bookID.String(),
		"ReaderID": readerID.String(),
	})
}

func buildEvent(t testing.TB, eventType string, payload map[string]any) eventstore.Event {
	event, err := eventstore.BuildEventFromValue(eventType, payload)
	require.NoError(t, err, "error in arranging test data")

	return event
}

func FilterAllEventTypesForOneBook(bookID uuid.UUID) eventstore.Query {
	return eventstore.BuildEventQuery().
		Matching().
		AnyEventTypeOf(
			BookCopyAddedToCirculationEventType,
			BookCopyRemovedFromCirculationEventType,
			BookCopyLentToReaderEventType,
			BookCopyReturnedByReaderEventType).
		AndAnyPredicateOf(eventstore.P("BookID", eventstore.String(bookID.String()))).
		Finalize()
}

func FilterAllEventTypesForOneBookOrReader(bookID uuid.UUID, readerID uuid.UUID) eventstore.Query {
	return eventstore.BuildEventQuery().
		Matching().
		AnyEventTypeOf(
			BookCopyAddedToCirculationEventType,
			BookCopyRemovedFromCirculationEventType,
			BookCopyLentToReaderEventType,
			BookCopyReturnedByReaderEventType).
		AndAnyPredicateOf(
			eventstore.P("BookID", eventstore.String(bookID.String())),
			eventstore.P("ReaderID", eventstore.String(readerID.String()))).
		Finalize()
}

func GivenBookCopyAddedToCirculationWasAppended(t testing.TB, ctx context.Context, es EventStore, bookID uuid.UUID) {
	err := es.Append(ctx, eventstore.Unscoped(), FixtureBookCopyAddedToCirculation(t, bookID))
	require.NoError(t, err, "error in arranging test data")
}

func GivenBookCopyLentToReaderWasAppended(t testing.TB, ctx context.Context, es EventStore, bookID uuid.UUID, readerID uuid.UUID) {
	err := es.Append(ctx, eventstore.Unscoped(), FixtureBookCopyLentToReader(t, bookID, readerID))
	require.NoError(t, err, "error in arranging test data")
}

func QueryMaxSequenceNumberBeforeAppend(
	t testing.TB,
	ctx context.Context,
	es EventStore,
	criteria eventstore.FilterCriteria,
) eventstore.MaxSequenceNumberUint {

	result, err := es.Query(ctx, criteria)
	require.NoError(t, err, "error in arranging test data")

	return result.MaxSequenceNumber
}
