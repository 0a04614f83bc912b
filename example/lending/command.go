// Package lending is a worked example of a command handler on the event store: lending a book copy to a reader.
//
// The handler queries the events of the book and of the reader, decides on them, and appends the outcome
// scoped to the same query, so that a concurrent decision on the same book or reader makes it retry.
package lending

import (
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore"
)

// Event types of the lending domain.
const (
	BookCopyAddedToCirculationEventType     = "BookCopyAddedToCirculation"
	BookCopyRemovedFromCirculationEventType = "BookCopyRemovedFromCirculation"
	BookCopyLentToReaderEventType           = "BookCopyLentToReader"
	BookCopyReturnedByReaderEventType       = "BookCopyReturnedByReader"
	LendingBookToReaderFailedEventType      = "LendingBookToReaderFailed"
)

// Payload keys.
const (
	payloadBookID      = "BookID"
	payloadReaderID    = "ReaderID"
	payloadOccurredAt  = "OccurredAt"
	payloadFailureInfo = "FailureInfo"
)

// Command represents the intent to lend a book copy to a reader.
type Command struct {
	BookID     uuid.UUID
	ReaderID   uuid.UUID
	OccurredAt time.Time
}

// BuildCommand creates a new Command.
func BuildCommand(bookID uuid.UUID, readerID uuid.UUID, occurredAt time.Time) Command {
	return Command{
		BookID:     bookID,
		ReaderID:   readerID,
		OccurredAt: occurredAt.UTC(),
	}
}

// BuildScope returns the query a decision depends on: every lending relevant event of the book or of the reader.
func BuildScope(bookID uuid.UUID, readerID uuid.UUID) eventstore.Query {
	return eventstore.BuildEventQuery().
		Matching().
		AnyEventTypeOf(
			BookCopyAddedToCirculationEventType,
			BookCopyRemovedFromCirculationEventType,
			BookCopyLentToReaderEventType,
			BookCopyReturnedByReaderEventType).
		AndAnyPredicateOf(
			eventstore.P(payloadBookID, eventstore.String(bookID.String())),
			eventstore.P(payloadReaderID, eventstore.String(readerID.String()))).
		Finalize()
}
