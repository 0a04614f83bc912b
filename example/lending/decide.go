package lending

import (
	"errors"
	"time"

	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore"
)

// MaxBooksPerReader is the number of book copies a reader may have lent at the same time.
const MaxBooksPerReader = 10

var (
	ErrBookNotInCirculation  = errors.New("book is not in circulation")
	ErrBookAlreadyLent       = errors.New("book is already lent")
	ErrReaderHasTooManyBooks = errors.New("reader has too many books")
)

// Decision is the outcome of Decide: an event to append, and, for a rejected command, the reason.
// A Decision without an event is an idempotent no-op.
type Decision struct {
	Event  *eventstore.Event
	Reason error
}

// HasEventToAppend reports whether the decision produced an event.
func (d Decision) HasEventToAppend() bool {
	return d.Event != nil
}

// state represents the current state projected from the event history.
type state struct {
	bookIsNotInCirculation    bool
	bookIsLentToThisReader    bool
	bookIsLentToAnotherReader bool
	readerCurrentBookCount    int
}

// Decide determines whether the book copy should be lent to the reader.
//
//	GIVEN: A book copy with BookID and reader with ReaderID
//	WHEN: the command is received
//	THEN: BookCopyLentToReader is appended
//	ERROR: "book is not in circulation" if the book was not added or was removed
//	ERROR: "book is already lent" if the book is currently lent to another reader
//	ERROR: "reader has too many books" if the reader already has MaxBooksPerReader books lent
//	IDEMPOTENCY: If the book is already lent to this reader, nothing is appended
//
// Rejections produce a LendingBookToReaderFailed event.
func Decide(history eventstore.EventRecords, command Command) (Decision, error) {
	s := project(history, command.BookID.String(), command.ReaderID.String())

	switch {
	case s.bookIsLentToThisReader:
		return Decision{}, nil

	case s.bookIsNotInCirculation:
		return rejected(command, command.BookID.String(), ErrBookNotInCirculation)

	case s.bookIsLentToAnotherReader:
		return rejected(command, command.BookID.String(), ErrBookAlreadyLent)

	case s.readerCurrentBookCount >= MaxBooksPerReader:
		return rejected(command, command.ReaderID.String(), ErrReaderHasTooManyBooks)
	}

	event, err := eventstore.BuildEventFromValue(BookCopyLentToReaderEventType, map[string]any{
		payloadBookID:     command.BookID.String(),
		payloadReaderID:   command.ReaderID.String(),
		payloadOccurredAt: command.OccurredAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return Decision{}, err
	}

	return Decision{Event: &event}, nil
}

func rejected(command Command, entityID string, reason error) (Decision, error) {
	event, err := eventstore.BuildEventFromValue(LendingBookToReaderFailedEventType, map[string]any{
		payloadBookID:      command.BookID.String(),
		payloadReaderID:    command.ReaderID.String(),
		payloadOccurredAt:  command.OccurredAt.Format(time.RFC3339Nano),
		payloadFailureInfo: reason.Error() + ": " + entityID,
	})
	if err != nil {
		return Decision{}, err
	}

	return Decision{Event: &event, Reason: reason}, nil
}

// project builds the current state by replaying the history.
func project(history eventstore.EventRecords, bookID string, readerID string) state {
	s := state{bookIsNotInCirculation: true}

	for _, record := range history {
		eventBookID := stringField(record.Payload, payloadBookID)
		eventReaderID := stringField(record.Payload, payloadReaderID)

		switch record.EventType {
		case BookCopyAddedToCirculationEventType:
			if eventBookID == bookID {
				s.bookIsNotInCirculation = false
			}

		case BookCopyRemovedFromCirculationEventType:
			if eventBookID == bookID {
				s.bookIsNotInCirculation = true
			}

		case BookCopyLentToReaderEventType:
			if eventBookID == bookID {
				if eventReaderID == readerID {
					s.bookIsLentToThisReader = true
				} else {
					s.bookIsLentToAnotherReader = true
				}
			}

			if eventReaderID == readerID {
				s.readerCurrentBookCount++
			}

		case BookCopyReturnedByReaderEventType:
			if eventBookID == bookID {
				if eventReaderID == readerID {
					s.bookIsLentToThisReader = false
				} else {
					s.bookIsLentToAnotherReader = false
				}
			}

			if eventReaderID == readerID {
				s.readerCurrentBookCount--
			}
		}
	}

	return s
}

func stringField(payload eventstore.Value, key string) string {
	object, ok := payload.(eventstore.Object)
	if !ok {
		return ""
	}

	value, ok := object[key].(eventstore.String)
	if !ok {
		return ""
	}

	return string(value)
}
