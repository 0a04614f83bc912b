package lending_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore"
	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore/sqlengine"
	"github.com/AntonStoeckl/scoped-eventstore-go/example/lending"
	testconfig "github.com/AntonStoeckl/scoped-eventstore-go/testutil/config"
	. "github.com/AntonStoeckl/scoped-eventstore-go/testutil/helper"
)

func givenEventStore(t *testing.T) *sqlengine.EventStore {
	t.Helper()

	es, err := sqlengine.NewEventStoreFromSQLite(testconfig.OpenSQLite(t))
	require.NoError(t, err)
	require.NoError(t, es.InitializeDatabase(context.Background()))

	return es
}

func eventTypesOf(t *testing.T, es *sqlengine.EventStore) []string {
	t.Helper()

	result, err := es.Query(context.Background(), nil)
	require.NoError(t, err)

	types := make([]string, 0, len(result.Events))
	for _, record := range result.Events {
		types = append(types, record.EventType)
	}

	return types
}

func Test_CommandHandler_Handle_When_TheBookIsAvailable_ItIsLent(t *testing.T) {
	// setup
	ctx := context.Background()
	es := givenEventStore(t)
	handler := lending.NewCommandHandler(es)
	bookID, readerID := GivenUniqueID(t), GivenUniqueID(t)

	// arrange
	GivenBookCopyAddedToCirculationWasAppended(t, ctx, es, bookID)

	// act
	result, err := handler.Handle(ctx, lending.BuildCommand(bookID, readerID, time.Now()))
	again, againErr := handler.Handle(ctx, lending.BuildCommand(bookID, readerID, time.Now()))

	// assert
	require.NoError(t, err)
	assert.False(t, result.Idempotent)
	require.NoError(t, againErr)
	assert.True(t, again.Idempotent)
	assert.Equal(t, []string{BookCopyAddedToCirculationEventType, BookCopyLentToReaderEventType}, eventTypesOf(t, es))
}

func Test_CommandHandler_Handle_When_TheBookIsNotInCirculation_TheFailureIsRecorded(t *testing.T) {
	// setup
	ctx := context.Background()
	es := givenEventStore(t)
	handler := lending.NewCommandHandler(es)

	// act
	_, err := handler.Handle(ctx, lending.BuildCommand(GivenUniqueID(t), GivenUniqueID(t), time.Now()))

	// assert
	assert.ErrorIs(t, err, lending.ErrBookNotInCirculation)
	assert.Equal(t, []string{lending.LendingBookToReaderFailedEventType}, eventTypesOf(t, es))
}

func Test_CommandHandler_Handle_When_ReadersCompeteForOneBook_ExactlyOneGetsIt(t *testing.T) {
	// setup
	ctx := context.Background()
	es := givenEventStore(t)
	handler := lending.NewCommandHandler(es, lending.WithRetryOptions(
		eventstore.WithMaxAttempts(20),
		eventstore.WithBaseDelay(time.Millisecond),
	))
	bookID := GivenUniqueID(t)

	// arrange
	GivenBookCopyAddedToCirculationWasAppended(t, ctx, es, bookID)

	const readers = 8
	errs := make([]error, readers)

	// act
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = handler.Handle(ctx, lending.BuildCommand(bookID, uuid.New(), time.Now()))
		}()
	}
	wg.Wait()

	// assert
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}

		assert.ErrorIs(t, err, lending.ErrBookAlreadyLent)
	}
	assert.Equal(t, 1, succeeded)

	lent, err := es.Query(ctx, eventstore.BuildEventQuery().
		Matching().
		AnyEventTypeOf(BookCopyLentToReaderEventType).
		AndAnyPredicateOf(eventstore.P("BookID", eventstore.String(bookID.String()))).
		Finalize())
	require.NoError(t, err)
	assert.Len(t, lent.Events, 1)
}
