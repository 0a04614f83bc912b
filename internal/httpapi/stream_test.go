package httpapi_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore"
	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore/memorynotifier"
	"github.com/AntonStoeckl/scoped-eventstore-go/internal/httpapi"
	"github.com/AntonStoeckl/scoped-eventstore-go/internal/wire"
	. "github.com/AntonStoeckl/scoped-eventstore-go/testutil/helper"
)

type sseEvent struct {
	name string
	data string
}

// readSSEvent reads lines up to the next blank line.
func readSSEvent(t *testing.T, reader *bufio.Reader) sseEvent {
	t.Helper()

	var event sseEvent

	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)

		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if event.name != "" || event.data != "" {
				return event
			}
		case strings.HasPrefix(line, "event:"):
			event.name = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			event.data += strings.TrimPrefix(line, "data:")
		}
	}
}

func openStream(t *testing.T, server *httptest.Server) (*bufio.Reader, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/v1/events/stream", nil)
	require.NoError(t, err)

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	return bufio.NewReader(resp.Body), cancel
}

func Test_Stream_When_EventsAreAppended_TheyArePushedToTheClient(t *testing.T) {
	// setup
	ctx := context.Background()
	es := givenStore(t)
	server := httptest.NewServer(httpapi.NewRouter(es, nil))
	defer server.Close()

	reader, cancel := openStream(t, server)
	defer cancel()

	subscribed := readSSEvent(t, reader)
	require.Equal(t, "subscribed", subscribed.name)

	// act
	bookID := GivenUniqueID(t)
	require.NoError(t, es.Append(ctx, eventstore.Unscoped(),
		FixtureBookCopyAddedToCirculation(t, bookID),
		FixtureBookCopyLentToReader(t, bookID, GivenUniqueID(t)),
	))

	// assert
	event := readSSEvent(t, reader)
	assert.Equal(t, "records", event.name)

	var records []wire.Record
	require.NoError(t, json.Unmarshal([]byte(event.data), &records))
	require.Len(t, records, 2)
	assert.Equal(t, uint64(1), records[0].SequenceNumber)
	assert.Equal(t, BookCopyAddedToCirculationEventType, records[0].EventType)
	assert.Equal(t, BookCopyLentToReaderEventType, records[1].EventType)
}

type capturingStore struct {
	httpapi.Store
	subscribed chan eventstore.HandleEvents
}

func (s capturingStore) Subscribe(handle eventstore.HandleEvents) (eventstore.EventSubscription, error) {
	sub, err := memorynotifier.NewMemoryEventStreamNotifier().Subscribe(handle)
	s.subscribed <- handle

	return sub, err
}

func Test_Stream_When_TheClientLags_ItIsDisconnected(t *testing.T) {
	// setup
	ctx := context.Background()
	store := capturingStore{subscribed: make(chan eventstore.HandleEvents, 1)}
	server := httptest.NewServer(httpapi.NewRouter(store, nil, httpapi.WithStreamBuffer(1)))
	defer server.Close()

	reader, cancel := openStream(t, server)
	defer cancel()
	require.Equal(t, "subscribed", readSSEvent(t, reader).name)
	handle := <-store.subscribed

	// act
	var handleErr error
	for i := 0; i < 100_000 && handleErr == nil; i++ {
		handleErr = handle(ctx, eventstore.EventRecords{{SequenceNumber: uint64(i + 1), EventType: "A", Payload: eventstore.Object{}}})
	}

	// assert
	require.ErrorIs(t, handleErr, httpapi.ErrStreamClientLagging)

	for {
		event := readSSEvent(t, reader)
		if event.name == "lagged" {
			assert.Contains(t, event.data, httpapi.ErrStreamClientLagging.Error())
			break
		}

		require.Equal(t, "records", event.name)
	}
}
