package memorynotifier_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore"
	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore/memorynotifier"
)

func someRecords() eventstore.EventRecords {
	return eventstore.EventRecords{
		{SequenceNumber: 1, EventType: "A", Payload: eventstore.Object{}},
		{SequenceNumber: 2, EventType: "B", Payload: eventstore.Object{}},
	}
}

func Test_Notify_When_ThereAreSubscribers_AllReceiveTheRecordsInSubscriptionOrder(t *testing.T) {
	// setup
	notifier := memorynotifier.NewMemoryEventStreamNotifier()
	defer func() { _ = notifier.Close() }()

	var mu sync.Mutex
	var deliveries []string
	var received eventstore.EventRecords

	// arrange
	_, err := notifier.Subscribe(func(_ context.Context, records eventstore.EventRecords) error {
		mu.Lock()
		defer mu.Unlock()
		deliveries = append(deliveries, "first")
		received = records

		return nil
	})
	require.NoError(t, err)

	_, err = notifier.Subscribe(func(_ context.Context, _ eventstore.EventRecords) error {
		mu.Lock()
		defer mu.Unlock()
		deliveries = append(deliveries, "second")

		return nil
	})
	require.NoError(t, err)

	// act
	err = notifier.Notify(context.Background(), someRecords())

	// assert
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, deliveries)
	assert.Equal(t, someRecords(), received)
}

func Test_Notify_When_ASubscriberFailsOrPanics_TheOthersStillReceive(t *testing.T) {
	// setup
	notifier := memorynotifier.NewMemoryEventStreamNotifier()
	handlerErr := errors.New("read model is down")
	delivered := 0

	// arrange
	_, _ = notifier.Subscribe(func(_ context.Context, _ eventstore.EventRecords) error { return handlerErr })
	_, _ = notifier.Subscribe(func(_ context.Context, _ eventstore.EventRecords) error { panic("boom") })
	_, _ = notifier.Subscribe(func(_ context.Context, _ eventstore.EventRecords) error {
		delivered++
		return nil
	})

	// act
	err := notifier.Notify(context.Background(), someRecords())

	// assert
	assert.ErrorIs(t, err, eventstore.ErrNotifyingSubscribersFailed)
	assert.ErrorIs(t, err, handlerErr)
	assert.ErrorContains(t, err, "panicked: boom")
	assert.Equal(t, 1, delivered)
}

func Test_Unsubscribe_When_Called_NoMoreRecordsAreDelivered(t *testing.T) {
	// setup
	notifier := memorynotifier.NewMemoryEventStreamNotifier()
	delivered := 0

	// arrange
	sub, err := notifier.Subscribe(func(_ context.Context, _ eventstore.EventRecords) error {
		delivered++
		return nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID())

	// act
	assert.NoError(t, sub.Unsubscribe())
	assert.NoError(t, sub.Unsubscribe())
	err = notifier.Notify(context.Background(), someRecords())

	// assert
	assert.NoError(t, err)
	assert.Equal(t, 0, delivered)
	assert.Equal(t, 0, notifier.SubscriberCount())
}

func Test_Notify_When_RecordsAreEmpty_NothingIsDelivered(t *testing.T) {
	// setup
	notifier := memorynotifier.NewMemoryEventStreamNotifier()
	delivered := 0
	_, _ = notifier.Subscribe(func(_ context.Context, _ eventstore.EventRecords) error {
		delivered++
		return nil
	})

	// act
	err := notifier.Notify(context.Background(), nil)

	// assert
	assert.NoError(t, err)
	assert.Equal(t, 0, delivered)
}

func Test_Close_When_Closed_SubscribeAndNotifyFail(t *testing.T) {
	// setup
	notifier := memorynotifier.NewMemoryEventStreamNotifier()
	_, _ = notifier.Subscribe(func(_ context.Context, _ eventstore.EventRecords) error { return nil })

	// act
	assert.NoError(t, notifier.Close())
	_, subscribeErr := notifier.Subscribe(func(_ context.Context, _ eventstore.EventRecords) error { return nil })
	notifyErr := notifier.Notify(context.Background(), someRecords())

	// assert
	assert.ErrorIs(t, subscribeErr, eventstore.ErrNotifierClosed)
	assert.ErrorIs(t, notifyErr, eventstore.ErrNotifierClosed)
	assert.Equal(t, 0, notifier.SubscriberCount())
}

func Test_Subscribe_When_HandlerIsNil(t *testing.T) {
	// act
	_, err := memorynotifier.NewMemoryEventStreamNotifier().Subscribe(nil)

	// assert
	assert.ErrorIs(t, err, memorynotifier.ErrNilHandler)
}
