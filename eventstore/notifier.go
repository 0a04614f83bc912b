package eventstore

import (
	"context"
)

// HandleEvents receives the records of one successful append, in insertion order.
type HandleEvents func(ctx context.Context, records EventRecords) error

// EventSubscription is the handle returned by Subscribe.
type EventSubscription interface {
	ID() string

	// Unsubscribe stops the delivery of further records. Calling it more than once is a no-op.
	Unsubscribe() error
}

// EventStreamNotifier delivers appended records to subscribers.
//
// An EventStore calls Notify only after the append was committed, with exactly the records that were inserted.
type EventStreamNotifier interface {
	Subscribe(handle HandleEvents) (EventSubscription, error)
	Notify(ctx context.Context, records EventRecords) error
	Close() error
}
