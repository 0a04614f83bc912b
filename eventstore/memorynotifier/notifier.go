// Package memorynotifier provides an in-process eventstore.EventStreamNotifier.
//
// Records are delivered synchronously, to all subscribers in the order they subscribed.
// A failing or panicking subscriber does not stop the delivery to the others; all failures are
// returned from Notify, joined into one error.
package memorynotifier

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore"
)

var ErrNilHandler = errors.New("subscription handler is nil")

type subscriber struct {
	id     string
	handle eventstore.HandleEvents
}

// MemoryEventStreamNotifier keeps its subscribers in memory.
type MemoryEventStreamNotifier struct {
	mu          sync.RWMutex
	subscribers []subscriber
	closed      bool
}

// NewMemoryEventStreamNotifier creates an open notifier without subscribers.
func NewMemoryEventStreamNotifier() *MemoryEventStreamNotifier {
	return &MemoryEventStreamNotifier{}
}

// Subscribe registers handle for all records notified from now on.
func (n *MemoryEventStreamNotifier) Subscribe(handle eventstore.HandleEvents) (eventstore.EventSubscription, error) {
	if handle == nil {
		return nil, ErrNilHandler
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, eventstore.ErrNotifierClosed
	}

	sub := subscriber{id: uuid.NewString(), handle: handle}
	n.subscribers = append(n.subscribers, sub)

	return &subscription{id: sub.id, notifier: n}, nil
}

// Notify delivers records to every current subscriber. Empty records are not delivered.
func (n *MemoryEventStreamNotifier) Notify(ctx context.Context, records eventstore.EventRecords) error {
	n.mu.RLock()
	if n.closed {
		n.mu.RUnlock()
		return eventstore.ErrNotifierClosed
	}

	subscribers := slices.Clone(n.subscribers)
	n.mu.RUnlock()

	if len(records) == 0 {
		return nil
	}

	var errs []error

	for _, sub := range subscribers {
		if err := deliver(ctx, sub, records); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{eventstore.ErrNotifyingSubscribersFailed}, errs...)...)
	}

	return nil
}

func deliver(ctx context.Context, sub subscriber, records eventstore.EventRecords) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber %s panicked: %v", sub.id, r)
		}
	}()

	if handleErr := sub.handle(ctx, slices.Clone(records)); handleErr != nil {
		return fmt.Errorf("subscriber %s: %w", sub.id, handleErr)
	}

	return nil
}

// Close drops all subscribers. Later calls to Subscribe and Notify fail with eventstore.ErrNotifierClosed.
func (n *MemoryEventStreamNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.closed = true
	n.subscribers = nil

	return nil
}

// SubscriberCount returns the number of current subscribers.
func (n *MemoryEventStreamNotifier) SubscriberCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return len(n.subscribers)
}

func (n *MemoryEventStreamNotifier) unsubscribe(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.subscribers = slices.DeleteFunc(n.subscribers, func(s subscriber) bool {
		return s.id == id
	})
}

type subscription struct {
	id       string
	notifier *MemoryEventStreamNotifier
	once     sync.Once
}

func (s *subscription) ID() string {
	return s.id
}

func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.notifier.unsubscribe(s.id)
	})

	return nil
}
