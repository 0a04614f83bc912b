// Package eventstore provides core abstractions and types for an append-only event log
// with optimistic concurrency control scoped to dynamic event streams.
//
// This package defines the types shared by all event store implementations: events and
// persisted event records, structured payload values, filters and queries, append scopes,
// the stream notifier contract, observability interfaces, and common error definitions.
//
// Events are selected in two phases:
//   - coarse, by event type, which an engine pushes down to its backend
//   - precise, by structural payload predicates (see IsSubset), which always runs in memory
//
// Common usage pattern:
//
//	query := eventstore.BuildEventQuery().
//		Matching().
//		AnyEventTypeOf("BookCopyLentToReader", "BookCopyReturnedByReader").
//		AndAnyPredicateOf(eventstore.P("BookID", eventstore.String(bookID))).
//		Finalize()
//
//	result, err := store.Query(ctx, query)
//	if err != nil {
//		// handle error
//	}
//
//	event, err := eventstore.BuildEvent("BookCopyLentToReader", payloadJSON)
//	scope := eventstore.ScopedTo(query).ExpectingMaxSequenceNumber(result.MaxSequenceNumber)
//	err = store.Append(ctx, scope, event)
//	if errors.Is(err, eventstore.ErrConcurrencyConflict) {
//		// query again, decide again, append again
//	}
package eventstore
