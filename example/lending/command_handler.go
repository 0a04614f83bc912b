package lending

import (
	"context"

	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore"
)

// EventStore defines the interface needed by the CommandHandler.
type EventStore interface {
	Query(ctx context.Context, criteria eventstore.FilterCriteria) (eventstore.QueryResult, error)
	Append(ctx context.Context, scope eventstore.AppendScope, events ...eventstore.Event) error
}

// Result is the business outcome of a handled command.
type Result struct {
	Idempotent bool
}

// CommandHandler runs Query -> Decide -> Append and retries the cycle on concurrency conflicts.
type CommandHandler struct {
	eventStore   EventStore
	retryOptions []eventstore.RetryOption
}

// Option configures a CommandHandler.
type Option func(*CommandHandler)

// WithRetryOptions sets a custom retry configuration for the handler.
func WithRetryOptions(opts ...eventstore.RetryOption) Option {
	return func(h *CommandHandler) {
		h.retryOptions = opts
	}
}

// NewCommandHandler creates a new CommandHandler.
func NewCommandHandler(eventStore EventStore, opts ...Option) CommandHandler {
	handler := CommandHandler{eventStore: eventStore}

	for _, opt := range opts {
		opt(&handler)
	}

	return handler
}

// Handle executes the command. A rejected command returns the reason after its failure event was appended.
func (h CommandHandler) Handle(ctx context.Context, command Command) (Result, error) {
	var result Result

	err := eventstore.RetryOnConcurrencyConflict(ctx, func(retryCtx context.Context) error {
		idempotent, execErr := h.executeCommand(retryCtx, command)
		result.Idempotent = idempotent

		return execErr
	}, h.retryOptions...)

	return result, err
}

func (h CommandHandler) executeCommand(ctx context.Context, command Command) (bool, error) {
	scope := BuildScope(command.BookID, command.ReaderID)

	ctx = eventstore.WithStrongConsistency(ctx)

	queried, err := h.eventStore.Query(ctx, scope)
	if err != nil {
		return false, err
	}

	decision, err := Decide(queried.Events, command)
	if err != nil {
		return false, err
	}

	if !decision.HasEventToAppend() {
		return true, nil
	}

	appendScope := eventstore.ScopedTo(scope).ExpectingMaxSequenceNumber(queried.MaxSequenceNumber)
	if err = h.eventStore.Append(ctx, appendScope, *decision.Event); err != nil {
		return false, err
	}

	return false, decision.Reason
}
