package eventstore

import (
	"context"
	"errors"
	"fmt"
)

// ConsistencyLevel tells an engine with a read replica where a Query may be served from.
type ConsistencyLevel int

const (
	// StrongConsistency routes queries to the primary database, so a caller always sees its own appends.
	// It is the default, because the max sequence number of a query is usually fed into a scoped append.
	StrongConsistency ConsistencyLevel = iota

	// EventualConsistency allows queries to be served by a replica, which may lag behind the primary.
	// Use it for read models only, never to obtain the expected max sequence number of an append.
	EventualConsistency
)

// ErrUnknownConsistencyLevel is returned by ParseConsistencyLevel for anything but "strong" or "eventual".
var ErrUnknownConsistencyLevel = errors.New("unknown consistency level")

type contextKey string

// ConsistencyLevelKey is the context key holding the ConsistencyLevel.
const ConsistencyLevelKey contextKey = "eventstore.consistency_level"

// WithStrongConsistency returns a context that routes queries to the primary database.
func WithStrongConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, StrongConsistency)
}

// WithEventualConsistency returns a context that allows queries to be served by a replica.
//
// Example usage:
//
//	ctx = eventstore.WithEventualConsistency(ctx)
//	result, err := store.Query(ctx, query)
func WithEventualConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, EventualConsistency)
}

// GetConsistencyLevel extracts the ConsistencyLevel from the context, StrongConsistency if none is set.
func GetConsistencyLevel(ctx context.Context) ConsistencyLevel {
	if level, ok := ctx.Value(ConsistencyLevelKey).(ConsistencyLevel); ok {
		return level
	}

	return StrongConsistency
}

func (c ConsistencyLevel) String() string {
	switch c {
	case StrongConsistency:
		return "strong"
	case EventualConsistency:
		return "eventual"
	default:
		return "unknown"
	}
}

// ParseConsistencyLevel parses the String form of a ConsistencyLevel, an empty string is StrongConsistency.
func ParseConsistencyLevel(s string) (ConsistencyLevel, error) {
	switch s {
	case "", "strong":
		return StrongConsistency, nil
	case "eventual":
		return EventualConsistency, nil
	default:
		return StrongConsistency, fmt.Errorf("%w: %q", ErrUnknownConsistencyLevel, s)
	}
}

// WithConsistency returns a context carrying the given level.
func WithConsistency(ctx context.Context, level ConsistencyLevel) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, level)
}
