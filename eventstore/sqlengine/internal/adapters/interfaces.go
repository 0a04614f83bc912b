package adapters

import "context"

// AccessIntent tells an adapter whether a session will only read or also write.
type AccessIntent int

const (
	ReadIntent AccessIntent = iota
	WriteIntent
)

// Row is one result row, keyed by column name.
type Row = map[string]any

// Database defines the interface for database operations needed by the event store.
type Database interface {
	// Session acquires a connection for the duration of one operation. It must be released.
	Session(ctx context.Context, intent AccessIntent) (Session, error)
}

// Session is bound to one connection until it is released.
type Session interface {
	Prepare(query string) Statement

	// Exec runs a statement without result rows, e.g. BEGIN, COMMIT, ROLLBACK, or DDL.
	Exec(ctx context.Context, query string) error

	Release()
}

// Statement is a query with its bound arguments.
type Statement interface {
	// Bind returns a copy of the Statement with the given arguments.
	Bind(args ...any) Statement

	// All runs the query and returns all result rows.
	All(ctx context.Context) ([]Row, error)
}
