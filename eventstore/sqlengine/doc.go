// Package sqlengine provides a SQL implementation of the eventstore, for SQLite and PostgreSQL.
//
// Events are stored in one append-only table. Queries only push the event types down to the database,
// the payload predicates of the filters are matched in memory. Appends run in a transaction that holds
// the write lock of the backend (BEGIN IMMEDIATE on SQLite, a table lock on Postgres), so the concurrency
// re-check of a scoped append and its inserts can't interleave with another append.
//
// Key features:
//   - Multiple database adapter support (pgx with optional read replica, sql.DB, sqlx.DB)
//   - Atomic multi-event appends with scoped optimistic concurrency control
//   - Notification of subscribers after commit
//   - Optional logging, contextual logging, metrics, and tracing
//
// Usage examples:
//
//	db, _ := sql.Open("sqlite3", "file:events.db?_busy_timeout=5000&_journal_mode=WAL")
//	store, _ := sqlengine.NewEventStoreFromSQLite(db, sqlengine.WithLogger(slog.Default()))
//	_ = store.InitializeDatabase(ctx)
//
//	pool, _ := pgxpool.New(ctx, dsn)
//	store, _ := sqlengine.NewEventStoreFromPGXPool(pool, sqlengine.WithTableName("my_events"))
//
//	result, _ := store.Query(ctx, query)
//	scope := eventstore.ScopedTo(query).ExpectingMaxSequenceNumber(result.MaxSequenceNumber)
//	err := store.Append(ctx, scope, newEvent)
package sqlengine
