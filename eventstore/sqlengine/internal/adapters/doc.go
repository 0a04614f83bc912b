// Package adapters provide database adapter implementations for the SQL event store.
//
// Each adapter hands out sessions bound to one pooled connection, so that transaction control statements,
// the concurrency re-check, and the inserts of one append all run on the same connection.
// Supported connection types are pgxpool.Pool (optionally with a read replica), sql.DB, and sqlx.DB.
// Rows are returned as maps keyed by column name, which keeps the engine independent of
// the driver-specific scan types.
package adapters
