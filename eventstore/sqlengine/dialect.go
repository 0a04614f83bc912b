package sqlengine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect import
	"github.com/jackc/pgx/v5"

	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore"
)

// Dialect selects the SQL flavor of the backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

// DialectFromDriverName maps a database/sql driver name to a Dialect.
func DialectFromDriverName(driverName string) (Dialect, error) {
	switch driverName {
	case "sqlite3", "sqlite":
		return DialectSQLite, nil
	case "postgres", "pgx", "pq":
		return DialectPostgres, nil
	default:
		return "", errors.Join(eventstore.ErrUnsupportedDialect, fmt.Errorf("driver %q", driverName))
	}
}

func (d Dialect) validate() error {
	switch d {
	case DialectSQLite, DialectPostgres:
		return nil
	default:
		return errors.Join(eventstore.ErrUnsupportedDialect, fmt.Errorf("dialect %q", string(d)))
	}
}

func (d Dialect) builder() goqu.DialectWrapper {
	return goqu.Dialect(string(d))
}

// beginStatements open a transaction that holds the write lock until it ends, so that appends are serialized.
//
// SQLite takes the database write lock with BEGIN IMMEDIATE.
// Postgres takes a SHARE ROW EXCLUSIVE lock on the events table, which conflicts with itself and with
// all writes, but not with plain reads.
func (d Dialect) beginStatements(eventTableName string) []string {
	switch d {
	case DialectPostgres:
		return []string{
			stmtBegin,
			fmt.Sprintf("LOCK TABLE %s IN SHARE ROW EXCLUSIVE MODE", quoteIdentifier(eventTableName)),
		}
	default:
		return []string{stmtBeginImmediate}
	}
}

// schemaStatements create the events table and its indexes if they don't exist yet.
func (d Dialect) schemaStatements(eventTableName string) []string {
	table := quoteIdentifier(eventTableName)
	baseName := strings.ReplaceAll(eventTableName, ".", "_")

	var createTable string

	switch d {
	case DialectPostgres:
		createTable = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	sequence_number BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	event_type TEXT NOT NULL,
	payload JSONB NOT NULL
)`, table)

	default:
		createTable = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	sequence_number INTEGER PRIMARY KEY AUTOINCREMENT,
	occurred_at TIMESTAMP NOT NULL DEFAULT (strftime('%%Y-%%m-%%d %%H:%%M:%%f', 'now')),
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL
)`, table)
	}

	return []string{
		createTable,
		fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			quoteIdentifier("idx_"+baseName+"_"+colEventType), table, colEventType,
		),
		fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			quoteIdentifier("idx_"+baseName+"_"+colOccurredAt), table, colOccurredAt,
		),
	}
}

// quoteIdentifier quotes a possibly schema-qualified identifier. Both dialects accept double quotes.
func quoteIdentifier(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}
