package config

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/stretchr/testify/require"
)

// SQLiteDSN returns the DSN of a fresh SQLite database file in a temporary directory of t.
// WAL mode lets readers run next to the single writer, the busy timeout makes writers wait for each other.
func SQLiteDSN(t testing.TB) string {
	return "file:" + filepath.Join(t.TempDir(), "events.db") + "?_busy_timeout=5000&_journal_mode=WAL"
}

// OpenSQLite opens a fresh SQLite database that is closed when t ends.
func OpenSQLite(t testing.TB) *sql.DB {
	db, err := sql.Open("sqlite3", SQLiteDSN(t))
	require.NoError(t, err, "error in opening the test database")

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}
