// Package config provides the database connections of the tests.
// SQLite databases are temporary files, Postgres is only used if EVENTSTORE_TEST_POSTGRES_DSN is set.
package config
