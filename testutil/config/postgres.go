package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// PostgresDSNEnv names the environment variable with the DSN of the Postgres test database.
const PostgresDSNEnv = "EVENTSTORE_TEST_POSTGRES_DSN"

// PostgresDSN returns the DSN of the Postgres test database, or skips t if none is configured.
func PostgresDSN(t testing.TB) string {
	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s is not set", PostgresDSNEnv)
	}

	return dsn
}

// PostgresPGXPool connects a pgxpool.Pool to the Postgres test database that is closed when t ends.
func PostgresPGXPool(t testing.TB) *pgxpool.Pool {
	const defaultMaxConnections = int32(20)
	const defaultConnectTimeout = time.Second * 5

	poolConfig, err := pgxpool.ParseConfig(PostgresDSN(t))
	require.NoError(t, err, "error in parsing the test database DSN")

	poolConfig.MaxConns = defaultMaxConnections
	poolConfig.ConnConfig.ConnectTimeout = defaultConnectTimeout

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	require.NoError(t, err, "error in connecting to the test database")

	t.Cleanup(pool.Close)

	return pool
}
