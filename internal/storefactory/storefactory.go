// Package storefactory opens the configured database backend and builds a sqlengine.EventStore on it.
package storefactory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver for the sqldb and sqlx backends
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore/sqlengine"
	"github.com/AntonStoeckl/scoped-eventstore-go/internal/config"
)

const (
	driverSQLite3  = "sqlite3"
	driverPostgres = "postgres"

	defaultMaxConns          = int32(8)
	defaultMinConns          = int32(1)
	defaultMaxConnLifetime   = time.Hour
	defaultMaxConnIdleTime   = 5 * time.Minute
	defaultHealthCheckPeriod = time.Minute
	defaultConnectTimeout    = 5 * time.Second
)

var (
	ErrUnsupportedBackend = errors.New("unsupported backend")
	ErrOpeningDatabase    = errors.New("opening the database failed")
	ErrCreatingStore      = errors.New("creating the event store failed")
)

// Store is an EventStore together with the database handles it owns.
type Store struct {
	*sqlengine.EventStore

	closers []func() error
}

// Close closes the event store, then the database handles.
func (s *Store) Close() error {
	errs := []error{s.EventStore.Close()}

	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}

	return errors.Join(errs...)
}

// Open connects to cfg.Backend and verifies the connection. The table name from cfg is applied before options.
func Open(ctx context.Context, cfg config.Config, options ...sqlengine.Option) (*Store, error) {
	options = append([]sqlengine.Option{sqlengine.WithTableName(cfg.Table)}, options...)

	switch cfg.Backend {
	case config.BackendSQLite:
		return openSQLDB(ctx, driverSQLite3, cfg.DSN, func(db *sql.DB) (*sqlengine.EventStore, error) {
			return sqlengine.NewEventStoreFromSQLite(db, options...)
		})

	case config.BackendSQLDB:
		return openSQLDB(ctx, driverPostgres, cfg.DSN, func(db *sql.DB) (*sqlengine.EventStore, error) {
			return sqlengine.NewEventStoreFromSQLDB(db, options...)
		})

	case config.BackendSQLX:
		return openSQLX(ctx, cfg.DSN, options)

	case config.BackendPGX:
		return openPGX(ctx, cfg.DSN, cfg.ReplicaDSN, options)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Backend)
	}
}

func openSQLDB(
	ctx context.Context,
	driverName string,
	dsn string,
	build func(db *sql.DB) (*sqlengine.EventStore, error),
) (*Store, error) {

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.Join(ErrOpeningDatabase, err)
	}

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Join(ErrOpeningDatabase, err)
	}

	es, err := build(db)
	if err != nil {
		_ = db.Close()
		return nil, errors.Join(ErrCreatingStore, err)
	}

	return &Store{EventStore: es, closers: []func() error{db.Close}}, nil
}

func openSQLX(ctx context.Context, dsn string, options []sqlengine.Option) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, driverPostgres, dsn)
	if err != nil {
		return nil, errors.Join(ErrOpeningDatabase, err)
	}

	es, err := sqlengine.NewEventStoreFromSQLX(db, options...)
	if err != nil {
		_ = db.Close()
		return nil, errors.Join(ErrCreatingStore, err)
	}

	return &Store{EventStore: es, closers: []func() error{db.Close}}, nil
}

func openPGX(ctx context.Context, dsn, replicaDSN string, options []sqlengine.Option) (*Store, error) {
	primary, err := newPGXPool(ctx, dsn)
	if err != nil {
		return nil, err
	}

	closers := []func() error{closePool(primary)}

	if replicaDSN == "" {
		es, err := sqlengine.NewEventStoreFromPGXPool(primary, options...)
		if err != nil {
			primary.Close()
			return nil, errors.Join(ErrCreatingStore, err)
		}

		return &Store{EventStore: es, closers: closers}, nil
	}

	replica, err := newPGXPool(ctx, replicaDSN)
	if err != nil {
		primary.Close()
		return nil, err
	}

	es, err := sqlengine.NewEventStoreFromPGXPoolWithReplica(primary, replica, options...)
	if err != nil {
		primary.Close()
		replica.Close()
		return nil, errors.Join(ErrCreatingStore, err)
	}

	return &Store{EventStore: es, closers: append(closers, closePool(replica))}, nil
}

func newPGXPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Join(ErrOpeningDatabase, err)
	}

	poolConfig.MaxConns = defaultMaxConns
	poolConfig.MinConns = defaultMinConns
	poolConfig.MaxConnLifetime = defaultMaxConnLifetime
	poolConfig.MaxConnIdleTime = defaultMaxConnIdleTime
	poolConfig.HealthCheckPeriod = defaultHealthCheckPeriod
	poolConfig.ConnConfig.ConnectTimeout = defaultConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Join(ErrOpeningDatabase, err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Join(ErrOpeningDatabase, err)
	}

	return pool, nil
}

func closePool(pool *pgxpool.Pool) func() error {
	return func() error {
		pool.Close()
		return nil
	}
}
