package adapters

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore"
)

// PGXAdapter implements Database for pgxpool.Pool.
type PGXAdapter struct {
	pool        *pgxpool.Pool
	replicaPool *pgxpool.Pool // optional replica for read operations
}

// NewPGXAdapter creates a new PGX adapter with a primary pool.
func NewPGXAdapter(pool *pgxpool.Pool) *PGXAdapter {
	return &PGXAdapter{pool: pool}
}

// NewPGXAdapterWithReplica creates a new PGX adapter with a primary pool and a replica pool.
func NewPGXAdapterWithReplica(pool *pgxpool.Pool, replica *pgxpool.Pool) *PGXAdapter {
	return &PGXAdapter{pool: pool, replicaPool: replica}
}

// Session acquires a connection from the replica pool for reads with eventual consistency,
// otherwise from the primary pool.
func (p *PGXAdapter) Session(ctx context.Context, intent AccessIntent) (Session, error) {
	pool := p.pool

	if intent == ReadIntent &&
		p.replicaPool != nil &&
		eventstore.GetConsistencyLevel(ctx) == eventstore.EventualConsistency {

		pool = p.replicaPool
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	return &pgxSession{conn: conn}, nil
}

type pgxSession struct {
	conn *pgxpool.Conn
}

func (s *pgxSession) Prepare(query string) Statement {
	return &pgxStatement{conn: s.conn, query: query}
}

func (s *pgxSession) Exec(ctx context.Context, query string) error {
	_, err := s.conn.Exec(ctx, query)

	return err
}

// Release returns the connection to the pool. A connection that is still inside a transaction is destroyed by pgxpool.
func (s *pgxSession) Release() {
	s.conn.Release()
}

type pgxStatement struct {
	conn  *pgxpool.Conn
	query string
	args  []any
}

func (s *pgxStatement) Bind(args ...any) Statement {
	return &pgxStatement{conn: s.conn, query: s.query, args: args}
}

func (s *pgxStatement) All(ctx context.Context) ([]Row, error) {
	rows, err := s.conn.Query(ctx, s.query, s.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPGXRows(rows)
}

func collectPGXRows(rows pgx.Rows) ([]Row, error) {
	var result []Row

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}

		fields := rows.FieldDescriptions()
		row := make(Row, len(fields))
		for i, field := range fields {
			row[field.Name] = values[i]

			// pgx decodes json columns, a JSON string would be indistinguishable from serialized JSON
			if field.DataTypeOID == pgtype.JSONOID || field.DataTypeOID == pgtype.JSONBOID {
				raw, marshalErr := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(values[i])
				if marshalErr != nil {
					return nil, marshalErr
				}

				row[field.Name] = raw
			}
		}

		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
