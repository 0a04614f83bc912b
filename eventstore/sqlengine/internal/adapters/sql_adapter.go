package adapters

import (
	"context"
	"database/sql"
	"errors"
)

// SQLAdapter implements Database for sql.DB
type SQLAdapter struct {
	db *sql.DB
}

// NewSQLAdapter creates a new SQL adapter
func NewSQLAdapter(db *sql.DB) *SQLAdapter {
	return &SQLAdapter{db: db}
}

// Session acquires a dedicated connection from the sql.DB pool.
func (s *SQLAdapter) Session(ctx context.Context, _ AccessIntent) (Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}

	return &sqlSession{conn: conn}, nil
}

// sqlQueryer is satisfied by *sql.Conn and *sqlx.Conn.
type sqlQueryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Close() error
}

type sqlSession struct {
	conn sqlQueryer
}

func (s *sqlSession) Prepare(query string) Statement {
	return &sqlStatement{
		query: query,
		all: func(ctx context.Context, args []any) ([]Row, error) {
			rows, err := s.conn.QueryContext(ctx, query, args...)
			if err != nil {
				return nil, err
			}

			return scanSQLRows(rows)
		},
	}
}

func (s *sqlSession) Exec(ctx context.Context, query string) error {
	_, err := s.conn.ExecContext(ctx, query)

	return err
}

// Release returns the connection to the pool.
func (s *sqlSession) Release() {
	_ = s.conn.Close()
}

type sqlStatement struct {
	query string
	args  []any
	all   func(ctx context.Context, args []any) ([]Row, error)
}

func (s *sqlStatement) Bind(args ...any) Statement {
	return &sqlStatement{query: s.query, args: args, all: s.all}
}

func (s *sqlStatement) All(ctx context.Context) ([]Row, error) {
	return s.all(ctx, s.args)
}

func scanSQLRows(rows *sql.Rows) (result []Row, err error) {
	defer func() {
		err = errors.Join(err, rows.Close())
	}()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}

		if scanErr := rows.Scan(dest...); scanErr != nil {
			return nil, scanErr
		}

		row := make(Row, len(columns))
		for i, column := range columns {
			row[column] = values[i]
		}

		result = append(result, row)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	return result, nil
}
