package adapters

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
)

// SQLXAdapter implements Database for sqlx.DB
type SQLXAdapter struct {
	db *sqlx.DB
}

// NewSQLXAdapter creates a new SQLX adapter
func NewSQLXAdapter(db *sqlx.DB) *SQLXAdapter {
	return &SQLXAdapter{db: db}
}

// Session acquires a dedicated connection from the sqlx.DB pool.
func (s *SQLXAdapter) Session(ctx context.Context, _ AccessIntent) (Session, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, err
	}

	return &sqlxSession{conn: conn}, nil
}

type sqlxSession struct {
	conn *sqlx.Conn
}

func (s *sqlxSession) Prepare(query string) Statement {
	return &sqlStatement{
		query: query,
		all: func(ctx context.Context, args []any) ([]Row, error) {
			rows, err := s.conn.QueryxContext(ctx, query, args...)
			if err != nil {
				return nil, err
			}

			return mapScanSQLXRows(rows)
		},
	}
}

func (s *sqlxSession) Exec(ctx context.Context, query string) error {
	_, err := s.conn.ExecContext(ctx, query)

	return err
}

// Release returns the connection to the pool.
func (s *sqlxSession) Release() {
	_ = s.conn.Close()
}

func mapScanSQLXRows(rows *sqlx.Rows) (result []Row, err error) {
	defer func() {
		err = errors.Join(err, rows.Close())
	}()

	for rows.Next() {
		row := make(Row)
		if scanErr := rows.MapScan(row); scanErr != nil {
			return nil, scanErr
		}

		result = append(result, row)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	return result, nil
}
