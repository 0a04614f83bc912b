// Package backendspy provides a Database decorator that counts backend calls and injects faults.
package backendspy

import (
	"context"
	"strings"
	"sync"

	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore/sqlengine"
)

type fault struct {
	prefix   string
	skip     int
	err      error
	runInner bool
	isExec   bool
}

// DatabaseSpy wraps a sqlengine.Database, records every statement, and fails statements on demand.
type DatabaseSpy struct {
	inner sqlengine.Database

	mu       sync.Mutex
	sessions int
	released int
	execs    []string
	queries  []string
	faults   []*fault
}

// NewDatabaseSpy decorates inner.
func NewDatabaseSpy(inner sqlengine.Database) *DatabaseSpy {
	return &DatabaseSpy{inner: inner}
}

// FailQuery fails the query whose SQL starts with prefix after skip matching queries succeeded.
func (s *DatabaseSpy) FailQuery(prefix string, skip int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, &fault{prefix: prefix, skip: skip, err: err})
}

// FailExec fails the next Exec whose SQL starts with prefix.
// With runInner the statement still runs against the real backend, only its result is replaced.
func (s *DatabaseSpy) FailExec(prefix string, err error, runInner bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, &fault{prefix: prefix, err: err, runInner: runInner, isExec: true})
}

// SessionCount returns the number of acquired sessions.
func (s *DatabaseSpy) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sessions
}

// ReleasedCount returns the number of released sessions.
func (s *DatabaseSpy) ReleasedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.released
}

// Execs returns the executed statements in order.
func (s *DatabaseSpy) Execs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.execs...)
}

// Queries returns the executed queries in order.
func (s *DatabaseSpy) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.queries...)
}

// CountQueriesWithPrefix counts the executed queries whose SQL starts with prefix.
func (s *DatabaseSpy) CountQueriesWithPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, q := range s.queries {
		if strings.HasPrefix(q, prefix) {
			count++
		}
	}

	return count
}

// Session implements sqlengine.Database.
func (s *DatabaseSpy) Session(ctx context.Context, intent sqlengine.AccessIntent) (sqlengine.Session, error) {
	s.mu.Lock()
	s.sessions++
	s.mu.Unlock()

	inner, err := s.inner.Session(ctx, intent)
	if err != nil {
		return nil, err
	}

	return &sessionSpy{spy: s, inner: inner}, nil
}

// takeFault returns the injected fault for sql, if one is due, and consumes it.
func (s *DatabaseSpy) takeFault(sql string, isExec bool) *fault {
	s.mu.Lock()
	defer s.mu.Unlock()

	if isExec {
		s.execs = append(s.execs, sql)
	} else {
		s.queries = append(s.queries, sql)
	}

	for i, f := range s.faults {
		if f.isExec != isExec || !strings.HasPrefix(sql, f.prefix) {
			continue
		}

		if f.skip > 0 {
			f.skip--
			continue
		}

		s.faults = append(s.faults[:i], s.faults[i+1:]...)

		return f
	}

	return nil
}

type sessionSpy struct {
	spy   *DatabaseSpy
	inner sqlengine.Session
}

func (s *sessionSpy) Prepare(query string) sqlengine.Statement {
	return &statementSpy{spy: s.spy, inner: s.inner.Prepare(query), query: query}
}

func (s *sessionSpy) Exec(ctx context.Context, query string) error {
	f := s.spy.takeFault(query, true)
	if f == nil {
		return s.inner.Exec(ctx, query)
	}

	if f.runInner {
		_ = s.inner.Exec(ctx, query)
	}

	return f.err
}

func (s *sessionSpy) Release() {
	s.spy.mu.Lock()
	s.spy.released++
	s.spy.mu.Unlock()

	s.inner.Release()
}

type statementSpy struct {
	spy   *DatabaseSpy
	inner sqlengine.Statement
	query string
}

func (s *statementSpy) Bind(args ...any) sqlengine.Statement {
	return &statementSpy{spy: s.spy, inner: s.inner.Bind(args...), query: s.query}
}

func (s *statementSpy) All(ctx context.Context) ([]sqlengine.Row, error) {
	if f := s.spy.takeFault(s.query, false); f != nil {
		return nil, f.err
	}

	return s.inner.All(ctx)
}
