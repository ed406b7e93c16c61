package events

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"incidentdb/internal/pool"
)

type fakeRows struct {
	columns []string
	data    [][]interface{}
	pos     int
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...interface{}) error {
	row := r.data[r.pos-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(row))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *interface{}:
			*p = row[i]
		case *time.Time:
			*p = row[i].(time.Time)
		case *int64:
			*p = row[i].(int64)
		case *string:
			*p = row[i].(string)
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

func (r *fakeRows) Columns() ([]string, error) { return r.columns, nil }
func (r *fakeRows) Err() error                 { return nil }
func (r *fakeRows) Close() error               { return nil }

type execCall struct {
	query string
	args  []interface{}
}

// fakeDB answers every query with rows and records statements. Queued errors
// are returned by the next queries in order.
type fakeDB struct {
	mu        sync.Mutex
	rows      func(query string) *fakeRows
	queryErrs []error
	execErr   error
	queries   []string
	execs     []execCall
	dials     int
}

func (db *fakeDB) Dial(ctx context.Context) (pool.Session, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.dials++
	return &fakeSession{db: db}, nil
}

func (db *fakeDB) queryCount(prefix string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, q := range db.queries {
		if strings.HasPrefix(q, prefix) {
			n++
		}
	}
	return n
}

type fakeSession struct {
	db *fakeDB
}

func (s *fakeSession) Ping(ctx context.Context) error { return nil }

func (s *fakeSession) QueryContext(ctx context.Context, query string, args ...interface{}) (pool.Rows, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.queries = append(s.db.queries, query)
	if len(s.db.queryErrs) > 0 {
		err := s.db.queryErrs[0]
		s.db.queryErrs = s.db.queryErrs[1:]
		return nil, err
	}
	if s.db.rows == nil {
		return &fakeRows{}, nil
	}
	return s.db.rows(query), nil
}

func (s *fakeSession) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.execs = append(s.db.execs, execCall{query: query, args: args})
	if s.db.execErr != nil {
		return nil, s.db.execErr
	}
	return nil, nil
}

func (s *fakeSession) Close() error   { return nil }
func (s *fakeSession) Discard() error { return nil }
