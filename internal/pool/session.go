package pool

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"
)

// Rows is the result cursor of a query. *sql.Rows satisfies it.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Columns() ([]string, error)
	Err() error
	Close() error
}

// Session is one dedicated database session.
type Session interface {
	Ping(ctx context.Context) error
	QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	// Close ends the session normally.
	Close() error
	// Discard ends the session without reusing the underlying connection.
	Discard() error
}

// Dialer opens new sessions.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// SQLDialer opens sessions as dedicated connections of a *sql.DB.
type SQLDialer struct {
	db               *sql.DB
	statementTimeout time.Duration
}

func NewSQLDialer(db *sql.DB, statementTimeout time.Duration) *SQLDialer {
	return &SQLDialer{db: db, statementTimeout: statementTimeout}
}

func (d *SQLDialer) Dial(ctx context.Context) (Session, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	if d.statementTimeout > 0 {
		timeout := fmt.Sprintf("%dms", d.statementTimeout.Milliseconds())
		if _, err := conn.ExecContext(ctx, "SELECT set_config('statement_timeout', $1, false)", timeout); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set statement timeout: %w", err)
		}
	}

	return &sqlSession{conn: conn}, nil
}

type sqlSession struct {
	conn *sql.Conn
}

func (s *sqlSession) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *sqlSession) QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *sqlSession) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.conn.ExecContext(ctx, query, args...)
}

func (s *sqlSession) Close() error {
	return s.conn.Close()
}

// Discard makes database/sql drop the driver connection instead of keeping it
// idle.
func (s *sqlSession) Discard() error {
	_ = s.conn.Raw(func(interface{}) error { return driver.ErrBadConn })
	if err := s.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}
