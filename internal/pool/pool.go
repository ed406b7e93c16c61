// Package pool keeps a small set of dedicated, health-checked database
// sessions for one worker.
package pool

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"incidentdb/internal/logger"
	apperrors "incidentdb/pkg/errors"
	"incidentdb/pkg/metrics"
)

type State int

const (
	StateCreated State = iota
	StateIdle
	StateCheckedOut
	StateBroken
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateIdle:
		return "idle"
	case StateCheckedOut:
		return "checked_out"
	case StateBroken:
		return "broken"
	default:
		return "unknown"
	}
}

type Config struct {
	Size int
	// ProbePeriod is the interval of background health checks. Zero
	// disables them; checkouts always probe.
	ProbePeriod         time.Duration
	ProbeTimeout        time.Duration
	MaxCheckoutAttempts int
}

// Conn is a pooled session. It is owned by the pool while idle and by exactly
// one requester while checked out.
type Conn struct {
	id      uint64
	session Session
	state   State
}

func (c *Conn) ID() uint64 {
	return c.id
}

func (c *Conn) State() State {
	return c.state
}

func (c *Conn) QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	return c.session.QueryContext(ctx, query, args...)
}

func (c *Conn) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return c.session.ExecContext(ctx, query, args...)
}

// MarkBroken flags the connection so it is discarded on release.
func (c *Conn) MarkBroken() {
	c.state = StateBroken
}

type Stats struct {
	Idle       int
	CheckedOut int
	Created    uint64
	Broken     uint64
}

type Pool struct {
	mu         sync.Mutex
	dialer     Dialer
	cfg        Config
	logger     logger.Logger
	idle       []*Conn
	checkedOut int
	created    uint64
	broken     uint64
	nextID     uint64
	closed     bool
}

func New(dialer Dialer, cfg Config, log logger.Logger) *Pool {
	if cfg.Size < 1 {
		cfg.Size = 1
	}
	if cfg.MaxCheckoutAttempts < 1 {
		cfg.MaxCheckoutAttempts = 1
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 2 * time.Second
	}
	if log == nil {
		log = logger.NopLogger()
	}
	return &Pool{
		dialer: dialer,
		cfg:    cfg,
		logger: log,
	}
}

// Warm opens connections until the pool holds Size idle ones.
func (p *Pool) Warm(ctx context.Context) error {
	for {
		p.mu.Lock()
		if p.closed || len(p.idle)+p.checkedOut >= p.cfg.Size {
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()

		conn, err := p.dial(ctx)
		if err != nil {
			return apperrors.ErrDatabaseUnavailable.WithCause(err)
		}
		p.put(conn)
	}
}

// Checkout hands out a live connection. Every idle connection is pinged
// before it is handed out; broken ones are discarded and replaced, up to
// MaxCheckoutAttempts tries.
func (p *Pool) Checkout(ctx context.Context) (*Conn, error) {
	var lastErr error

	for attempt := 1; attempt <= p.cfg.MaxCheckoutAttempts; attempt++ {
		conn, err := p.take()
		if err != nil {
			return nil, err
		}

		if conn == nil {
			conn, err = p.dial(ctx)
			if err != nil {
				lastErr = err
				p.logger.WarnwCtx(ctx, "Failed to open database connection",
					"attempt", attempt,
					"error", err,
				)
				if ctx.Err() != nil {
					break
				}
				continue
			}
		} else if err := p.probe(ctx, conn); err != nil {
			lastErr = err
			metrics.IncPoolProbeFailure()
			p.logger.WarnwCtx(ctx, "Discarding broken pooled connection",
				"conn_id", conn.id,
				"attempt", attempt,
				"error", err,
			)
			p.discard(conn, "probe_failed")
			if ctx.Err() != nil {
				break
			}
			continue
		}

		p.mu.Lock()
		conn.state = StateCheckedOut
		p.checkedOut++
		p.mu.Unlock()
		p.publish()
		return conn, nil
	}

	return nil, apperrors.ErrDatabaseUnavailable.
		WithMessagef("no usable database connection after %d attempts", p.cfg.MaxCheckoutAttempts).
		WithCause(lastErr)
}

// Release returns conn to the pool, or destroys it when it is broken, the
// pool is full or closed.
func (p *Pool) Release(conn *Conn) {
	if conn == nil {
		return
	}

	p.mu.Lock()
	if conn.state == StateCheckedOut || conn.state == StateBroken {
		p.checkedOut--
	}
	p.mu.Unlock()

	if conn.state == StateBroken {
		p.discard(conn, "broken")
		return
	}
	p.put(conn)
}

// With runs fn on a checked out connection and releases it on every exit
// path. Errors from fn are classified; a lost connection is marked broken and
// reported as DatabaseConnectionLost.
func (p *Pool) With(ctx context.Context, fn func(*Conn) error) (err error) {
	conn, err := p.Checkout(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			conn.MarkBroken()
			p.Release(conn)
			panic(r)
		}
		p.Release(conn)
	}()

	if err := fn(conn); err != nil {
		classified := Classify(err)
		if apperrors.IsConnectionLost(classified) {
			conn.MarkBroken()
			p.logger.WarnwCtx(ctx, "Database connection lost during query",
				"conn_id", conn.id,
				"error", err,
			)
		}
		return classified
	}
	return nil
}

// HealthCheck probes every idle connection, discarding broken ones. It fails
// with DatabaseUnavailable when no connection can be confirmed live.
func (p *Pool) HealthCheck(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return apperrors.ErrDatabaseUnavailable.WithMessage("pool is closed")
	}
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	healthy := 0
	for _, conn := range idle {
		if err := p.probe(ctx, conn); err != nil {
			metrics.IncPoolProbeFailure()
			p.discard(conn, "health_check_failed")
			continue
		}
		healthy++
		p.put(conn)
	}

	if healthy > 0 {
		p.publish()
		return nil
	}

	err := p.With(ctx, func(c *Conn) error {
		return c.session.Ping(ctx)
	})
	if err != nil && !apperrors.IsDatabaseUnavailable(err) {
		return apperrors.ErrDatabaseUnavailable.WithCause(err)
	}
	return err
}

// Run health-checks the pool every ProbePeriod until ctx is done.
func (p *Pool) Run(ctx context.Context) {
	if p.cfg.ProbePeriod <= 0 {
		return
	}

	ticker := time.NewTicker(p.cfg.ProbePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.HealthCheck(ctx); err != nil && ctx.Err() == nil {
				p.logger.Warnw("Database health check failed", "error", err)
			}
		}
	}
}

// Close destroys idle connections. Connections still checked out are
// destroyed when released.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var firstErr error
	for _, conn := range idle {
		if err := conn.session.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.publish()
	return firstErr
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Idle:       len(p.idle),
		CheckedOut: p.checkedOut,
		Created:    p.created,
		Broken:     p.broken,
	}
}

func (p *Pool) take() (*Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, apperrors.ErrDatabaseUnavailable.WithMessage("pool is closed")
	}
	n := len(p.idle)
	if n == 0 {
		return nil, nil
	}
	conn := p.idle[n-1]
	p.idle = p.idle[:n-1]
	return conn, nil
}

func (p *Pool) put(conn *Conn) {
	p.mu.Lock()
	if p.closed || len(p.idle)+p.checkedOut >= p.cfg.Size {
		p.mu.Unlock()
		_ = conn.session.Close()
		p.publish()
		return
	}
	conn.state = StateIdle
	p.idle = append(p.idle, conn)
	p.mu.Unlock()
	p.publish()
}

func (p *Pool) dial(ctx context.Context) (*Conn, error) {
	session, err := p.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.nextID++
	p.created++
	conn := &Conn{
		id:      p.nextID,
		session: session,
		state:   StateCreated,
	}
	p.mu.Unlock()
	return conn, nil
}

func (p *Pool) probe(ctx context.Context, conn *Conn) error {
	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
	defer cancel()

	if err := conn.session.Ping(probeCtx); err != nil {
		conn.state = StateBroken
		return err
	}
	return nil
}

func (p *Pool) discard(conn *Conn, reason string) {
	conn.state = StateBroken
	p.mu.Lock()
	p.broken++
	p.mu.Unlock()

	if err := conn.session.Discard(); err != nil {
		p.logger.Debugw("Error discarding connection", "conn_id", conn.id, "error", err)
	}
	metrics.IncPoolDiscarded(reason)
	p.publish()
}

func (p *Pool) publish() {
	s := p.Stats()
	metrics.SetPoolConnections(StateIdle.String(), s.Idle)
	metrics.SetPoolConnections(StateCheckedOut.String(), s.CheckedOut)
}
