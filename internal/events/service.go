// Package events serves event searches, statistics and exports over the
// pooled database sessions of one worker.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/sync/semaphore"

	"incidentdb/internal/catalog"
	"incidentdb/internal/config"
	"incidentdb/internal/logger"
	"incidentdb/internal/pool"
	"incidentdb/internal/query"
	"incidentdb/pkg/circuitbreaker"
	apperrors "incidentdb/pkg/errors"
	"incidentdb/pkg/logging"
	"incidentdb/pkg/metrics"
	"incidentdb/pkg/retry"
	"incidentdb/pkg/tracing"
)

// Executor runs fn on a pooled connection and always returns it.
type Executor interface {
	With(ctx context.Context, fn func(*pool.Conn) error) error
}

// Describer lists the filter keys a deployment offers.
type Describer interface {
	Describe() []catalog.KeyInfo
}

type Options struct {
	Retry   retry.Policy
	Breaker *circuitbreaker.Wrapper
	Audit   config.AuditConfig
}

type Service struct {
	composer *query.Composer
	keys     Describer
	exec     Executor
	retry    retry.Policy
	breaker  *circuitbreaker.Wrapper
	audit    config.AuditConfig
	sem      *semaphore.Weighted
	logger   logger.Logger
	now      func() time.Time
}

func NewService(composer *query.Composer, keys Describer, exec Executor, opts Options, log logger.Logger) *Service {
	if log == nil {
		log = logger.NopLogger()
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.DefaultPolicy()
	}
	return &Service{
		composer: composer,
		keys:     keys,
		exec:     exec,
		retry:    opts.Retry,
		breaker:  opts.Breaker,
		audit:    opts.Audit,
		sem:      semaphore.NewWeighted(1),
		logger:   log,
		now:      time.Now,
	}
}

// Location is the time zone of the database session.
func (s *Service) Location() *time.Location {
	return s.composer.Location()
}

func (s *Service) Search(ctx context.Context, spec query.FilterSpec, opts query.Options) (*SearchResult, error) {
	q, err := s.composer.Compose(query.KindSearch, spec, opts)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var rows []Row
	err = s.run(ctx, q, spec.Keys(), func(r pool.Rows) (int, error) {
		var err error
		rows, err = scanRows(r)
		return len(rows), err
	})
	if err != nil {
		return nil, err
	}
	return &SearchResult{Rows: rows, RowPerDirective: q.Joined(catalog.TableDirectives)}, nil
}

// Export returns complete event rows. When auditing is enabled the export is
// recorded after it succeeded; a failed audit write fails the export.
func (s *Service) Export(ctx context.Context, spec query.FilterSpec, opts query.Options) (*ExportResult, error) {
	q, err := s.composer.Compose(query.KindExport, spec, opts)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var rows []Row
	err = s.run(ctx, q, spec.Keys(), func(r pool.Rows) (int, error) {
		var err error
		rows, err = scanRows(r)
		return len(rows), err
	})
	if err != nil {
		return nil, err
	}

	truncated := q.RowCap > 0 && len(rows) > q.RowCap
	if truncated {
		rows = rows[:q.RowCap]
		s.logger.WarnwCtx(ctx, "Export truncated at row cap",
			"row_cap", q.RowCap,
			"filters", spec.Keys(),
		)
	}

	if s.audit.Enabled {
		if err := s.recordExport(ctx, spec, len(rows)); err != nil {
			return nil, err
		}
	}
	return &ExportResult{
		Rows:            rows,
		RowPerDirective: q.Joined(catalog.TableDirectives),
		Truncated:       truncated,
	}, nil
}

func (s *Service) Stat(ctx context.Context, spec query.FilterSpec, opts query.Options) (*StatResult, error) {
	return s.stat(ctx, query.KindStat, spec, opts)
}

func (s *Service) stat(ctx context.Context, kind query.Kind, spec query.FilterSpec, opts query.Options) (*StatResult, error) {
	q, err := s.composer.Compose(kind, spec, opts)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var result *StatResult
	err = s.run(ctx, q, spec.Keys(), func(r pool.Rows) (int, error) {
		var err error
		result, err = scanStat(r, q.Stat)
		if err != nil {
			return 0, err
		}
		return len(result.Results), nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Event fetches whole events by id. It fails with NotFound when none of the
// ids exist.
func (s *Service) Event(ctx context.Context, ids []int64, include []string) ([]Row, error) {
	q, err := s.composer.Lookup(ids, include)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var rows []Row
	err = s.run(ctx, q, []string{"id"}, func(r pool.Rows) (int, error) {
		var err error
		rows, err = scanRows(r)
		return len(rows), err
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperrors.ErrNotFound.WithMessage("event not found").WithDetail("id", ids)
	}
	return rows, nil
}

// Subqueries lists the filter keys usable in this deployment.
func (s *Service) Subqueries() []catalog.KeyInfo {
	return s.keys.Describe()
}

func (s *Service) acquire(ctx context.Context) (func(), error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, apperrors.ErrServiceUnavailable.WithMessage("request cancelled while queued").WithCause(err)
	}
	return func() { s.sem.Release(1) }, nil
}

// run executes q, retrying read-only statements once on a fresh connection
// after an infrastructure failure. scan is called once per attempt and
// returns the number of result rows.
func (s *Service) run(ctx context.Context, q *query.ComposedQuery, keys []string, scan func(pool.Rows) (int, error)) error {
	kind := string(q.Kind)
	ctx, span := tracing.StartQuery(ctx, kind, keys)
	start := time.Now()

	policy := s.retry
	if !q.ReadOnly {
		policy.MaxAttempts = 1
	}

	attempts, rows := 0, 0
	err := retry.DoWithCallback(ctx, policy, func(ctx context.Context) error {
		attempts++
		return s.guard(ctx, func(ctx context.Context) error {
			return s.exec.With(ctx, func(c *pool.Conn) error {
				r, err := c.QueryContext(ctx, q.SQL, q.Args...)
				if err != nil {
					return err
				}
				defer r.Close()
				rows, err = scan(r)
				return err
			})
		})
	}, func(attempt int, err error, delay time.Duration) {
		metrics.IncQueryRetry(kind)
		s.logger.WarnwCtx(ctx, "Retrying query on a fresh connection",
			"kind", kind,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
	})

	elapsed := time.Since(start)
	metrics.ObserveQueryDuration(kind, elapsed)
	tracing.EndQuery(span, rows, attempts, err)

	if err != nil {
		metrics.IncQuery(kind, "error")
		s.logFailure(ctx, q, keys, attempts, err)
		return err
	}

	metrics.IncQuery(kind, "success")
	metrics.ObserveQueryRows(kind, rows)
	s.logger.DebugwCtx(ctx, "Query executed",
		"kind", kind,
		"filters", keys,
		"rows", rows,
		"attempts", attempts,
		"duration_ms", elapsed.Milliseconds(),
	)
	return nil
}

func (s *Service) guard(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.breaker == nil {
		return fn(ctx)
	}
	return s.breaker.Execute(ctx, fn)
}

func (s *Service) logFailure(ctx context.Context, q *query.ComposedQuery, keys []string, attempts int, err error) {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && appErr.Code == apperrors.ErrUnexpectedQuery.Code {
		s.logger.ErrorwCtx(ctx, "Unexpected query error",
			"kind", string(q.Kind),
			"filters", keys,
			"sql", q.SQL,
			"args", len(q.Args),
			"attempts", attempts,
			"error", err,
		)
		return
	}
	s.logger.WarnwCtx(ctx, "Query failed",
		"kind", string(q.Kind),
		"filters", keys,
		"attempts", attempts,
		"error", err,
	)
}

type auditFilters map[string][]string

// recordExport writes one audit row. It is a write and is never retried.
func (s *Service) recordExport(ctx context.Context, spec query.FilterSpec, rowCount int) error {
	filters := make(auditFilters, len(spec))
	for _, f := range spec {
		filters[f.Key] = f.Values
	}
	payload, err := json.Marshal(filters)
	if err != nil {
		return apperrors.ErrInternal.WithCause(err)
	}

	id := uuid.New()
	principal := logging.GetPrincipal(ctx)
	stmt := fmt.Sprintf(
		"INSERT INTO %s (id, principal, action, filters, row_count, request_id, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		pq.QuoteIdentifier(s.audit.Table),
	)

	err = s.exec.With(ctx, func(c *pool.Conn) error {
		_, err := c.ExecContext(ctx, stmt,
			id.String(),
			principal,
			string(query.KindExport),
			string(payload),
			rowCount,
			logging.GetRequestID(ctx),
			s.now().UTC(),
		)
		return err
	})
	if err != nil {
		metrics.IncAuditRecord("failed")
		s.logger.ErrorwCtx(ctx, "Failed to write export audit record",
			"audit_id", id.String(),
			"error", err,
		)
		return err
	}

	metrics.IncAuditRecord("success")
	s.logger.InfowCtx(ctx, "Export audited",
		"audit_id", id.String(),
		"filters", spec.Keys(),
		"rows", rowCount,
	)
	return nil
}
