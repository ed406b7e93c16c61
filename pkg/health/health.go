package health

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type Checker interface {
	Check(ctx context.Context) error
	Name() string
}

type Health struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type degradedError struct {
	err error
}

func (e *degradedError) Error() string { return e.err.Error() }
func (e *degradedError) Unwrap() error { return e.err }

// Degraded marks a check failure that leaves the service usable.
func Degraded(err error) error {
	if err == nil {
		return nil
	}
	return &degradedError{err: err}
}

type CheckerRegistry struct {
	checkers []Checker
	timeout  time.Duration
}

func NewCheckerRegistry(timeout time.Duration) *CheckerRegistry {
	return &CheckerRegistry{
		checkers: make([]Checker, 0),
		timeout:  timeout,
	}
}

func (r *CheckerRegistry) Register(checker Checker) {
	r.checkers = append(r.checkers, checker)
}

func (r *CheckerRegistry) Check(ctx context.Context) Health {
	results := make(map[string]CheckResult, len(r.checkers))
	allHealthy := true
	anyDegraded := false

	for _, checker := range r.checkers {
		err := r.run(ctx, checker)
		result := CheckResult{Timestamp: time.Now()}

		var degraded *degradedError
		switch {
		case err == nil:
			result.Status = StatusHealthy
		case errors.As(err, &degraded):
			result.Status = StatusDegraded
			result.Message = err.Error()
			anyDegraded = true
		default:
			result.Status = StatusUnhealthy
			result.Message = err.Error()
			allHealthy = false
		}

		results[checker.Name()] = result
	}

	overallStatus := StatusHealthy
	if !allHealthy {
		overallStatus = StatusUnhealthy
	} else if anyDegraded {
		overallStatus = StatusDegraded
	}

	return Health{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Checks:    results,
	}
}

func (r *CheckerRegistry) run(ctx context.Context, checker Checker) error {
	if r.timeout <= 0 {
		return checker.Check(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return checker.Check(ctx)
}

// PoolChecker reports whether the connection pool can hand out a live
// session.
type PoolChecker struct {
	pool interface {
		HealthCheck(ctx context.Context) error
	}
}

func NewPoolChecker(pool interface {
	HealthCheck(ctx context.Context) error
}) *PoolChecker {
	return &PoolChecker{pool: pool}
}

func (c *PoolChecker) Name() string {
	return "postgresql"
}

func (c *PoolChecker) Check(ctx context.Context) error {
	return c.pool.HealthCheck(ctx)
}

// TablesChecker reports optional tables that are unavailable. Missing tables
// degrade the service rather than failing it.
type TablesChecker struct {
	available map[string]bool
}

func NewTablesChecker(available map[string]bool) *TablesChecker {
	return &TablesChecker{available: available}
}

func (c *TablesChecker) Name() string {
	return "optional_tables"
}

func (c *TablesChecker) Check(ctx context.Context) error {
	var missing []string
	for table, ok := range c.available {
		if !ok {
			missing = append(missing, table)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return Degraded(errors.New("unavailable: " + strings.Join(missing, ", ")))
}
