package events

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incidentdb/internal/catalog"
	"incidentdb/internal/config"
	"incidentdb/internal/pool"
	"incidentdb/internal/query"
	apperrors "incidentdb/pkg/errors"
	"incidentdb/pkg/logging"
	"incidentdb/pkg/retry"
)

var fastRetry = retry.Policy{
	MaxAttempts:     2,
	InitialInterval: time.Millisecond,
	MaxInterval:     time.Millisecond,
	Multiplier:      1,
	MaxElapsedTime:  time.Second,
}

func newTestService(t *testing.T, db *fakeDB, audit config.AuditConfig) *Service {
	t.Helper()
	return newTestServiceWithLimits(t, db, audit, query.Limits{DefaultLimit: 100, MaxLimit: 1000})
}

func newTestServiceWithLimits(t *testing.T, db *fakeDB, audit config.AuditConfig, limits query.Limits) *Service {
	t.Helper()
	cat, err := catalog.New(config.CatalogConfig{}, map[string]bool{
		catalog.TableDirectives: true,
		catalog.TableSent:       true,
	})
	require.NoError(t, err)

	composer := query.NewComposer(cat, time.UTC, limits)
	p := pool.New(db, pool.Config{Size: 1, ProbeTimeout: time.Second, MaxCheckoutAttempts: 2}, nil)
	t.Cleanup(func() { _ = p.Close() })

	return NewService(composer, cat, p, Options{Retry: fastRetry, Audit: audit}, nil)
}

func spamSpec() query.FilterSpec {
	return query.FilterSpec{{Key: "classification.type", Values: []string{"spam"}}}
}

func eventRows(query string) *fakeRows {
	return &fakeRows{
		columns: []string{"id", "classification.type", "source.ip", "directive"},
		data: [][]interface{}{
			{int64(1), "spam", nil, []byte(`{"id": 10, "medium": "email", "notification_interval": "01:00:00", "sent_id": null}`)},
			{int64(1), "spam", nil, []byte(`{"id": 11, "medium": "email", "notification_interval": "1 day", "sent_id": null}`)},
		},
	}
}

func TestService_Search(t *testing.T) {
	db := &fakeDB{rows: eventRows}
	s := newTestService(t, db, config.AuditConfig{})

	result, err := s.Search(context.Background(), spamSpec(), query.Options{Include: []string{"directives"}})
	require.NoError(t, err)

	assert.True(t, result.RowPerDirective)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, int64(1), result.Rows[0].ID)
	assert.Equal(t, result.Rows[0].ID, result.Rows[1].ID)
	assert.NotContains(t, result.Rows[0].Event, "source.ip")
	assert.Equal(t, "spam", result.Rows[0].Event["classification.type"])
	assert.Equal(t, int64(3600), result.Rows[0].Directive["notification_interval"])
	assert.Equal(t, int64(86400), result.Rows[1].Directive["notification_interval"])
	assert.NotContains(t, result.Rows[0].Directive, "sent_id")
	assert.Nil(t, result.Rows[0].Sent)
}

func TestService_CompositionErrorsSkipDatabase(t *testing.T) {
	db := &fakeDB{}
	s := newTestService(t, db, config.AuditConfig{})

	_, err := s.Search(context.Background(), query.FilterSpec{{Key: "no.such.key", Values: []string{"x"}}}, query.Options{})
	assert.True(t, apperrors.IsUnknownFilterKey(err))

	_, err = s.Export(context.Background(), nil, query.Options{})
	assert.True(t, apperrors.IsInvalidFilterValue(err))
	assert.Equal(t, 0, db.dials)
}

func TestService_StatZeroFills(t *testing.T) {
	db := &fakeDB{rows: func(string) *fakeRows {
		return &fakeRows{
			columns: []string{"bucket", "count"},
			data: [][]interface{}{
				{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), int64(3)},
				{time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), int64(2)},
			},
		}
	}}
	s := newTestService(t, db, config.AuditConfig{})

	spec := query.FilterSpec{
		{Key: "time.observed_from", Values: []string{"2024-01-01"}},
		{Key: "time.observed_to", Values: []string{"2024-01-04"}},
	}
	result, err := s.Stat(context.Background(), spec, query.Options{Resolution: query.Day})
	require.NoError(t, err)

	assert.Equal(t, query.Day, result.Resolution)
	assert.Equal(t, int64(5), result.Total)
	assert.Equal(t, []StatBucket{
		{Date: "2024-01-01", Count: 3},
		{Date: "2024-01-02", Count: 0},
		{Date: "2024-01-03", Count: 2},
	}, result.Results)
}

func TestService_StatLiteral(t *testing.T) {
	db := &fakeDB{rows: func(string) *fakeRows {
		return &fakeRows{
			columns: []string{"bucket", "count"},
			data: [][]interface{}{
				{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), int64(3)},
				{time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), int64(2)},
			},
		}
	}}
	s := newTestService(t, db, config.AuditConfig{})

	spec := query.FilterSpec{
		{Key: "time.observed_from", Values: []string{"2024-01-01"}},
		{Key: "time.observed_to", Values: []string{"2024-01-03"}},
	}
	result, err := s.Stat(context.Background(), spec, query.Options{Resolution: query.Day})
	require.NoError(t, err)

	out, err := json.Marshal(result.Results)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"date":"2024-01-01","count":3},{"date":"2024-01-02","count":2}]`, string(out))
}

func TestService_RetriesLostConnectionOnce(t *testing.T) {
	db := &fakeDB{rows: eventRows, queryErrs: []error{driver.ErrBadConn}}
	s := newTestService(t, db, config.AuditConfig{})

	result, err := s.Search(context.Background(), spamSpec(), query.Options{})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
	assert.Equal(t, 2, db.queryCount("SELECT"))
	assert.Equal(t, 2, db.dials)
}

func TestService_SurfacesSecondFailure(t *testing.T) {
	db := &fakeDB{rows: eventRows, queryErrs: []error{driver.ErrBadConn, driver.ErrBadConn, driver.ErrBadConn}}
	s := newTestService(t, db, config.AuditConfig{})

	_, err := s.Search(context.Background(), spamSpec(), query.Options{})
	assert.True(t, apperrors.IsConnectionLost(err))
	assert.Equal(t, 2, db.queryCount("SELECT"))
}

func TestService_DoesNotRetryQueryErrors(t *testing.T) {
	db := &fakeDB{queryErrs: []error{&pq.Error{Code: "42703", Message: "column does not exist"}}}
	s := newTestService(t, db, config.AuditConfig{})

	_, err := s.Search(context.Background(), spamSpec(), query.Options{})
	assert.ErrorIs(t, err, apperrors.ErrUnexpectedQuery)
	assert.Equal(t, 1, db.queryCount("SELECT"))
}

func TestService_ExportAudit(t *testing.T) {
	db := &fakeDB{rows: eventRows}
	s := newTestService(t, db, config.AuditConfig{Enabled: true, Table: "audit_log"})
	s.now = func() time.Time { return time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC) }

	ctx := logging.WithPrincipal(context.Background(), "alice")
	result, err := s.Export(ctx, spamSpec(), query.Options{})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)

	require.Len(t, db.execs, 1)
	call := db.execs[0]
	assert.True(t, strings.HasPrefix(call.query, `INSERT INTO "audit_log"`), call.query)
	require.Len(t, call.args, 7)
	assert.Len(t, call.args[0], 36)
	assert.Equal(t, "alice", call.args[1])
	assert.Equal(t, "export", call.args[2])
	assert.JSONEq(t, `{"classification.type":["spam"]}`, call.args[3].(string))
	assert.Equal(t, 2, call.args[4])
	assert.Equal(t, time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC), call.args[6])
}

func TestService_ExportFailsWhenAuditFails(t *testing.T) {
	db := &fakeDB{rows: eventRows, execErr: errors.New("permission denied for table audit_log")}
	s := newTestService(t, db, config.AuditConfig{Enabled: true, Table: "audit_log"})

	_, err := s.Export(context.Background(), spamSpec(), query.Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnexpectedQuery)
	assert.Len(t, db.execs, 1, "audit writes are not retried")
}

func TestService_ExportWithoutAudit(t *testing.T) {
	db := &fakeDB{rows: eventRows}
	s := newTestService(t, db, config.AuditConfig{})

	_, err := s.Export(context.Background(), spamSpec(), query.Options{})
	require.NoError(t, err)
	assert.Empty(t, db.execs)
}

func TestService_Event(t *testing.T) {
	db := &fakeDB{rows: eventRows}
	s := newTestService(t, db, config.AuditConfig{})

	rows, err := s.Event(context.Background(), []int64{1}, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	db.rows = func(string) *fakeRows { return &fakeRows{columns: []string{"id"}} }
	_, err = s.Event(context.Background(), []int64{99}, nil)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestService_Subqueries(t *testing.T) {
	s := newTestService(t, &fakeDB{}, config.AuditConfig{})

	keys := s.Subqueries()
	require.NotEmpty(t, keys)
	found := false
	for _, k := range keys {
		if k.Key == "recipient_group" {
			found = true
			assert.Equal(t, "subquery", k.Type)
		}
	}
	assert.True(t, found)
	assert.Equal(t, time.UTC, s.Location())
}

func TestService_SerializesRequests(t *testing.T) {
	s := newTestService(t, &fakeDB{rows: eventRows}, config.AuditConfig{})

	release, err := s.acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Search(ctx, spamSpec(), query.Options{})
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavailable)

	release()
	_, err = s.Search(context.Background(), spamSpec(), query.Options{})
	assert.NoError(t, err)
}

func TestService_ExportTruncatedAtRowCap(t *testing.T) {
	db := &fakeDB{rows: eventRows}
	limits := query.Limits{DefaultLimit: 100, MaxLimit: 1000, ExportMaxRows: 1}
	s := newTestServiceWithLimits(t, db, config.AuditConfig{Enabled: true, Table: "audit_log"}, limits)

	result, err := s.Export(context.Background(), spamSpec(), query.Options{})
	require.NoError(t, err)
	assert.True(t, result.Truncated)
	assert.Len(t, result.Rows, 1)
	require.Len(t, db.execs, 1)
	assert.Equal(t, 1, db.execs[0].args[4])

	limits.ExportMaxRows = 2
	s = newTestServiceWithLimits(t, &fakeDB{rows: eventRows}, config.AuditConfig{}, limits)
	result, err = s.Export(context.Background(), spamSpec(), query.Options{})
	require.NoError(t, err)
	assert.False(t, result.Truncated)
	assert.Len(t, result.Rows, 2)
}
