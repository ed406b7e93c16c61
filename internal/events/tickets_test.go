package events

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incidentdb/internal/config"
	"incidentdb/internal/query"
	apperrors "incidentdb/pkg/errors"
)

const testTicket = "20240101-10000001"

func TestService_TicketSearchJoinsSent(t *testing.T) {
	db := &fakeDB{}
	s := newTestService(t, db, config.AuditConfig{})

	include := make([]string, 0, 4)
	_, err := s.TicketSearch(context.Background(), spamSpec(), query.Options{Include: include})
	require.NoError(t, err)

	require.Len(t, db.queries, 1)
	assert.Contains(t, db.queries[0], `INNER JOIN "sent" AS sent ON sent.id = directives.sent_id`)
	assert.Empty(t, include[:cap(include)][0], "caller slice must not be written")
}

func TestService_TicketStat(t *testing.T) {
	db := &fakeDB{rows: func(string) *fakeRows {
		return &fakeRows{
			columns: []string{"bucket", "count"},
			data:    [][]interface{}{{time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), int64(4)}},
		}
	}}
	s := newTestService(t, db, config.AuditConfig{})

	spec := query.FilterSpec{
		{Key: "sent.at_from", Values: []string{"2024-01-01"}},
		{Key: "sent.at_to", Values: []string{"2024-01-03"}},
	}
	result, err := s.TicketStat(context.Background(), spec, query.Options{Resolution: query.Day})
	require.NoError(t, err)

	assert.Contains(t, db.queries[0], `COUNT(DISTINCT sent."intelmq_ticket")`)
	assert.Equal(t, int64(4), result.Total)
	assert.Equal(t, []StatBucket{{Date: "2024-01-01", Count: 0}, {Date: "2024-01-02", Count: 4}}, result.Results)
}

func TestService_Ticket(t *testing.T) {
	db := &fakeDB{rows: func(string) *fakeRows {
		return &fakeRows{
			columns: []string{"id", "directive", "sent"},
			data: [][]interface{}{
				{int64(1), []byte(`{"id": 10, "notification_interval": "02:00:00"}`), []byte(`{"id": 3, "intelmq_ticket": "` + testTicket + `"}`)},
			},
		}
	}}
	s := newTestService(t, db, config.AuditConfig{Enabled: true, Table: "audit_log"})

	rows, err := s.Ticket(context.Background(), testTicket)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(7200), rows[0].Directive["notification_interval"])
	assert.Equal(t, testTicket, rows[0].Sent["intelmq_ticket"])
	assert.Contains(t, db.queries[0], `WHERE sent."intelmq_ticket" = $1`)
	assert.Empty(t, db.execs, "ticket lookups are not audited")

	_, err = newTestService(t, &fakeDB{}, config.AuditConfig{}).Ticket(context.Background(), testTicket)
	assert.True(t, apperrors.IsNotFound(err))

	_, err = s.Ticket(context.Background(), "1234")
	assert.True(t, apperrors.IsInvalidFilterValue(err))
}

func TestService_TicketEventIDs(t *testing.T) {
	db := &fakeDB{rows: func(string) *fakeRows {
		return &fakeRows{columns: []string{"events_id"}, data: [][]interface{}{{int64(1)}, {int64(1)}, {int64(4)}}}
	}}
	s := newTestService(t, db, config.AuditConfig{})

	ids, err := s.TicketEventIDs(context.Background(), testTicket)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1, 4}, ids)

	ids, err = newTestService(t, &fakeDB{}, config.AuditConfig{}).TicketEventIDs(context.Background(), testTicket)
	require.NoError(t, err)
	assert.Equal(t, []int64{}, ids)
}

func TestService_TicketEvents(t *testing.T) {
	db := &fakeDB{rows: eventRows}
	s := newTestService(t, db, config.AuditConfig{})

	rows, err := s.TicketEvents(context.Background(), testTicket, 5)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.True(t, strings.HasPrefix(db.queries[0], "SELECT events.*"))
	assert.Contains(t, db.queries[0], "LIMIT $2")
}

func TestService_Recipients(t *testing.T) {
	db := &fakeDB{rows: func(string) *fakeRows {
		return &fakeRows{
			columns: []string{"directive", "sent"},
			data: [][]interface{}{
				{[]byte(`{"id": 10, "recipient_address": "abuse@example.net", "notification_interval": "1 day"}`), []byte(`{"id": 3, "intelmq_ticket": "` + testTicket + `"}`)},
			},
		}
	}}
	s := newTestService(t, db, config.AuditConfig{})

	recipients, err := s.Recipients(context.Background(), testTicket)
	require.NoError(t, err)
	require.Len(t, recipients, 1)
	assert.Equal(t, "abuse@example.net", recipients[0].Directive["recipient_address"])
	assert.Equal(t, int64(86400), recipients[0].Directive["notification_interval"])
	assert.Equal(t, testTicket, recipients[0].Sent["intelmq_ticket"])

	_, err = newTestService(t, &fakeDB{}, config.AuditConfig{}).Recipients(context.Background(), testTicket)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestService_LastTicket(t *testing.T) {
	db := &fakeDB{rows: func(string) *fakeRows {
		return &fakeRows{columns: []string{"intelmq_ticket"}, data: [][]interface{}{{"20240102-10000002"}}}
	}}
	s := newTestService(t, db, config.AuditConfig{})

	ticket, err := s.LastTicket(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "20240102-10000002", ticket)

	_, err = newTestService(t, &fakeDB{}, config.AuditConfig{}).LastTicket(context.Background())
	assert.True(t, apperrors.IsNotFound(err))
}
