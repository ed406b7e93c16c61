package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incidentdb/internal/catalog"
	apperrors "incidentdb/pkg/errors"
)

func TestValidateTicket(t *testing.T) {
	tests := []struct {
		name    string
		ticket  string
		wantErr bool
	}{
		{name: "seventeen", ticket: "20240101-10000001"},
		{name: "eighteen", ticket: "20240101-100000012"},
		{name: "short", ticket: "20240101-1000", wantErr: true},
		{name: "long", ticket: "20240101-1000000123", wantErr: true},
		{name: "empty", ticket: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTicket("ticket", tt.ticket)
			if tt.wantErr {
				assert.True(t, apperrors.IsInvalidFilterValue(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestComposer_TicketEventIDs(t *testing.T) {
	c := newTestComposer(t, allTables)

	q, err := c.TicketEventIDs("20240101-10000001")
	require.NoError(t, err)
	assertBound(t, q)
	assert.Equal(t, KindTicketIDs, q.Kind)
	assert.True(t, q.ReadOnly)
	assert.Equal(t, `SELECT directives."events_id" FROM "directives" AS directives `+
		`INNER JOIN "sent" AS sent ON sent.id = directives.sent_id `+
		`WHERE sent."intelmq_ticket" = $1 ORDER BY directives."events_id" ASC`, q.SQL)
	assert.Equal(t, []interface{}{"20240101-10000001"}, q.Args)
}

func TestComposer_TicketEvents(t *testing.T) {
	c := newTestComposer(t, allTables)

	tests := []struct {
		name      string
		limit     int
		wantLimit int
	}{
		{name: "default", limit: 0, wantLimit: testLimits.DefaultLimit},
		{name: "explicit", limit: 2, wantLimit: 2},
		{name: "capped", limit: testLimits.MaxLimit + 1, wantLimit: testLimits.MaxLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := c.TicketEvents("20240101-10000001", tt.limit)
			require.NoError(t, err)
			assertBound(t, q)
			assert.Equal(t, `SELECT events.* FROM "events" AS events WHERE events."id" IN (`+
				`SELECT directives."events_id" FROM "directives" AS directives `+
				`INNER JOIN "sent" AS sent ON sent.id = directives.sent_id `+
				`WHERE sent."intelmq_ticket" = $1 ORDER BY directives."events_id" ASC LIMIT $2) `+
				`ORDER BY events."id" ASC`, q.SQL)
			assert.Equal(t, []interface{}{"20240101-10000001", tt.wantLimit}, q.Args)
		})
	}

	_, err := c.TicketEvents("20240101-10000001", -1)
	assert.True(t, apperrors.IsInvalidFilterValue(err))
}

func TestComposer_Recipients(t *testing.T) {
	c := newTestComposer(t, allTables)

	q, err := c.Recipients("20240101-10000001")
	require.NoError(t, err)
	assertBound(t, q)
	assert.Equal(t, `SELECT row_to_json(directives.*) AS directive, row_to_json(sent.*) AS sent `+
		`FROM "directives" AS directives INNER JOIN "sent" AS sent ON sent.id = directives.sent_id `+
		`WHERE sent."intelmq_ticket" = $1 ORDER BY directives."id" ASC`, q.SQL)
	assert.True(t, q.Joined(catalog.TableSent))
}

func TestComposer_LastTicket(t *testing.T) {
	q, err := newTestComposer(t, allTables).LastTicket()
	require.NoError(t, err)
	assert.Equal(t, `SELECT sent."intelmq_ticket" FROM "sent" AS sent ORDER BY sent."sent_at" DESC, sent."id" DESC LIMIT 1`, q.SQL)
	assert.Empty(t, q.Args)
}

func TestComposer_TicketQueriesNeedTables(t *testing.T) {
	c := newTestComposer(t, map[string]bool{catalog.TableDirectives: true})

	_, err := c.TicketEventIDs("20240101-10000001")
	assert.True(t, apperrors.IsFeatureNotAvailable(err))
	_, err = c.TicketEvents("20240101-10000001", 0)
	assert.True(t, apperrors.IsFeatureNotAvailable(err))
	_, err = c.Recipients("20240101-10000001")
	assert.True(t, apperrors.IsFeatureNotAvailable(err))
	_, err = c.LastTicket()
	assert.True(t, apperrors.IsFeatureNotAvailable(err))
}
