package query

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incidentdb/internal/catalog"
	apperrors "incidentdb/pkg/errors"
)

var allTables = map[string]bool{catalog.TableDirectives: true, catalog.TableSent: true}

func TestComposer_Lookup(t *testing.T) {
	c := newTestComposer(t, allTables)

	q, err := c.Lookup([]int64{7, 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, KindEvent, q.Kind)
	assert.Equal(t,
		`SELECT events.* FROM "events" AS events WHERE events."id" = ANY($1::bigint[]) ORDER BY events."id" ASC`,
		q.SQL)
	require.Len(t, q.Args, 1)
	assert.Equal(t, pq.Array([]int64{7, 3}), q.Args[0])
}

func TestComposer_LookupInclude(t *testing.T) {
	c := newTestComposer(t, allTables)

	q, err := c.Lookup([]int64{1}, []string{"sent"})
	require.NoError(t, err)
	assert.Equal(t, []string{"directives", "sent"}, q.Joins)
	assert.Contains(t, q.SQL, "row_to_json(directives.*) AS directive, row_to_json(sent.*) AS sent")
	assert.Contains(t, q.SQL, `ORDER BY events."id" ASC, directives."id" ASC`)
}

func TestComposer_LookupErrors(t *testing.T) {
	c := newTestComposer(t, allTables)

	_, err := c.Lookup(nil, nil)
	assert.True(t, apperrors.IsInvalidFilterValue(err))

	_, err = newTestComposer(t, nil).Lookup([]int64{1}, []string{"directives"})
	assert.True(t, apperrors.IsFeatureNotAvailable(err))
}
