package query

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	apperrors "incidentdb/pkg/errors"
)

// Lookup builds the statement fetching complete events by id. Optional
// tables named in include are joined and returned with each event.
func (c *Composer) Lookup(ids []int64, include []string) (*ComposedQuery, error) {
	if len(ids) == 0 {
		return nil, apperrors.ErrInvalidFilterValue.
			WithMessage("at least one event id is required").
			WithDetail("key", "id")
	}
	if c.limits.MaxLimit > 0 && len(ids) > c.limits.MaxLimit {
		return nil, apperrors.ErrInvalidFilterValue.
			WithMessagef("at most %d event ids per request", c.limits.MaxLimit).
			WithDetail("key", "id")
	}

	b := &builder{joins: map[string]bool{}}
	if err := c.include(b, include); err != nil {
		return nil, err
	}
	order, err := c.orderBy(b, KindEvent, nil)
	if err != nil {
		return nil, err
	}

	q := &ComposedQuery{Kind: KindEvent, ReadOnly: true}
	q.setJoins(b)

	var sql strings.Builder
	sql.WriteString("SELECT events.*")
	c.jsonColumns(&sql, q)
	c.from(&sql, q)
	fmt.Fprintf(&sql, ` WHERE events."id" = ANY(%s::bigint[])`, b.bind(pq.Array(ids)))
	sql.WriteString(" ORDER BY ")
	sql.WriteString(order)

	q.SQL = sql.String()
	q.Args = b.args
	return q, nil
}
