package query

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/lib/pq"

	"incidentdb/internal/catalog"
	apperrors "incidentdb/pkg/errors"
)

const (
	// KindTicketIDs lists the event ids notified with one ticket.
	KindTicketIDs Kind = "ticket_ids"
	// KindTicketEvents fetches the events notified with one ticket.
	KindTicketEvents Kind = "ticket_events"
	// KindRecipients lists the directives and sent rows of one ticket.
	KindRecipients Kind = "ticket_recipients"
	// KindLastTicket returns the most recently sent ticket number.
	KindLastTicket Kind = "last_ticket"
)

// Ticket numbers look like 20240101-10000001.
const (
	MinTicketLength = 17
	MaxTicketLength = 18
)

// ValidateTicket rejects ticket numbers of the wrong length.
func ValidateTicket(key, ticket string) error {
	n := utf8.RuneCountInString(ticket)
	if n < MinTicketLength || n > MaxTicketLength {
		return apperrors.ErrInvalidFilterValue.
			WithMessagef("%s must be %d to %d characters long", key, MinTicketLength, MaxTicketLength).
			WithDetail("key", key).
			WithDetail("value", ticket)
	}
	return nil
}

func (c *Composer) requireTables(tables ...string) error {
	for _, t := range tables {
		if !c.resolver.TableAvailable(t) {
			return apperrors.ErrFeatureNotAvailable.
				WithMessagef("table %s is not available", t).
				WithDetail("table", t)
		}
	}
	return nil
}

func ticketFrom(sql *strings.Builder) {
	fmt.Fprintf(sql, " FROM %s AS directives INNER JOIN %s AS sent ON sent.id = directives.sent_id",
		pq.QuoteIdentifier(catalog.TableDirectives), pq.QuoteIdentifier(catalog.TableSent))
}

// TicketEventIDs selects the event ids of every directive sent with ticket,
// in ascending order.
func (c *Composer) TicketEventIDs(ticket string) (*ComposedQuery, error) {
	if err := c.requireTables(catalog.TableDirectives, catalog.TableSent); err != nil {
		return nil, err
	}
	b := &builder{}

	var sql strings.Builder
	sql.WriteString(`SELECT directives."events_id"`)
	ticketFrom(&sql)
	fmt.Fprintf(&sql, ` WHERE sent."intelmq_ticket" = %s ORDER BY directives."events_id" ASC`, b.bind(ticket))

	return &ComposedQuery{Kind: KindTicketIDs, SQL: sql.String(), Args: b.args, ReadOnly: true}, nil
}

// TicketEvents selects whole events for the first limit event ids of ticket.
// A zero limit means the default page size.
func (c *Composer) TicketEvents(ticket string, limit int) (*ComposedQuery, error) {
	if limit < 0 {
		return nil, apperrors.ErrInvalidFilterValue.WithMessage("limit must be non-negative")
	}
	if err := c.requireTables(catalog.TableDirectives, catalog.TableSent); err != nil {
		return nil, err
	}
	if limit == 0 {
		limit = c.limits.DefaultLimit
	}
	if c.limits.MaxLimit > 0 && limit > c.limits.MaxLimit {
		limit = c.limits.MaxLimit
	}

	b := &builder{}
	var ids strings.Builder
	ids.WriteString(`SELECT directives."events_id"`)
	ticketFrom(&ids)
	fmt.Fprintf(&ids, ` WHERE sent."intelmq_ticket" = %s ORDER BY directives."events_id" ASC`, b.bind(ticket))
	if limit > 0 {
		fmt.Fprintf(&ids, " LIMIT %s", b.bind(limit))
	}

	sql := fmt.Sprintf(`SELECT events.* FROM %s AS events WHERE events."id" IN (%s) ORDER BY events."id" ASC`,
		pq.QuoteIdentifier(c.resolver.EventsTable()), ids.String())

	return &ComposedQuery{Kind: KindTicketEvents, SQL: sql, Args: b.args, ReadOnly: true}, nil
}

// Recipients selects each directive sent with ticket together with its sent
// row, both as JSON objects.
func (c *Composer) Recipients(ticket string) (*ComposedQuery, error) {
	if err := c.requireTables(catalog.TableDirectives, catalog.TableSent); err != nil {
		return nil, err
	}
	b := &builder{}

	var sql strings.Builder
	sql.WriteString("SELECT row_to_json(directives.*) AS directive, row_to_json(sent.*) AS sent")
	ticketFrom(&sql)
	fmt.Fprintf(&sql, ` WHERE sent."intelmq_ticket" = %s ORDER BY directives."id" ASC`, b.bind(ticket))

	return &ComposedQuery{
		Kind:     KindRecipients,
		SQL:      sql.String(),
		Args:     b.args,
		ReadOnly: true,
		Joins:    []string{catalog.TableDirectives, catalog.TableSent},
	}, nil
}

// LastTicket selects the ticket number sent last.
func (c *Composer) LastTicket() (*ComposedQuery, error) {
	if err := c.requireTables(catalog.TableSent); err != nil {
		return nil, err
	}
	sql := fmt.Sprintf(`SELECT sent."intelmq_ticket" FROM %s AS sent ORDER BY sent."sent_at" DESC, sent."id" DESC LIMIT 1`,
		pq.QuoteIdentifier(catalog.TableSent))
	return &ComposedQuery{Kind: KindLastTicket, SQL: sql, ReadOnly: true}, nil
}
