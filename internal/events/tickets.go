package events

import (
	"context"
	"fmt"

	"incidentdb/internal/catalog"
	"incidentdb/internal/pool"
	"incidentdb/internal/query"
	apperrors "incidentdb/pkg/errors"
)

// ticketKey is the catalog key matching sent.intelmq_ticket.
const ticketKey = "ticket"

// Recipient is one directive sent with a ticket.
type Recipient struct {
	Directive map[string]interface{} `json:"directive"`
	Sent      map[string]interface{} `json:"sent"`
}

// TicketSearch searches events together with the directives and sent rows
// they were notified with.
func (s *Service) TicketSearch(ctx context.Context, spec query.FilterSpec, opts query.Options) (*SearchResult, error) {
	opts.Include = append(append([]string(nil), opts.Include...), catalog.TableSent)
	return s.Search(ctx, spec, opts)
}

// TicketStat counts distinct tickets per bucket of their sent time.
func (s *Service) TicketStat(ctx context.Context, spec query.FilterSpec, opts query.Options) (*StatResult, error) {
	return s.stat(ctx, query.KindTicketStat, spec, opts)
}

// Ticket returns the events of one ticket with their directives and sent
// rows. It fails with NotFound for unknown tickets.
func (s *Service) Ticket(ctx context.Context, ticket string) ([]Row, error) {
	if err := query.ValidateTicket(ticketKey, ticket); err != nil {
		return nil, err
	}
	spec := query.FilterSpec{{Key: ticketKey, Values: []string{ticket}}}
	q, err := s.composer.Compose(query.KindExport, spec, query.Options{Include: []string{catalog.TableSent}})
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
	if q.RowCap > 0 && len(rows) > q.RowCap {
		rows = rows[:q.RowCap]
	}
	if len(rows) == 0 {
		return nil, ticketNotFound(ticket)
	}
	return rows, nil
}

// TicketEventIDs lists the event ids notified with ticket. Events notified
// through several directives appear once per directive.
func (s *Service) TicketEventIDs(ctx context.Context, ticket string) ([]int64, error) {
	if err := query.ValidateTicket(ticketKey, ticket); err != nil {
		return nil, err
	}
	q, err := s.composer.TicketEventIDs(ticket)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var ids []int64
	err = s.run(ctx, q, []string{ticketKey}, func(r pool.Rows) (int, error) {
		var err error
		ids, err = scanIDs(r)
		return len(ids), err
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// TicketEvents returns the events for the first limit event ids of ticket.
func (s *Service) TicketEvents(ctx context.Context, ticket string, limit int) ([]Row, error) {
	if err := query.ValidateTicket(ticketKey, ticket); err != nil {
		return nil, err
	}
	q, err := s.composer.TicketEvents(ticket, limit)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var rows []Row
	err = s.run(ctx, q, []string{ticketKey}, func(r pool.Rows) (int, error) {
		var err error
		rows, err = scanRows(r)
		return len(rows), err
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Recipients lists the directives sent with ticket. It fails with NotFound
// for unknown tickets.
func (s *Service) Recipients(ctx context.Context, ticket string) ([]Recipient, error) {
	if err := query.ValidateTicket(ticketKey, ticket); err != nil {
		return nil, err
	}
	q, err := s.composer.Recipients(ticket)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var rows []Row
	err = s.run(ctx, q, []string{ticketKey}, func(r pool.Rows) (int, error) {
		var err error
		rows, err = scanRows(r)
		return len(rows), err
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ticketNotFound(ticket)
	}

	out := make([]Recipient, len(rows))
	for i, row := range rows {
		out[i] = Recipient{Directive: row.Directive, Sent: row.Sent}
	}
	return out, nil
}

// LastTicket returns the ticket number sent most recently.
func (s *Service) LastTicket(ctx context.Context) (string, error) {
	q, err := s.composer.LastTicket()
	if err != nil {
		return "", err
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	var ticket string
	found := false
	err = s.run(ctx, q, nil, func(r pool.Rows) (int, error) {
		found = false
		for r.Next() {
			if err := r.Scan(&ticket); err != nil {
				return 0, fmt.Errorf("scan failed: %w", err)
			}
			found = true
		}
		if err := r.Err(); err != nil {
			return 0, err
		}
		if found {
			return 1, nil
		}
		return 0, nil
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", apperrors.ErrNotFound.WithMessage("no ticket has been sent yet")
	}
	return ticket, nil
}

func ticketNotFound(ticket string) error {
	return apperrors.ErrNotFound.WithMessage("ticket not found").WithDetail(ticketKey, ticket)
}

func scanIDs(rows pool.Rows) ([]int64, error) {
	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
