// Package query composes parameterized SQL from filter specifications.
package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"incidentdb/internal/catalog"
	apperrors "incidentdb/pkg/errors"
)

// Kind selects the statement shape.
type Kind string

const (
	KindSearch Kind = "search"
	KindStat   Kind = "stat"
	KindExport Kind = "export"
	// KindEvent fetches whole events by id.
	KindEvent Kind = "event"
	// KindTicketStat counts distinct tickets per bucket of the sent time.
	KindTicketStat Kind = "ticket_stat"
)

func (k Kind) isStat() bool {
	return k == KindStat || k == KindTicketStat
}

// Resolver is the part of the catalog the composer needs.
type Resolver interface {
	Resolve(key string) (catalog.Entry, error)
	EventsTable() string
	TableAvailable(table string) bool
}

type SortKey struct {
	Key  string
	Desc bool
}

type Options struct {
	// Limit and Offset page search and export results. Zero means default.
	Limit  int
	Offset int
	Sort   []SortKey
	// Include joins optional tables and adds their rows to the result.
	Include []string
	// Resolution is the stat bucket width; empty picks one from the window.
	Resolution Resolution
	// StatAxis is the datetime filter key bucketed by stat queries.
	StatAxis string
}

type Limits struct {
	DefaultLimit  int
	MaxLimit      int
	ExportMaxRows int
}

// StatWindow describes the bucketed range of a stat query.
type StatWindow struct {
	Resolution Resolution
	From       time.Time
	To         time.Time
	// ToInclusive is set when the upper bound came from an lte filter.
	ToInclusive bool
	Location    *time.Location
}

// ComposedQuery is an immutable statement with its positional arguments.
type ComposedQuery struct {
	Kind     Kind
	SQL      string
	Args     []interface{}
	ReadOnly bool
	// Joins lists the optional tables joined, in join order.
	Joins []string
	Stat  *StatWindow
	// RowCap is the export row cap. The statement fetches one row more so
	// callers can tell a truncated result from a complete one.
	RowCap int
}

// Joined reports whether table is part of the statement.
func (q *ComposedQuery) Joined(table string) bool {
	for _, t := range q.Joins {
		if t == table {
			return true
		}
	}
	return false
}

// DefaultStatAxis is the timestamp stat queries bucket by.
const DefaultStatAxis = "time.observation"

// TicketStatAxis is the timestamp ticket stat queries bucket by.
const TicketStatAxis = "sent.at"

// searchColumns is the fixed projection of search results.
var searchColumns = []string{
	"id",
	"time.observation",
	"time.source",
	"source.ip",
	"source.fqdn",
	"source.asn",
	"destination.ip",
	"destination.fqdn",
	"classification.taxonomy",
	"classification.type",
	"classification.identifier",
	"malware.name",
	"feed.provider",
	"feed.name",
}

type Composer struct {
	resolver Resolver
	loc      *time.Location
	limits   Limits
	now      func() time.Time
}

// NewComposer returns a composer reading dates without an offset in loc.
func NewComposer(resolver Resolver, loc *time.Location, limits Limits) *Composer {
	if loc == nil {
		loc = time.UTC
	}
	return &Composer{
		resolver: resolver,
		loc:      loc,
		limits:   limits,
		now:      time.Now,
	}
}

// Location is the time zone dates are interpreted in.
func (c *Composer) Location() *time.Location {
	return c.loc
}

type builder struct {
	args    []interface{}
	where   []string
	joins   map[string]bool
	statCol string
}

func (b *builder) bind(v interface{}) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *builder) need(tables []string) {
	for _, t := range tables {
		b.joins[t] = true
	}
}

type resolved struct {
	filter Filter
	entry  catalog.Entry
}

// Compose builds the statement for kind. The same spec and options always
// produce the same SQL and argument order.
func (c *Composer) Compose(kind Kind, spec FilterSpec, opts Options) (*ComposedQuery, error) {
	switch kind {
	case KindSearch, KindExport, KindStat, KindTicketStat:
	default:
		return nil, apperrors.ErrValidation.WithMessagef("unknown query kind %q", kind)
	}

	if len(spec) == 0 && !kind.isStat() {
		return nil, apperrors.ErrInvalidFilterValue.WithMessage("queries without filters are not supported")
	}

	b := &builder{joins: map[string]bool{}}

	entries := make([]resolved, 0, len(spec))
	seen := make(map[string]bool, len(spec))
	for _, f := range spec {
		if seen[f.Key] {
			return nil, apperrors.ErrInvalidFilterValue.
				WithMessagef("filter %s given more than once", f.Key).
				WithDetail("key", f.Key)
		}
		seen[f.Key] = true
		if len(f.Values) == 0 {
			return nil, invalidValue(f.Key, "", "no value given")
		}
		entry, err := c.resolver.Resolve(f.Key)
		if err != nil {
			return nil, err
		}
		entries = append(entries, resolved{filter: f, entry: entry})
	}

	if err := c.include(b, opts.Include); err != nil {
		return nil, err
	}

	var window *StatWindow
	if kind.isStat() {
		var err error
		entries, window, err = c.statWindow(b, kind, entries, opts)
		if err != nil {
			return nil, err
		}
	}

	for _, r := range entries {
		cond, err := c.condition(b, r)
		if err != nil {
			return nil, err
		}
		b.where = append(b.where, cond)
		b.need(r.entry.Tables())
	}

	order, err := c.orderBy(b, kind, opts.Sort)
	if err != nil {
		return nil, err
	}

	q := &ComposedQuery{Kind: kind, ReadOnly: true, Stat: window}
	q.setJoins(b)

	var sql strings.Builder
	sql.WriteString("SELECT ")
	switch kind {
	case KindStat:
		fmt.Fprintf(&sql, "date_trunc('%s', %s) AS bucket, COUNT(*) AS count", window.Resolution, b.statCol)
	case KindTicketStat:
		fmt.Fprintf(&sql, "date_trunc('%s', %s) AS bucket, COUNT(DISTINCT %s) AS count",
			window.Resolution, b.statCol, column(catalog.TableSent, "intelmq_ticket"))
	case KindExport:
		sql.WriteString("events.*")
		c.jsonColumns(&sql, q)
	default:
		for i, col := range searchColumns {
			if i > 0 {
				sql.WriteString(", ")
			}
			sql.WriteString(column(catalog.TableEvents, col))
		}
		c.jsonColumns(&sql, q)
	}

	c.from(&sql, q)

	if len(b.where) > 0 {
		sql.WriteString(" WHERE ")
		sql.WriteString(strings.Join(b.where, " AND "))
	}

	if kind.isStat() {
		sql.WriteString(" GROUP BY 1 ORDER BY 1")
	} else {
		sql.WriteString(" ORDER BY ")
		sql.WriteString(order)
		rowCap, err := c.page(b, &sql, kind, opts)
		if err != nil {
			return nil, err
		}
		q.RowCap = rowCap
	}

	q.SQL = sql.String()
	q.Args = b.args
	return q, nil
}

func (c *Composer) include(b *builder, include []string) error {
	for _, table := range include {
		table = strings.ToLower(strings.TrimSpace(table))
		switch table {
		case catalog.TableDirectives:
		case catalog.TableSent:
			b.joins[catalog.TableDirectives] = true
		default:
			return apperrors.ErrInvalidFilterValue.
				WithMessagef("cannot include %q (valid: directives, sent)", table).
				WithDetail("include", table)
		}
		if !c.resolver.TableAvailable(table) {
			return apperrors.ErrFeatureNotAvailable.
				WithMessagef("table %s is not available", table).
				WithDetail("table", table)
		}
		b.joins[table] = true
	}
	return nil
}

func (c *Composer) from(sql *strings.Builder, q *ComposedQuery) {
	fmt.Fprintf(sql, " FROM %s AS events", pq.QuoteIdentifier(c.resolver.EventsTable()))
	if q.Joined(catalog.TableDirectives) {
		fmt.Fprintf(sql, " INNER JOIN %s AS directives ON directives.events_id = events.id", pq.QuoteIdentifier(catalog.TableDirectives))
	}
	if q.Joined(catalog.TableSent) {
		fmt.Fprintf(sql, " INNER JOIN %s AS sent ON sent.id = directives.sent_id", pq.QuoteIdentifier(catalog.TableSent))
	}
}

func (q *ComposedQuery) setJoins(b *builder) {
	if b.joins[catalog.TableDirectives] {
		q.Joins = append(q.Joins, catalog.TableDirectives)
	}
	if b.joins[catalog.TableSent] {
		q.Joins = append(q.Joins, catalog.TableSent)
	}
}

func (c *Composer) jsonColumns(sql *strings.Builder, q *ComposedQuery) {
	if q.Joined(catalog.TableDirectives) {
		sql.WriteString(", row_to_json(directives.*) AS directive")
	}
	if q.Joined(catalog.TableSent) {
		sql.WriteString(", row_to_json(sent.*) AS sent")
	}
}

func column(table, name string) string {
	return table + "." + pq.QuoteIdentifier(name)
}

func (c *Composer) condition(b *builder, r resolved) (string, error) {
	if r.entry.Subquery != nil {
		return c.subqueryCondition(b, r)
	}

	m := r.entry.Mapping
	col := column(m.Table, m.Column)
	parts := make([]string, 0, len(r.filter.Values))

	for _, raw := range r.filter.Values {
		if from, to, ok := splitRange(raw); ok && (m.Kind == catalog.KindDatetime || m.Kind == catalog.KindInteger) {
			lo, err := parseValue(r.filter.Key, m.Kind, from, c.loc)
			if err != nil {
				return "", err
			}
			hi, err := parseValue(r.filter.Key, m.Kind, to, c.loc)
			if err != nil {
				return "", err
			}
			parts = append(parts, fmt.Sprintf("(%s >= %s AND %s < %s)", col, b.bind(lo), col, b.bind(hi)))
			continue
		}

		v, err := parseValue(r.filter.Key, m.Kind, raw, c.loc)
		if err != nil {
			return "", err
		}
		parts = append(parts, c.compare(b, m, col, v))
	}

	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", nil
}

func (c *Composer) compare(b *builder, m *catalog.ColumnMapping, col string, v interface{}) string {
	switch m.Operator {
	case catalog.OpILike:
		return fmt.Sprintf("%s ILIKE %s", col, b.bind(likePattern(fmt.Sprint(v))))
	case catalog.OpIContains:
		return fmt.Sprintf("%s ILIKE concat('%%', %s::text, '%%')", col, b.bind(likePattern(fmt.Sprint(v))))
	case catalog.OpGreater:
		return fmt.Sprintf("%s > %s", col, b.bind(v))
	case catalog.OpGreaterEq:
		return fmt.Sprintf("%s >= %s", col, b.bind(v))
	case catalog.OpLess:
		return fmt.Sprintf("%s < %s", col, b.bind(v))
	case catalog.OpLessEq:
		return fmt.Sprintf("%s <= %s", col, b.bind(v))
	case catalog.OpWithin:
		return fmt.Sprintf("%s <<= %s::inet", col, b.bind(v))
	default:
		if m.Kind == catalog.KindIP {
			return fmt.Sprintf("%s = %s::inet", col, b.bind(v))
		}
		return fmt.Sprintf("%s = %s", col, b.bind(v))
	}
}

func (c *Composer) subqueryCondition(b *builder, r resolved) (string, error) {
	sq := r.entry.Subquery
	parts := make([]string, 0, len(r.filter.Values))

	for _, raw := range r.filter.Values {
		v, err := parseValue(r.filter.Key, sq.Kind, raw, c.loc)
		if err != nil {
			return "", err
		}
		mark := len(b.args)
		frag, n := sq.Render(func() string { return b.bind(v) })
		if n != sq.Arity {
			b.args = b.args[:mark]
			return "", apperrors.ErrSubqueryArityMismatch.
				WithMessagef("subquery %s declares %d placeholders but its template has %d", sq.Name, sq.Arity, n).
				WithDetail("subquery", sq.Name)
		}
		parts = append(parts, "("+frag+")")
	}

	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", nil
}

func (c *Composer) orderBy(b *builder, kind Kind, sortKeys []SortKey) (string, error) {
	if kind.isStat() {
		return "", nil
	}

	terms := make([]string, 0, len(sortKeys)+2)
	for _, s := range sortKeys {
		entry, err := c.resolver.Resolve(s.Key)
		if err != nil {
			return "", err
		}
		if entry.Mapping == nil {
			return "", apperrors.ErrInvalidFilterValue.
				WithMessagef("cannot sort by %s", s.Key).
				WithDetail("sort", s.Key)
		}
		if entry.Mapping.Table != catalog.TableEvents && !b.joins[entry.Mapping.Table] {
			return "", apperrors.ErrInvalidFilterValue.
				WithMessagef("sorting by %s requires include=%s", s.Key, entry.Mapping.Table).
				WithDetail("sort", s.Key)
		}
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		terms = append(terms, column(entry.Mapping.Table, entry.Mapping.Column)+" "+dir)
	}

	terms = append(terms, `events."id" ASC`)
	if b.joins[catalog.TableDirectives] {
		terms = append(terms, `directives."id" ASC`)
	}
	return strings.Join(terms, ", "), nil
}

// page appends LIMIT and OFFSET. For exports it returns the row cap that
// applied, with the bound limit one above it.
func (c *Composer) page(b *builder, sql *strings.Builder, kind Kind, opts Options) (int, error) {
	if opts.Limit < 0 || opts.Offset < 0 {
		return 0, apperrors.ErrInvalidFilterValue.WithMessage("limit and offset must be non-negative")
	}

	limit, rowCap := opts.Limit, 0
	if kind == KindExport {
		if c.limits.ExportMaxRows > 0 && (limit == 0 || limit > c.limits.ExportMaxRows) {
			rowCap = c.limits.ExportMaxRows
			limit = rowCap + 1
		}
	} else {
		if limit == 0 {
			limit = c.limits.DefaultLimit
		}
		if c.limits.MaxLimit > 0 && limit > c.limits.MaxLimit {
			limit = c.limits.MaxLimit
		}
	}

	if limit > 0 {
		fmt.Fprintf(sql, " LIMIT %s", b.bind(limit))
	}
	if opts.Offset > 0 {
		fmt.Fprintf(sql, " OFFSET %s", b.bind(opts.Offset))
	}
	return rowCap, nil
}
