package query

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incidentdb/internal/catalog"
	"incidentdb/internal/config"
	apperrors "incidentdb/pkg/errors"
)

var testLimits = Limits{DefaultLimit: 100, MaxLimit: 1000}

func newTestComposer(t *testing.T, tables map[string]bool) *Composer {
	t.Helper()
	cat, err := catalog.New(config.CatalogConfig{}, tables)
	require.NoError(t, err)
	c := NewComposer(cat, time.UTC, testLimits)
	c.now = func() time.Time { return time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC) }
	return c
}

var placeholderPattern = regexp.MustCompile(`\$(\d+)`)

// assertBound checks every argument is referenced exactly by its $n marker.
func assertBound(t *testing.T, q *ComposedQuery) {
	t.Helper()
	seen := map[string]bool{}
	for _, m := range placeholderPattern.FindAllStringSubmatch(q.SQL, -1) {
		seen[m[1]] = true
	}
	assert.Len(t, seen, len(q.Args), q.SQL)
	for i := range q.Args {
		assert.True(t, seen[fmt.Sprint(i+1)], "missing $%d in %s", i+1, q.SQL)
	}
}

func TestComposer_SearchFixtureSpec(t *testing.T) {
	c := newTestComposer(t, nil)
	spec := FromMap(map[string]string{
		"classification.type": "spam",
		"time.observed_from":  "2024-01-01",
		"time.observed_to":    "2024-01-02",
	})

	q, err := c.Compose(KindSearch, spec, Options{})
	require.NoError(t, err)
	assertBound(t, q)

	assert.True(t, strings.HasPrefix(q.SQL, `SELECT events."id", events."time.observation"`))
	assert.Contains(t, q.SQL, ` FROM "events" AS events WHERE `+
		`events."classification.type" ILIKE $1 AND `+
		`events."time.observation" >= $2 AND `+
		`events."time.observation" < $3 `+
		`ORDER BY events."id" ASC LIMIT $4`)
	assert.NotContains(t, q.SQL, "JOIN")
	assert.Equal(t, []interface{}{
		"spam",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		100,
	}, q.Args)
	assert.True(t, q.ReadOnly)
	assert.Empty(t, q.Joins)
}

func TestComposer_Idempotent(t *testing.T) {
	c := newTestComposer(t, nil)
	values := url.Values{
		"source.asn":          {"64496", "64497"},
		"classification.type": {"spam"},
		"limit":               {"10"},
	}

	first, err := c.Compose(KindSearch, FromValues(values, "limit"), Options{})
	require.NoError(t, err)
	second, err := c.Compose(KindSearch, FromValues(values, "limit"), Options{})
	require.NoError(t, err)

	assert.Equal(t, first.SQL, second.SQL)
	assert.Equal(t, first.Args, second.Args)
}

func TestComposer_MultiValueIsDisjunction(t *testing.T) {
	c := newTestComposer(t, nil)
	spec := FilterSpec{{Key: "classification.type", Values: []string{"spam", "phishing"}}}

	q, err := c.Compose(KindSearch, spec, Options{})
	require.NoError(t, err)
	assertBound(t, q)

	assert.Contains(t, q.SQL, `WHERE (events."classification.type" ILIKE $1 OR events."classification.type" ILIKE $2)`)
	assert.Equal(t, []interface{}{"spam", "phishing", 100}, q.Args)
}

func TestComposer_ValuesAreNeverInterpolated(t *testing.T) {
	c := newTestComposer(t, nil)
	hostile := `x'; DROP TABLE events; --`
	spec := FilterSpec{
		{Key: "feed.name", Values: []string{hostile}},
		{Key: "malware.name_icontains", Values: []string{hostile}},
	}

	for _, kind := range []Kind{KindSearch, KindExport, KindStat} {
		q, err := c.Compose(kind, spec, Options{})
		require.NoError(t, err, kind)
		assertBound(t, q)
		assert.NotContains(t, q.SQL, "DROP TABLE", kind)
	}
}

func TestComposer_LikeValuesAreEscaped(t *testing.T) {
	c := newTestComposer(t, nil)
	spec := FilterSpec{{Key: "malware.name_icontains", Values: []string{`50%_off\`}}}

	q, err := c.Compose(KindSearch, spec, Options{})
	require.NoError(t, err)

	assert.Contains(t, q.SQL, `events."malware.name" ILIKE concat('%', $1::text, '%')`)
	assert.Equal(t, `50\%\_off\\`, q.Args[0])
}

func TestComposer_Subquery(t *testing.T) {
	c := newTestComposer(t, nil)
	spec := FilterSpec{{Key: "address_in_network", Values: []string{"192.0.2.77/24"}}}

	q, err := c.Compose(KindSearch, spec, Options{})
	require.NoError(t, err)
	assertBound(t, q)

	assert.Contains(t, q.SQL, `WHERE ((events."source.ip" <<= $1::inet OR events."destination.ip" <<= $2::inet))`)
	assert.Equal(t, []interface{}{"192.0.2.0/24", "192.0.2.0/24", 100}, q.Args)
}

type arityStub struct {
	Resolver
}

func (s arityStub) Resolve(key string) (catalog.Entry, error) {
	if key == "broken" {
		return catalog.Entry{Subquery: &catalog.SubqueryDef{
			Name:  "broken",
			SQL:   "(a = %s OR b = %s)",
			Arity: 1,
			Kind:  catalog.KindString,
		}}, nil
	}
	return s.Resolver.Resolve(key)
}

func TestComposer_SubqueryArityMismatch(t *testing.T) {
	cat, err := catalog.New(config.CatalogConfig{}, nil)
	require.NoError(t, err)
	c := NewComposer(arityStub{Resolver: cat}, time.UTC, testLimits)

	_, err = c.Compose(KindSearch, FilterSpec{{Key: "broken", Values: []string{"x"}}}, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSubqueryArityMismatch)
}

func TestComposer_JoinsDirectives(t *testing.T) {
	c := newTestComposer(t, map[string]bool{catalog.TableDirectives: true, catalog.TableSent: true})
	spec := FilterSpec{{Key: "recipient.address", Values: []string{"Abuse <abuse@example.com>"}}}

	q, err := c.Compose(KindSearch, spec, Options{})
	require.NoError(t, err)
	assertBound(t, q)

	assert.Contains(t, q.SQL, `, row_to_json(directives.*) AS directive FROM "events" AS events `+
		`INNER JOIN "directives" AS directives ON directives.events_id = events.id `+
		`WHERE directives."recipient_address" ILIKE $1 `+
		`ORDER BY events."id" ASC, directives."id" ASC LIMIT $2`)
	assert.NotContains(t, q.SQL, "sent")
	assert.Equal(t, []string{catalog.TableDirectives}, q.Joins)
	assert.Equal(t, "abuse@example.com", q.Args[0])
}

func TestComposer_JoinsSentThroughDirectives(t *testing.T) {
	c := newTestComposer(t, map[string]bool{catalog.TableDirectives: true, catalog.TableSent: true})

	q, err := c.Compose(KindExport, FilterSpec{{Key: "ticket", Values: []string{"20240101-10000001"}}}, Options{})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(q.SQL, "SELECT events.*, row_to_json(directives.*) AS directive, row_to_json(sent.*) AS sent FROM"))
	assert.Contains(t, q.SQL, `INNER JOIN "directives" AS directives ON directives.events_id = events.id INNER JOIN "sent" AS sent ON sent.id = directives.sent_id`)
	assert.Equal(t, []string{catalog.TableDirectives, catalog.TableSent}, q.Joins)
}

func TestComposer_Include(t *testing.T) {
	c := newTestComposer(t, map[string]bool{catalog.TableDirectives: true})

	q, err := c.Compose(KindSearch, FilterSpec{{Key: "id", Values: []string{"7"}}}, Options{Include: []string{"directives"}})
	require.NoError(t, err)
	assert.True(t, q.Joined(catalog.TableDirectives))
	assert.Equal(t, []interface{}{int64(7), 100}, q.Args)

	_, err = c.Compose(KindSearch, FilterSpec{{Key: "id", Values: []string{"7"}}}, Options{Include: []string{"sent"}})
	assert.True(t, apperrors.IsFeatureNotAvailable(err))

	_, err = c.Compose(KindSearch, FilterSpec{{Key: "id", Values: []string{"7"}}}, Options{Include: []string{"contacts"}})
	assert.True(t, apperrors.IsInvalidFilterValue(err))
}

func TestComposer_DisabledTableForEveryKind(t *testing.T) {
	c := newTestComposer(t, nil)
	for _, key := range []string{"recipient.address", "ticket", "recipient_group"} {
		for _, kind := range []Kind{KindSearch, KindStat, KindExport} {
			_, err := c.Compose(kind, FilterSpec{{Key: key, Values: []string{"a@example.com"}}}, Options{})
			require.Error(t, err)
			assert.True(t, apperrors.IsFeatureNotAvailable(err), "%s/%s: %v", key, kind, err)
		}
	}
}

func TestComposer_Errors(t *testing.T) {
	c := newTestComposer(t, nil)

	tests := []struct {
		name  string
		kind  Kind
		spec  FilterSpec
		opts  Options
		check func(error) bool
	}{
		{"unknown key", KindSearch, FilterSpec{{Key: "nope", Values: []string{"1"}}}, Options{}, apperrors.IsUnknownFilterKey},
		{"bad integer", KindSearch, FilterSpec{{Key: "id", Values: []string{"abc"}}}, Options{}, apperrors.IsInvalidFilterValue},
		{"bad date", KindSearch, FilterSpec{{Key: "time.observed_from", Values: []string{"yesterday-ish"}}}, Options{}, apperrors.IsInvalidFilterValue},
		{"bad ip", KindSearch, FilterSpec{{Key: "source.ip", Values: []string{"999.1.1.1"}}}, Options{}, apperrors.IsInvalidFilterValue},
		{"bad cidr", KindSearch, FilterSpec{{Key: "source.ip_in_network", Values: []string{"10.0.0.0/99"}}}, Options{}, apperrors.IsInvalidFilterValue},
		{"empty search", KindSearch, nil, Options{}, apperrors.IsInvalidFilterValue},
		{"empty export", KindExport, nil, Options{}, apperrors.IsInvalidFilterValue},
		{"duplicate key", KindSearch, FilterSpec{{Key: "id", Values: []string{"1"}}, {Key: "id", Values: []string{"2"}}}, Options{}, apperrors.IsInvalidFilterValue},
		{"sort by subquery", KindSearch, FilterSpec{{Key: "id", Values: []string{"1"}}}, Options{Sort: []SortKey{{Key: "address_in_network"}}}, apperrors.IsInvalidFilterValue},
		{"negative limit", KindSearch, FilterSpec{{Key: "id", Values: []string{"1"}}}, Options{Limit: -1}, apperrors.IsInvalidFilterValue},
		{"stat axis not a date", KindStat, nil, Options{StatAxis: "feed.name"}, apperrors.IsInvalidFilterValue},
		{"stat bound twice", KindStat, FilterSpec{{Key: "time.observed_from", Values: []string{"2024-01-01", "2024-02-01"}}}, Options{}, apperrors.IsInvalidFilterValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Compose(tt.kind, tt.spec, tt.opts)
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
		})
	}
}

func TestComposer_TimezoneNormalization(t *testing.T) {
	cat, err := catalog.New(config.CatalogConfig{}, nil)
	require.NoError(t, err)
	c := NewComposer(cat, time.FixedZone("CET", 3600), testLimits)

	q, err := c.Compose(KindSearch, FilterSpec{
		{Key: "time.observed_from", Values: []string{"2024-01-01"}},
		{Key: "time.observed_to", Values: []string{"2024-01-02T06:00:00+02:00"}},
	}, Options{})
	require.NoError(t, err)

	from := q.Args[0].(time.Time)
	to := q.Args[1].(time.Time)
	assert.Equal(t, time.UTC, from.Location())
	assert.Equal(t, time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 1, 2, 4, 0, 0, 0, time.UTC), to)
}

func TestComposer_RangeValue(t *testing.T) {
	c := newTestComposer(t, nil)

	q, err := c.Compose(KindSearch, FilterSpec{{Key: "source.asn", Values: []string{"100..200"}}}, Options{})
	require.NoError(t, err)
	assert.Contains(t, q.SQL, `WHERE (events."source.asn" >= $1 AND events."source.asn" < $2)`)
	assert.Equal(t, []interface{}{int64(100), int64(200), 100}, q.Args)
}

func TestComposer_SortAndPaging(t *testing.T) {
	c := newTestComposer(t, nil)
	spec := FilterSpec{{Key: "feed.name", Values: []string{"spamhaus"}}}

	q, err := c.Compose(KindSearch, spec, Options{
		Sort:   []SortKey{{Key: "time.observation", Desc: true}},
		Limit:  5000,
		Offset: 20,
	})
	require.NoError(t, err)
	assertBound(t, q)
	assert.Contains(t, q.SQL, `ORDER BY events."time.observation" DESC, events."id" ASC LIMIT $2 OFFSET $3`)
	assert.Equal(t, []interface{}{"spamhaus", 1000, 20}, q.Args)
}

func TestComposer_ExportLimit(t *testing.T) {
	cat, err := catalog.New(config.CatalogConfig{}, nil)
	require.NoError(t, err)
	spec := FilterSpec{{Key: "feed.name", Values: []string{"spamhaus"}}}

	unlimited := NewComposer(cat, time.UTC, Limits{DefaultLimit: 100, MaxLimit: 1000})
	q, err := unlimited.Compose(KindExport, spec, Options{})
	require.NoError(t, err)
	assert.NotContains(t, q.SQL, "LIMIT")
	assert.True(t, strings.HasPrefix(q.SQL, `SELECT events.* FROM "events" AS events`))

	capped := NewComposer(cat, time.UTC, Limits{DefaultLimit: 100, MaxLimit: 1000, ExportMaxRows: 50})
	q, err = capped.Compose(KindExport, spec, Options{Limit: 500})
	require.NoError(t, err)
	assert.Contains(t, q.SQL, "LIMIT $2")
	assert.Equal(t, 51, q.Args[1])
	assert.Equal(t, 50, q.RowCap)

	q, err = capped.Compose(KindExport, spec, Options{Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 20, q.Args[1])
	assert.Zero(t, q.RowCap)
}

func TestComposer_CustomEventsTable(t *testing.T) {
	cat, err := catalog.New(config.CatalogConfig{EventsTable: `intelmq"events`}, nil)
	require.NoError(t, err)
	c := NewComposer(cat, time.UTC, testLimits)

	q, err := c.Compose(KindSearch, FilterSpec{{Key: "id", Values: []string{"1"}}}, Options{})
	require.NoError(t, err)
	assert.Contains(t, q.SQL, `FROM "intelmq""events" AS events`)
}

func TestComposer_Stat(t *testing.T) {
	c := newTestComposer(t, nil)
	spec := FromMap(map[string]string{
		"classification.type": "spam",
		"time.observed_from":  "2024-01-03",
		"time.observed_to":    "2024-01-01",
	})

	q, err := c.Compose(KindStat, spec, Options{})
	require.NoError(t, err)
	assertBound(t, q)

	assert.Equal(t, `SELECT date_trunc('day', events."time.observation") AS bucket, COUNT(*) AS count `+
		`FROM "events" AS events `+
		`WHERE events."time.observation" >= $1 AND events."time.observation" < $2 `+
		`AND events."classification.type" ILIKE $3 `+
		`GROUP BY 1 ORDER BY 1`, q.SQL)

	require.NotNil(t, q.Stat)
	assert.Equal(t, Day, q.Stat.Resolution)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), q.Stat.From)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), q.Stat.To)
	assert.Equal(t, []interface{}{q.Stat.From, q.Stat.To, "spam"}, q.Args)
}

func TestComposer_StatDefaultWindow(t *testing.T) {
	c := newTestComposer(t, nil)

	q, err := c.Compose(KindStat, nil, Options{Resolution: Hour})
	require.NoError(t, err)

	assert.Equal(t, Hour, q.Stat.Resolution)
	assert.Equal(t, time.Date(2024, 5, 9, 12, 0, 0, 0, time.UTC), q.Stat.From)
	assert.Equal(t, time.Date(2024, 5, 11, 12, 0, 0, 0, time.UTC), q.Stat.To)
	assert.Contains(t, q.SQL, "date_trunc('hour', ")
}

func TestComposer_StatOverSentAxis(t *testing.T) {
	c := newTestComposer(t, map[string]bool{catalog.TableDirectives: true, catalog.TableSent: true})

	q, err := c.Compose(KindStat, FilterSpec{{Key: "sent.at_from", Values: []string{"2024-01-01"}}}, Options{StatAxis: "sent.at"})
	require.NoError(t, err)

	assert.Contains(t, q.SQL, `date_trunc('`)
	assert.Contains(t, q.SQL, `sent."sent_at") AS bucket`)
	assert.Contains(t, q.SQL, `INNER JOIN "sent" AS sent`)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), q.Stat.From)
}

func TestComposer_StatRejectsUnknownResolution(t *testing.T) {
	c := newTestComposer(t, nil)

	for _, res := range []Resolution{"year", "DAY", "day', now()) AS bucket, 1 FROM pg_shadow --"} {
		q, err := c.Compose(KindStat, nil, Options{Resolution: res})
		assert.True(t, apperrors.IsInvalidFilterValue(err), "resolution %q", res)
		assert.Nil(t, q)
	}
}

func TestComposer_StatInclusiveUpperBound(t *testing.T) {
	cat, err := catalog.New(config.CatalogConfig{
		Mappings: []config.MappingConfig{
			{Key: "time.observed_until", Table: catalog.TableEvents, Column: "time.observation", Operator: "lte", Kind: "datetime"},
		},
	}, nil)
	require.NoError(t, err)
	c := NewComposer(cat, time.UTC, testLimits)
	c.now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }

	spec := FilterSpec{{Key: "time.observed_until", Values: []string{"2024-01-02"}}}
	q, err := c.Compose(KindStat, spec, Options{Resolution: Day})
	require.NoError(t, err)

	assert.Contains(t, q.SQL, `events."time.observation" >= $1 AND events."time.observation" <= $2`)
	assert.True(t, q.Stat.ToInclusive)
	assert.Equal(t, time.Date(2023, 12, 31, 12, 0, 0, 0, time.UTC), q.Stat.From)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), q.Stat.To)
}

func TestComposer_TicketStat(t *testing.T) {
	c := newTestComposer(t, map[string]bool{catalog.TableDirectives: true, catalog.TableSent: true})
	spec := FilterSpec{
		{Key: "sent.at_from", Values: []string{"2024-01-01"}},
		{Key: "sent.at_to", Values: []string{"2024-01-08"}},
		{Key: "malware.name", Values: []string{"nymaim"}},
	}

	q, err := c.Compose(KindTicketStat, spec, Options{})
	require.NoError(t, err)
	assertBound(t, q)

	assert.Equal(t, `SELECT date_trunc('day', sent."sent_at") AS bucket, COUNT(DISTINCT sent."intelmq_ticket") AS count `+
		`FROM "events" AS events `+
		`INNER JOIN "directives" AS directives ON directives.events_id = events.id `+
		`INNER JOIN "sent" AS sent ON sent.id = directives.sent_id `+
		`WHERE sent."sent_at" >= $1 AND sent."sent_at" < $2 AND events."malware.name" ILIKE $3 `+
		`GROUP BY 1 ORDER BY 1`, q.SQL)
	assert.Equal(t, Day, q.Stat.Resolution)

	_, err = newTestComposer(t, nil).Compose(KindTicketStat, nil, Options{})
	assert.True(t, apperrors.IsFeatureNotAvailable(err))
}
