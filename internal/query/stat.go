package query

import (
	"time"

	"incidentdb/internal/catalog"
	apperrors "incidentdb/pkg/errors"
)

// statWindow pulls the bounds on the stat axis out of entries and replaces
// them with a single window. Missing bounds default to one day before and one
// day after now; reversed bounds are swapped. An lte bound stays inclusive.
func (c *Composer) statWindow(b *builder, kind Kind, entries []resolved, opts Options) ([]resolved, *StatWindow, error) {
	axisKey := opts.StatAxis
	if axisKey == "" {
		axisKey = DefaultStatAxis
		if kind == KindTicketStat {
			axisKey = TicketStatAxis
		}
	}
	axis, err := c.resolver.Resolve(axisKey)
	if err != nil {
		return nil, nil, err
	}
	if axis.Mapping == nil || axis.Mapping.Kind != catalog.KindDatetime {
		return nil, nil, apperrors.ErrInvalidFilterValue.
			WithMessagef("%s cannot be used as stat axis", axisKey).
			WithDetail("axis", axisKey)
	}
	b.need(axis.Tables())

	var from, to *time.Time
	inclusive := false
	rest := make([]resolved, 0, len(entries))

	for _, r := range entries {
		m := r.entry.Mapping
		if m == nil || m.Table != axis.Mapping.Table || m.Column != axis.Mapping.Column {
			rest = append(rest, r)
			continue
		}
		if len(r.filter.Values) != 1 {
			return nil, nil, apperrors.ErrInvalidFilterValue.
				WithMessagef("%s given more than once", r.filter.Key).
				WithDetail("key", r.filter.Key)
		}
		raw := r.filter.Values[0]

		if lo, hi, ok := splitRange(raw); ok {
			f, err := parseValue(r.filter.Key, catalog.KindDatetime, lo, c.loc)
			if err != nil {
				return nil, nil, err
			}
			t, err := parseValue(r.filter.Key, catalog.KindDatetime, hi, c.loc)
			if err != nil {
				return nil, nil, err
			}
			ft, tt := f.(time.Time), t.(time.Time)
			from, to, inclusive = &ft, &tt, false
			continue
		}

		v, err := parseValue(r.filter.Key, catalog.KindDatetime, raw, c.loc)
		if err != nil {
			return nil, nil, err
		}
		ts := v.(time.Time)

		switch m.Operator {
		case catalog.OpGreater, catalog.OpGreaterEq:
			from = &ts
		case catalog.OpLess:
			to, inclusive = &ts, false
		case catalog.OpLessEq:
			to, inclusive = &ts, true
		default:
			rest = append(rest, r)
		}
	}

	now := c.now()
	if from == nil {
		start := now.Add(-day).UTC()
		from = &start
	}
	if to == nil {
		end := now.Add(day).UTC()
		to = &end
	}
	if from.After(*to) {
		from, to, inclusive = to, from, false
	}

	res := opts.Resolution
	if res == "" {
		res = SuggestResolution(*from, *to)
	} else if !res.Valid() {
		return nil, nil, apperrors.ErrInvalidFilterValue.
			WithMessagef("unsupported resolution %q (valid: hour, day, week, month)", string(res)).
			WithDetail("key", "timeres")
	}

	col := column(axis.Mapping.Table, axis.Mapping.Column)
	b.statCol = col
	upper := " < "
	if inclusive {
		upper = " <= "
	}
	b.where = append(b.where, col+" >= "+b.bind(*from)+" AND "+col+upper+b.bind(*to))

	return rest, &StatWindow{Resolution: res, From: *from, To: *to, ToInclusive: inclusive, Location: c.loc}, nil
}
