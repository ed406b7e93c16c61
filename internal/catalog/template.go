package catalog

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "incidentdb/pkg/errors"
)

var tableRefPattern = regexp.MustCompile(`(?i)(?:^|[^\w".])"?(directives|sent)"?\s*\.`)

// CountPlaceholders returns the number of %s placeholders in tmpl. Any other
// verb is rejected.
func CountPlaceholders(tmpl string) (int, error) {
	n := 0
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] != '%' {
			continue
		}
		if i+1 >= len(tmpl) {
			return 0, fmt.Errorf("dangling %% at end of template")
		}
		switch tmpl[i+1] {
		case 's':
			n++
		case '%':
		default:
			return 0, fmt.Errorf("unsupported verb %%%c at offset %d", tmpl[i+1], i)
		}
		i++
	}
	return n, nil
}

// Render replaces every %s with the string returned by next and every %% with
// a single percent sign. It returns the number of placeholders substituted.
func (d SubqueryDef) Render(next func() string) (string, int) {
	var b strings.Builder
	b.Grow(len(d.SQL) + 8)
	n := 0
	for i := 0; i < len(d.SQL); i++ {
		c := d.SQL[i]
		if c == '%' && i+1 < len(d.SQL) {
			switch d.SQL[i+1] {
			case 's':
				b.WriteString(next())
				n++
				i++
				continue
			case '%':
				b.WriteByte('%')
				i++
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String(), n
}

func referencedTables(tmpl string) []string {
	seen := map[string]bool{}
	for _, m := range tableRefPattern.FindAllStringSubmatch(tmpl, -1) {
		seen[strings.ToLower(m[1])] = true
	}
	var tables []string
	if seen[TableDirectives] || seen[TableSent] {
		tables = append(tables, TableDirectives)
	}
	if seen[TableSent] {
		tables = append(tables, TableSent)
	}
	return tables
}

func newSubquery(name, sql string, arity int, label, description string, kind Kind) (SubqueryDef, error) {
	count, err := CountPlaceholders(sql)
	if err != nil {
		return SubqueryDef{}, apperrors.ErrConfiguration.
			WithMessagef("subquery %q: %v", name, err).
			WithDetail("subquery", name)
	}
	if count == 0 {
		return SubqueryDef{}, apperrors.ErrConfiguration.
			WithMessagef("subquery %q has no placeholder", name).
			WithDetail("subquery", name)
	}
	if arity != 0 && arity != count {
		return SubqueryDef{}, apperrors.ErrConfiguration.
			WithCause(apperrors.ErrSubqueryArityMismatch).
			WithMessagef("subquery %q declares arity %d but has %d placeholders", name, arity, count).
			WithDetail("subquery", name)
	}
	if kind == "" {
		kind = KindString
	}
	if !kind.Valid() {
		return SubqueryDef{}, apperrors.ErrConfiguration.
			WithMessagef("subquery %q has invalid kind %q", name, kind).
			WithDetail("subquery", name)
	}
	if label == "" {
		label = name
	}
	return SubqueryDef{
		Name:        name,
		SQL:         sql,
		Arity:       count,
		Label:       label,
		Description: description,
		Kind:        kind,
		Tables:      referencedTables(sql),
	}, nil
}
