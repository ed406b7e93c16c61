package query

import (
	"net/url"
	"sort"
	"strings"
)

// Filter is one key of a FilterSpec. Several values are OR-ed. A single
// value of the form "from..to" on a datetime or integer key is a half-open
// range [from, to).
type Filter struct {
	Key    string
	Values []string
}

// FilterSpec is an ordered list of filters. Keys are AND-ed.
type FilterSpec []Filter

// Keys returns the filter keys in order.
func (s FilterSpec) Keys() []string {
	keys := make([]string, len(s))
	for i, f := range s {
		keys[i] = f.Key
	}
	return keys
}

// Get returns the values of key, or nil.
func (s FilterSpec) Get(key string) []string {
	for _, f := range s {
		if f.Key == key {
			return f.Values
		}
	}
	return nil
}

// FromValues builds a FilterSpec from URL query values, skipping reserved
// parameters. Keys are sorted so equal queries compose to equal SQL. A
// comma is not a separator; repeat the key to OR values.
func FromValues(values url.Values, reserved ...string) FilterSpec {
	skip := make(map[string]bool, len(reserved))
	for _, r := range reserved {
		skip[r] = true
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		if skip[k] || strings.TrimSpace(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	spec := make(FilterSpec, 0, len(keys))
	for _, k := range keys {
		vals := make([]string, 0, len(values[k]))
		for _, v := range values[k] {
			if v == "" {
				continue
			}
			vals = append(vals, v)
		}
		if len(vals) == 0 {
			continue
		}
		spec = append(spec, Filter{Key: k, Values: vals})
	}
	return spec
}

// FromMap builds a FilterSpec from single-valued filters, sorted by key.
func FromMap(m map[string]string) FilterSpec {
	values := make(url.Values, len(m))
	for k, v := range m {
		values.Set(k, v)
	}
	return FromValues(values)
}

func splitRange(v string) (from, to string, ok bool) {
	from, to, ok = strings.Cut(v, "..")
	if !ok {
		return "", "", false
	}
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" || to == "" {
		return "", "", false
	}
	return from, to, true
}
