// Package catalog maps public filter keys to columns and named subqueries.
// A Catalog is built once at startup and is read-only afterwards.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"incidentdb/internal/config"
	apperrors "incidentdb/pkg/errors"
)

type Catalog struct {
	eventsTable string
	mappings    map[string]ColumnMapping
	subqueries  map[string]SubqueryDef
	tables      map[string]bool
}

// New builds the catalog from the default definitions overlaid with cfg.
// available lists the optional tables present in this deployment.
func New(cfg config.CatalogConfig, available map[string]bool) (*Catalog, error) {
	c := &Catalog{
		eventsTable: cfg.EventsTable,
		mappings:    make(map[string]ColumnMapping),
		subqueries:  make(map[string]SubqueryDef),
		tables:      map[string]bool{TableEvents: true},
	}
	if c.eventsTable == "" {
		c.eventsTable = TableEvents
	}

	if available[TableSent] && !available[TableDirectives] {
		return nil, apperrors.ErrConfiguration.WithMessage("table sent requires table directives")
	}
	c.tables[TableDirectives] = available[TableDirectives]
	c.tables[TableSent] = available[TableSent]

	for _, m := range defaultMappings() {
		c.mappings[m.Key] = m
	}
	for _, seed := range defaultSubqueries {
		def, err := newSubquery(seed.name, seed.sql, 0, seed.label, seed.description, seed.kind)
		if err != nil {
			return nil, err
		}
		c.subqueries[def.Name] = def
	}

	for i, mc := range cfg.Mappings {
		m, err := mappingFromConfig(mc)
		if err != nil {
			return nil, apperrors.ErrConfiguration.
				WithMessagef("catalog.mappings[%d]: %v", i, err).
				WithDetail("key", mc.Key)
		}
		delete(c.subqueries, m.Key)
		c.mappings[m.Key] = m
	}

	names := make([]string, 0, len(cfg.Subqueries))
	for name := range cfg.Subqueries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sc := cfg.Subqueries[name]
		if _, clash := c.mappings[name]; clash {
			return nil, apperrors.ErrConfiguration.
				WithMessagef("subquery %q clashes with a column filter key", name)
		}
		def, err := newSubquery(name, sc.SQL, sc.Arity, sc.Label, sc.Description, Kind(sc.Kind))
		if err != nil {
			return nil, err
		}
		c.subqueries[name] = def
	}

	return c, nil
}

func mappingFromConfig(mc config.MappingConfig) (ColumnMapping, error) {
	m := ColumnMapping{
		Key:      mc.Key,
		Table:    strings.ToLower(mc.Table),
		Column:   mc.Column,
		Operator: Operator(strings.ToLower(mc.Operator)),
		Kind:     Kind(strings.ToLower(mc.Kind)),
	}
	if m.Table == "" {
		m.Table = TableEvents
	}
	if m.Operator == "" {
		m.Operator = OpEqual
	}
	if m.Kind == "" {
		m.Kind = KindString
	}

	switch m.Table {
	case TableEvents, TableDirectives, TableSent:
	default:
		return m, fmt.Errorf("unknown table %q", mc.Table)
	}
	if !m.Operator.Valid() {
		return m, fmt.Errorf("unknown operator %q", mc.Operator)
	}
	if !m.Kind.Valid() {
		return m, fmt.Errorf("unknown kind %q", mc.Kind)
	}
	if m.Operator == OpWithin && m.Kind != KindCIDR {
		return m, errors.New("operator within requires kind cidr")
	}
	if (m.Operator == OpILike || m.Operator == OpIContains) && m.Kind != KindString && m.Kind != KindEmail {
		return m, fmt.Errorf("operator %s requires a text kind", m.Operator)
	}
	return m, nil
}

// Resolve looks up key. It fails with UnknownFilterKey when no definition
// exists and FeatureNotAvailable when the definition needs a table this
// deployment lacks.
func (c *Catalog) Resolve(key string) (Entry, error) {
	var entry Entry
	if m, ok := c.mappings[key]; ok {
		entry.Mapping = &m
	} else if sq, ok := c.subqueries[key]; ok {
		entry.Subquery = &sq
	} else {
		return Entry{}, apperrors.ErrUnknownFilterKey.
			WithMessagef("unknown filter key: %s", key).
			WithDetail("key", key)
	}

	for _, table := range entry.Tables() {
		if !c.tables[table] {
			return Entry{}, apperrors.ErrFeatureNotAvailable.
				WithMessagef("filter %s requires table %s which is not available", key, table).
				WithDetail("key", key).
				WithDetail("table", table)
		}
	}
	return entry, nil
}

// EventsTable is the physical name of the base table.
func (c *Catalog) EventsTable() string {
	return c.eventsTable
}

func (c *Catalog) TableAvailable(table string) bool {
	return c.tables[table]
}

// Describe lists every key usable in this deployment, sorted by key.
func (c *Catalog) Describe() []KeyInfo {
	infos := make([]KeyInfo, 0, len(c.mappings)+len(c.subqueries))
	for key, m := range c.mappings {
		if _, err := c.Resolve(key); err != nil {
			continue
		}
		infos = append(infos, KeyInfo{
			Key:      key,
			Type:     "column",
			Kind:     m.Kind,
			Operator: string(m.Operator),
		})
	}
	for name, sq := range c.subqueries {
		if _, err := c.Resolve(name); err != nil {
			continue
		}
		infos = append(infos, KeyInfo{
			Key:         name,
			Type:        "subquery",
			Label:       sq.Label,
			Description: sq.Description,
			Kind:        sq.Kind,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos
}
