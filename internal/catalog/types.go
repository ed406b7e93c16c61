package catalog

// Operator is the comparison a column filter applies.
type Operator string

const (
	OpEqual     Operator = "eq"
	OpILike     Operator = "ilike"
	OpIContains Operator = "icontains"
	OpGreater   Operator = "gt"
	OpGreaterEq Operator = "gte"
	OpLess      Operator = "lt"
	OpLessEq    Operator = "lte"
	OpWithin    Operator = "within"
)

func (o Operator) Valid() bool {
	switch o {
	case OpEqual, OpILike, OpIContains, OpGreater, OpGreaterEq, OpLess, OpLessEq, OpWithin:
		return true
	}
	return false
}

// Kind is the value type a filter accepts.
type Kind string

const (
	KindString   Kind = "string"
	KindInteger  Kind = "integer"
	KindDatetime Kind = "datetime"
	KindIP       Kind = "ip"
	KindCIDR     Kind = "cidr"
	KindEmail    Kind = "email"
)

func (k Kind) Valid() bool {
	switch k {
	case KindString, KindInteger, KindDatetime, KindIP, KindCIDR, KindEmail:
		return true
	}
	return false
}

// Table aliases used in composed SQL. The base events table may have a
// different physical name but is always aliased as TableEvents.
const (
	TableEvents     = "events"
	TableDirectives = "directives"
	TableSent       = "sent"
)

// ColumnMapping binds a filter key to a column.
type ColumnMapping struct {
	Key      string
	Table    string
	Column   string
	Operator Operator
	Kind     Kind
}

// SubqueryDef is a named SQL fragment. Placeholders are %s, a literal
// percent sign is written %%.
type SubqueryDef struct {
	Name        string
	SQL         string
	Arity       int
	Label       string
	Description string
	Kind        Kind
	Tables      []string
}

// Entry is the result of resolving a filter key. Exactly one field is set.
type Entry struct {
	Mapping  *ColumnMapping
	Subquery *SubqueryDef
}

func (e Entry) Kind() Kind {
	if e.Subquery != nil {
		return e.Subquery.Kind
	}
	return e.Mapping.Kind
}

// Tables lists the optional tables the entry needs joined.
func (e Entry) Tables() []string {
	if e.Subquery != nil {
		return e.Subquery.Tables
	}
	if e.Mapping.Table == TableEvents {
		return nil
	}
	if e.Mapping.Table == TableSent {
		return []string{TableDirectives, TableSent}
	}
	return []string{e.Mapping.Table}
}

// KeyInfo describes an available filter key without exposing SQL.
type KeyInfo struct {
	Key         string `json:"key"`
	Type        string `json:"type"`
	Label       string `json:"label,omitempty"`
	Description string `json:"description,omitempty"`
	Kind        Kind   `json:"kind"`
	Operator    string `json:"operator,omitempty"`
}
