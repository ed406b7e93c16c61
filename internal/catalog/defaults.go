package catalog

// String columns of the events table that get an exact (case-insensitive)
// key and a substring key.
var eventStringColumns = []string{
	"source.fqdn",
	"source.url",
	"destination.fqdn",
	"destination.url",
	"classification.taxonomy",
	"classification.type",
	"classification.identifier",
	"malware.name",
	"feed.provider",
	"feed.name",
	"protocol.application",
}

var eventIntegerColumns = []string{
	"source.asn",
	"destination.asn",
	"source.port",
	"destination.port",
}

var eventAddressColumns = []string{
	"source.ip",
	"destination.ip",
}

// timeAxis maps a timestamp column to the key prefix used for its range keys.
var eventTimeAxes = []struct {
	column string
	prefix string
}{
	{"time.observation", "time.observed"},
	{"time.source", "time.source"},
}

func defaultMappings() []ColumnMapping {
	var out []ColumnMapping

	out = append(out, ColumnMapping{Key: "id", Table: TableEvents, Column: "id", Operator: OpEqual, Kind: KindInteger})

	for _, col := range eventStringColumns {
		out = append(out,
			ColumnMapping{Key: col, Table: TableEvents, Column: col, Operator: OpILike, Kind: KindString},
			ColumnMapping{Key: col + "_icontains", Table: TableEvents, Column: col, Operator: OpIContains, Kind: KindString},
		)
	}

	for _, col := range eventIntegerColumns {
		out = append(out, ColumnMapping{Key: col, Table: TableEvents, Column: col, Operator: OpEqual, Kind: KindInteger})
	}

	for _, col := range eventAddressColumns {
		out = append(out,
			ColumnMapping{Key: col, Table: TableEvents, Column: col, Operator: OpEqual, Kind: KindIP},
			ColumnMapping{Key: col + "_in_network", Table: TableEvents, Column: col, Operator: OpWithin, Kind: KindCIDR},
		)
	}

	for _, axis := range eventTimeAxes {
		out = append(out,
			ColumnMapping{Key: axis.column, Table: TableEvents, Column: axis.column, Operator: OpEqual, Kind: KindDatetime},
			ColumnMapping{Key: axis.prefix + "_from", Table: TableEvents, Column: axis.column, Operator: OpGreaterEq, Kind: KindDatetime},
			ColumnMapping{Key: axis.prefix + "_to", Table: TableEvents, Column: axis.column, Operator: OpLess, Kind: KindDatetime},
		)
	}

	out = append(out,
		ColumnMapping{Key: "recipient.address", Table: TableDirectives, Column: "recipient_address", Operator: OpILike, Kind: KindEmail},
		ColumnMapping{Key: "recipient.address_icontains", Table: TableDirectives, Column: "recipient_address", Operator: OpIContains, Kind: KindString},
		ColumnMapping{Key: "directive.medium", Table: TableDirectives, Column: "medium", Operator: OpILike, Kind: KindString},
		ColumnMapping{Key: "directive.template", Table: TableDirectives, Column: "template_name", Operator: OpILike, Kind: KindString},
		ColumnMapping{Key: "ticket", Table: TableSent, Column: "intelmq_ticket", Operator: OpEqual, Kind: KindString},
		ColumnMapping{Key: "sent.at", Table: TableSent, Column: "sent_at", Operator: OpEqual, Kind: KindDatetime},
		ColumnMapping{Key: "sent.at_from", Table: TableSent, Column: "sent_at", Operator: OpGreaterEq, Kind: KindDatetime},
		ColumnMapping{Key: "sent.at_to", Table: TableSent, Column: "sent_at", Operator: OpLess, Kind: KindDatetime},
	)

	return out
}

type subquerySeed struct {
	name, sql, label, description string
	kind                          Kind
}

var defaultSubqueries = []subquerySeed{
	{
		name:        "recipient_group",
		sql:         `json_object(directives."aggregate_identifier") ->> 'recipient_group' ILIKE %s`,
		label:       "Recipient group",
		description: "Events notified to the given recipient group",
		kind:        KindString,
	},
	{
		name:        "recipient_group_icontains",
		sql:         `json_object(directives."aggregate_identifier") ->> 'recipient_group' ILIKE concat('%%', %s::text, '%%')`,
		label:       "Recipient group contains",
		description: "Events notified to a recipient group containing the given text",
		kind:        KindString,
	},
	{
		name:        "address_in_network",
		sql:         `(events."source.ip" <<= %s::inet OR events."destination.ip" <<= %s::inet)`,
		label:       "Source or destination in network",
		description: "Events whose source or destination address is inside the given network",
		kind:        KindCIDR,
	},
}
