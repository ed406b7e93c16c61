package constants

import "time"

const (
	ServiceName = "incidentdb-api"
)

const (
	ShutdownTimeout     = 5 * time.Second
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 120 * time.Second
)

const (
	DefaultConnectTimeout   = 5 * time.Second
	DefaultStatementTimeout = 60 * time.Second
)

const (
	DefaultPoolSize            = 2
	DefaultProbePeriod         = 10 * time.Second
	DefaultProbeTimeout        = 2 * time.Second
	DefaultMaxCheckoutAttempts = 3
	HealthCheckTimeout         = 5 * time.Second
)

const (
	DefaultLimit         = 100
	MaxLimit             = 1000
	DefaultExportMaxRows = 100000
)

const (
	EventsTable     = "events"
	DirectivesTable = "directives"
	SentTable       = "sent"
	AuditTable      = "audit_log"
)

const (
	DefaultPrincipalHeader = "X-Authenticated-Principal"
	RequestIDHeader        = "X-Request-ID"
)

// Reserved query parameters, never treated as filter keys.
const (
	ParamLimit      = "limit"
	ParamOffset     = "offset"
	ParamSort       = "sort"
	ParamInclude    = "include"
	ParamResolution = "timeres"
	ParamStatAxis   = "timeaxis"
	ParamID         = "id"
)

// Parameters of the ticket endpoints.
const (
	ParamTicketNumber = "ticketnumber"
	ParamTicket       = "ticket"
	ParamIDs          = "ids"
)

// ReservedParams are the query parameters that are not filters. ParamID is
// only reserved by the event lookup.
var ReservedParams = []string{
	ParamLimit,
	ParamOffset,
	ParamSort,
	ParamInclude,
	ParamResolution,
	ParamStatAxis,
}
