// Package docs registers the OpenAPI document served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {
            "name": "AGPL-3.0",
            "url": "https://www.gnu.org/licenses/agpl-3.0.html"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/events": {
            "get": {
                "description": "Return whole events for one or more id parameters",
                "produces": ["application/json"],
                "tags": ["events"],
                "summary": "Get events by id",
                "parameters": [
                    {"type": "array", "items": {"type": "integer"}, "collectionFormat": "multi", "description": "Event ids, repeated or comma separated", "name": "id", "in": "query", "required": true},
                    {"type": "string", "description": "Optional tables to join (directives, sent)", "name": "include", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/events.Row"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/events/search": {
            "get": {
                "description": "Return the main columns of the events matching every filter parameter",
                "produces": ["application/json"],
                "tags": ["events"],
                "summary": "Search events",
                "parameters": [
                    {"type": "integer", "description": "Page size", "name": "limit", "in": "query"},
                    {"type": "integer", "description": "Rows to skip", "name": "offset", "in": "query"},
                    {"type": "string", "description": "Sort keys, prefixed with - for descending", "name": "sort", "in": "query"},
                    {"type": "string", "description": "Optional tables to join (directives, sent)", "name": "include", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/events.SearchResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/events/stats": {
            "get": {
                "description": "Count matching events per time bucket, empty buckets included",
                "produces": ["application/json"],
                "tags": ["events"],
                "summary": "Event statistics",
                "parameters": [
                    {"type": "string", "description": "Bucket width (hour, day, week, month)", "name": "timeres", "in": "query"},
                    {"type": "string", "description": "Datetime key to bucket by", "name": "timeaxis", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/events.StatResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/events/export": {
            "get": {
                "description": "Return complete matching events, up to the export row cap",
                "produces": ["application/json"],
                "tags": ["events"],
                "summary": "Export events",
                "parameters": [
                    {"type": "string", "description": "Optional tables to join (directives, sent)", "name": "include", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/events.ExportResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/events/subqueries": {
            "get": {
                "description": "List the usable filter keys by name and the time zone dates without an offset are read in",
                "produces": ["application/json"],
                "tags": ["events"],
                "summary": "List filter keys",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/events.Subqueries"}}
                }
            }
        },
        "/tickets": {
            "get": {
                "description": "Return the events of a ticket with their directives and sent rows",
                "produces": ["application/json"],
                "tags": ["tickets"],
                "summary": "Get a ticket",
                "parameters": [
                    {"type": "string", "description": "Ticket number", "name": "ticketnumber", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/events.Row"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/tickets/search": {
            "get": {
                "description": "Search events together with the directives and sent rows they were notified with",
                "produces": ["application/json"],
                "tags": ["tickets"],
                "summary": "Search tickets",
                "parameters": [
                    {"type": "integer", "description": "Page size", "name": "limit", "in": "query"},
                    {"type": "integer", "description": "Rows to skip", "name": "offset", "in": "query"},
                    {"type": "string", "description": "Sort keys, prefixed with - for descending", "name": "sort", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/events.SearchResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/tickets/stats": {
            "get": {
                "description": "Count distinct tickets per bucket of their sent time",
                "produces": ["application/json"],
                "tags": ["tickets"],
                "summary": "Ticket statistics",
                "parameters": [
                    {"type": "string", "description": "Bucket width (hour, day, week, month)", "name": "timeres", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/events.StatResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/tickets/subqueries": {
            "get": {
                "description": "List the usable filter keys by name and the database time zone",
                "produces": ["application/json"],
                "tags": ["tickets"],
                "summary": "List filter keys",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/events.Subqueries"}}
                }
            }
        },
        "/tickets/getRecipient": {
            "get": {
                "description": "Return the directives and sent rows of a ticket",
                "produces": ["application/json"],
                "tags": ["tickets"],
                "summary": "Get ticket recipients",
                "parameters": [
                    {"type": "string", "description": "Ticket number", "name": "ticketnumber", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/events.Recipient"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/checkticket/getEventIDsForTicket": {
            "get": {
                "description": "List the ids of the events notified with a ticket in ascending order",
                "produces": ["application/json"],
                "tags": ["checkticket"],
                "summary": "Event ids of a ticket",
                "parameters": [
                    {"type": "string", "description": "Ticket number", "name": "ticket", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"type": "integer"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/checkticket/getEvents": {
            "get": {
                "description": "Return whole events for a list of ids",
                "produces": ["application/json"],
                "tags": ["checkticket"],
                "summary": "Get events by id",
                "parameters": [
                    {"type": "array", "items": {"type": "integer"}, "collectionFormat": "multi", "description": "Event ids, repeated or comma separated", "name": "ids", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/events.Row"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/checkticket/getEventsForTicket": {
            "get": {
                "description": "Return the events for the first limit event ids of a ticket",
                "produces": ["application/json"],
                "tags": ["checkticket"],
                "summary": "Events of a ticket",
                "parameters": [
                    {"type": "string", "description": "Ticket number", "name": "ticket", "in": "query", "required": true},
                    {"type": "integer", "description": "Maximum number of events", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/events.Row"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/checkticket/getLastTicketNumber": {
            "get": {
                "description": "Return the ticket number sent most recently",
                "produces": ["application/json"],
                "tags": ["checkticket"],
                "summary": "Last ticket number",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "string"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        }
    },
    "definitions": {
        "errors.Response": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "error_code": {"type": "string"},
                "details": {"type": "object"}
            }
        },
        "events.Row": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "event": {"type": "object"},
                "directive": {"type": "object"},
                "sent": {"type": "object"}
            }
        },
        "events.Recipient": {
            "type": "object",
            "properties": {
                "directive": {"type": "object"},
                "sent": {"type": "object"}
            }
        },
        "events.SearchResult": {
            "type": "object",
            "properties": {
                "rows": {"type": "array", "items": {"$ref": "#/definitions/events.Row"}},
                "row_per_directive": {"type": "boolean"}
            }
        },
        "events.ExportResult": {
            "type": "object",
            "properties": {
                "rows": {"type": "array", "items": {"$ref": "#/definitions/events.Row"}},
                "row_per_directive": {"type": "boolean"},
                "truncated": {"type": "boolean"}
            }
        },
        "events.StatBucket": {
            "type": "object",
            "properties": {
                "date": {"type": "string"},
                "count": {"type": "integer"}
            }
        },
        "events.StatResult": {
            "type": "object",
            "properties": {
                "timeres": {"type": "string"},
                "total": {"type": "integer"},
                "results": {"type": "array", "items": {"$ref": "#/definitions/events.StatBucket"}}
            }
        },
        "events.Subqueries": {
            "type": "object",
            "properties": {
                "timezone": {"type": "string"},
                "subqueries": {"type": "object", "additionalProperties": {"$ref": "#/definitions/catalog.KeyInfo"}}
            }
        },
        "catalog.KeyInfo": {
            "type": "object",
            "properties": {
                "key": {"type": "string"},
                "type": {"type": "string"},
                "label": {"type": "string"},
                "description": {"type": "string"},
                "kind": {"type": "string"},
                "operator": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api",
	Schemes:          []string{"http", "https"},
	Title:            "Incident Database API",
	Description:      "Search, statistics and export over security incident events and the tickets they were notified with",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
