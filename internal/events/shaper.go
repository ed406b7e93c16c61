package events

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"incidentdb/internal/pool"
	"incidentdb/internal/query"
)

// Column aliases carrying joined rows as JSON.
const (
	directiveColumn = "directive"
	sentColumn      = "sent"
)

// Row is one result object. With directives joined there is one Row per
// matching directive, so several rows can share an event id.
type Row struct {
	ID        interface{}            `json:"id"`
	Event     map[string]interface{} `json:"event"`
	Directive map[string]interface{} `json:"directive,omitempty"`
	Sent      map[string]interface{} `json:"sent,omitempty"`
}

type SearchResult struct {
	Rows []Row `json:"rows"`
	// RowPerDirective is set when rows were joined with directives and an
	// event can therefore appear more than once.
	RowPerDirective bool `json:"row_per_directive"`
}

type ExportResult struct {
	Rows            []Row `json:"rows"`
	RowPerDirective bool  `json:"row_per_directive"`
	// Truncated is set when the export row cap cut the result short.
	Truncated bool `json:"truncated"`
}

type StatBucket struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type StatResult struct {
	Resolution query.Resolution `json:"timeres"`
	Total      int64            `json:"total"`
	Results    []StatBucket     `json:"results"`
}

// scanRows reads every row of a search, export or lookup query.
func scanRows(rows pool.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	out := make([]Row, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		row, err := shapeRow(columns, values)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func shapeRow(columns []string, values []interface{}) (Row, error) {
	row := Row{Event: make(map[string]interface{}, len(columns))}

	for i, col := range columns {
		val := values[i]
		if val == nil {
			continue
		}

		switch col {
		case directiveColumn, sentColumn:
			obj, err := jsonObject(val)
			if err != nil {
				return Row{}, fmt.Errorf("column %s: %w", col, err)
			}
			if col == directiveColumn {
				row.Directive = obj
			} else {
				row.Sent = obj
			}
		default:
			row.Event[col] = plainValue(val)
		}
	}

	row.ID = row.Event["id"]
	return row, nil
}

// plainValue turns driver values into JSON friendly ones. Byte values are
// decoded as JSON when possible and kept as text otherwise.
func plainValue(val interface{}) interface{} {
	b, ok := val.([]byte)
	if !ok {
		return val
	}
	var decoded interface{}
	if err := json.Unmarshal(b, &decoded); err == nil {
		return decoded
	}
	return string(b)
}

func jsonObject(val interface{}) (map[string]interface{}, error) {
	var raw []byte
	switch v := val.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return nil, fmt.Errorf("unexpected %T", val)
	}

	obj := make(map[string]interface{})
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	for k, v := range obj {
		if v == nil {
			delete(obj, k)
		}
	}
	if s, ok := obj["notification_interval"].(string); ok {
		if secs, err := intervalSeconds(s); err == nil {
			obj["notification_interval"] = secs
		}
	}
	return obj, nil
}

var intervalUnit = regexp.MustCompile(`^(-?\d+)\s+(years?|mons?|days?)$`)

// intervalSeconds converts PostgreSQL interval output such as
// "1 day 02:00:00" to seconds. Months count as 30 days and years as 365.
func intervalSeconds(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty interval")
	}

	var total int64
	fields := strings.Fields(s)
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if strings.Contains(f, ":") {
			secs, err := clockSeconds(f)
			if err != nil {
				return 0, err
			}
			total += secs
			continue
		}
		if i+1 >= len(fields) {
			return 0, fmt.Errorf("invalid interval %q", s)
		}
		m := intervalUnit.FindStringSubmatch(f + " " + fields[i+1])
		if m == nil {
			return 0, fmt.Errorf("invalid interval %q", s)
		}
		n, _ := strconv.ParseInt(m[1], 10, 64)
		switch {
		case strings.HasPrefix(m[2], "year"):
			total += n * 365 * 86400
		case strings.HasPrefix(m[2], "mon"):
			total += n * 30 * 86400
		default:
			total += n * 86400
		}
		i++
	}
	return total, nil
}

func clockSeconds(f string) (int64, error) {
	neg := strings.HasPrefix(f, "-")
	f = strings.TrimPrefix(f, "-")
	parts := strings.Split(f, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid time %q", f)
	}
	h, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, err
	}
	m, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, err
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, err
	}
	total := h*3600 + m*60 + int64(sec)
	if neg {
		total = -total
	}
	return total, nil
}

// scanStat reads (bucket, count) rows and fills every bucket of the window,
// including empty ones.
func scanStat(rows pool.Rows, window *query.StatWindow) (*StatResult, error) {
	loc := window.Location
	if loc == nil {
		loc = time.UTC
	}

	counts := make(map[string]int64)
	for rows.Next() {
		var bucket time.Time
		var count int64
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		// date_trunc already worked in the session zone; keep its wall clock.
		local := time.Date(bucket.Year(), bucket.Month(), bucket.Day(),
			bucket.Hour(), bucket.Minute(), bucket.Second(), 0, loc)
		counts[window.Resolution.Format(local)] += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &StatResult{Resolution: window.Resolution, Results: make([]StatBucket, 0)}
	inWindow := func(t time.Time) bool {
		return t.Before(window.To) || (window.ToInclusive && t.Equal(window.To))
	}
	for t := window.Resolution.Truncate(window.From, loc); inWindow(t); t = window.Resolution.Next(t) {
		key := window.Resolution.Format(t)
		n := counts[key]
		result.Results = append(result.Results, StatBucket{Date: key, Count: n})
		result.Total += n
	}
	return result, nil
}
