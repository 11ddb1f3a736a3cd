package reports

import (
	"context"
	"time"

	"github.com/JonMunkholm/reports/internal/csvexport"
)

// CSVHeaders is the column set of a reports export, in file order.
var CSVHeaders = []string{"id", "title", "status", "department", "priority", "createdAt", "updatedAt"}

// DisplayCSVHeaders are the human-readable headers produced by FormatForCSV.
var DisplayCSVHeaders = []string{"ID", "Title", "Status", "Department", "Priority", "Created Date", "Updated Date"}

// API is the reports backend as seen by the filter form and exporters.
type API interface {
	// GetCSVData returns every report matching req, sorted as requested,
	// as rows keyed by CSVHeaders.
	GetCSVData(ctx context.Context, req ExportRequest) ([]csvexport.Row, error)
}

// Lister is implemented by backends that can return typed reports for the
// list view.
type Lister interface {
	List(ctx context.Context, req ExportRequest, limit int) ([]Report, error)
}

// Backend is a full reports backend.
type Backend interface {
	API
	Lister
}

// DefaultListLimit caps a single list response.
const DefaultListLimit = 100

// Row converts r to an export row keyed by CSVHeaders.
func (r Report) Row() csvexport.Row {
	return csvexport.Row{
		"id":         r.ID,
		"title":      r.Title,
		"status":     r.Status,
		"department": r.Department,
		"priority":   r.Priority,
		"createdAt":  r.CreatedAt,
		"updatedAt":  r.UpdatedAt,
	}
}

// Rows converts reports to export rows.
func Rows(reports []Report) []csvexport.Row {
	rows := make([]csvexport.Row, len(reports))
	for i, r := range reports {
		rows[i] = r.Row()
	}
	return rows
}

// FormatForCSV maps reports to rows keyed by DisplayCSVHeaders, with dates
// reduced to YYYY-MM-DD.
func FormatForCSV(reports []Report) []csvexport.Row {
	return FormatRowsForCSV(Rows(reports))
}

// FormatRowsForCSV re-keys rows from CSVHeaders to DisplayCSVHeaders and
// reduces the createdAt and updatedAt values to YYYY-MM-DD. Dates may be
// time.Time or RFC 3339 strings; anything else passes through.
func FormatRowsForCSV(rows []csvexport.Row) []csvexport.Row {
	out := make([]csvexport.Row, len(rows))
	for i, row := range rows {
		display := make(csvexport.Row, len(CSVHeaders))
		for j, key := range CSVHeaders {
			v, ok := row[key]
			if !ok {
				continue
			}
			if key == "createdAt" || key == "updatedAt" {
				v = formatDay(v)
			}
			display[DisplayCSVHeaders[j]] = v
		}
		out[i] = display
	}
	return out
}

func formatDay(v any) any {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(DateLayout)
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed.UTC().Format(DateLayout)
		}
	}
	return v
}
