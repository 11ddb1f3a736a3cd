// Package reports defines the report domain: filter state, sort
// orders, export requests and the backends that answer them.
// It has no UI dependencies and is shared by the web server, the scheduled
// exporter and the interactive client.
package reports

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Field names a single filter field.
type Field string

const (
	FieldStatus     Field = "status"
	FieldDepartment Field = "department"
	FieldPriority   Field = "priority"
	FieldDateFrom   Field = "dateFrom"
	FieldDateTo     Field = "dateTo"
	FieldSearch     Field = "search"
)

// Fields lists every filter field in form order.
var Fields = []Field{FieldSearch, FieldStatus, FieldDepartment, FieldPriority, FieldDateFrom, FieldDateTo}

// ErrUnknownField is returned for a field name outside Fields.
var ErrUnknownField = errors.New("unknown filter field")

// ParseField resolves a field name case-insensitively.
// Accepts both "dateFrom" and "date_from" spellings.
func ParseField(name string) (Field, error) {
	norm := strings.ToLower(strings.ReplaceAll(name, "_", ""))
	for _, f := range Fields {
		if strings.ToLower(string(f)) == norm {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// Allowed option values, matching the dashboard's select boxes.
var (
	Statuses    = []string{"draft", "pending", "approved", "published", "archived"}
	Departments = []string{"Sales", "Marketing", "Finance", "HR", "Operations", "IT"}
	Priorities  = []string{"low", "medium", "high"}
)

// DateLayout is the format of DateFrom and DateTo.
const DateLayout = "2006-01-02"

// Filters is the state of the filter form. Empty strings mean "no constraint".
// Filters is a value: use With to derive a changed copy.
type Filters struct {
	Status     string `json:"status" yaml:"status"`
	Department string `json:"department" yaml:"department"`
	Priority   string `json:"priority" yaml:"priority"`
	DateFrom   string `json:"dateFrom" yaml:"date_from"`
	DateTo     string `json:"dateTo" yaml:"date_to"`
	Search     string `json:"search" yaml:"search"`
}

// Get returns the value of field f.
func (fs Filters) Get(f Field) string {
	switch f {
	case FieldStatus:
		return fs.Status
	case FieldDepartment:
		return fs.Department
	case FieldPriority:
		return fs.Priority
	case FieldDateFrom:
		return fs.DateFrom
	case FieldDateTo:
		return fs.DateTo
	case FieldSearch:
		return fs.Search
	}
	return ""
}

// With returns a copy of fs with field f set to value. Unknown fields leave
// the copy unchanged.
func (fs Filters) With(f Field, value string) Filters {
	switch f {
	case FieldStatus:
		fs.Status = value
	case FieldDepartment:
		fs.Department = value
	case FieldPriority:
		fs.Priority = value
	case FieldDateFrom:
		fs.DateFrom = value
	case FieldDateTo:
		fs.DateTo = value
	case FieldSearch:
		fs.Search = value
	}
	return fs
}

// IsZero reports whether no field is set.
func (fs Filters) IsZero() bool {
	return fs == Filters{}
}

// Active returns the set fields in form order.
func (fs Filters) Active() []Field {
	var out []Field
	for _, f := range Fields {
		if fs.Get(f) != "" {
			out = append(out, f)
		}
	}
	return out
}

// Validate checks option values and dates. All problems are reported at once.
func (fs Filters) Validate() error {
	var errs []string

	if fs.Status != "" && !slices.Contains(Statuses, fs.Status) {
		errs = append(errs, fmt.Sprintf("invalid enum: status %q", fs.Status))
	}
	if fs.Department != "" && !slices.Contains(Departments, fs.Department) {
		errs = append(errs, fmt.Sprintf("invalid enum: department %q", fs.Department))
	}
	if fs.Priority != "" && !slices.Contains(Priorities, fs.Priority) {
		errs = append(errs, fmt.Sprintf("invalid enum: priority %q", fs.Priority))
	}

	from, fromErr := parseDate(fs.DateFrom)
	if fromErr != nil {
		errs = append(errs, fmt.Sprintf("invalid date: dateFrom %q", fs.DateFrom))
	}
	to, toErr := parseDate(fs.DateTo)
	if toErr != nil {
		errs = append(errs, fmt.Sprintf("invalid date: dateTo %q", fs.DateTo))
	}
	if fromErr == nil && toErr == nil && !from.IsZero() && !to.IsZero() && from.After(to) {
		errs = append(errs, "invalid date range: dateFrom is after dateTo")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid filters: %s", strings.Join(errs, "; "))
	}
	return nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(DateLayout, s)
}

// Sort is one entry of the list view's sort state.
type Sort struct {
	Column string `json:"id"`
	Desc   bool   `json:"desc"`
}

// Sort orders accepted by the backend.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Default sort used when the list view has no active sort.
const (
	DefaultSortBy    = "createdAt"
	DefaultSortOrder = OrderDesc
)

// SortColumns are the columns the backend can order by.
var SortColumns = []string{"id", "title", "status", "department", "priority", "createdAt", "updatedAt"}

// ErrInvalidSort is returned for an unsupported sort column or order.
var ErrInvalidSort = errors.New("invalid sort")

// ExportRequest asks the backend for every report matching Filters, sorted
// by SortBy in SortOrder.
type ExportRequest struct {
	SortBy    string  `json:"sortBy"`
	SortOrder string  `json:"sortOrder"`
	Filters   Filters `json:"filters"`
	Search    string  `json:"search"`
}

// NewExportRequest builds a request from filters and the list view's sort
// state. Only the first sort entry is used; with none the default
// createdAt/desc applies.
func NewExportRequest(filters Filters, sorting []Sort) ExportRequest {
	req := ExportRequest{
		SortBy:    DefaultSortBy,
		SortOrder: DefaultSortOrder,
		Filters:   filters,
		Search:    filters.Search,
	}
	if len(sorting) > 0 {
		req.SortBy = sorting[0].Column
		req.SortOrder = OrderAsc
		if sorting[0].Desc {
			req.SortOrder = OrderDesc
		}
	}
	return req
}

// Normalize fills defaults and validates the sort.
func (r ExportRequest) Normalize() (ExportRequest, error) {
	if r.SortBy == "" {
		r.SortBy = DefaultSortBy
	}
	if r.SortOrder == "" {
		r.SortOrder = DefaultSortOrder
	}
	r.SortOrder = strings.ToLower(r.SortOrder)
	if r.Search == "" {
		r.Search = r.Filters.Search
	}

	if !slices.Contains(SortColumns, r.SortBy) {
		return r, fmt.Errorf("%w: column %q", ErrInvalidSort, r.SortBy)
	}
	if r.SortOrder != OrderAsc && r.SortOrder != OrderDesc {
		return r, fmt.Errorf("%w: order %q", ErrInvalidSort, r.SortOrder)
	}
	return r, nil
}

// Report is a single report as stored by the backend.
type Report struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	Department string    `json:"department"`
	Priority   string    `json:"priority"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
