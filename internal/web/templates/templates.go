// Package templates renders the dashboard HTML as templ components.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/reports/internal/reports"
)

// DashboardParams is everything the dashboard page shows.
type DashboardParams struct {
	Filters     reports.Filters
	SortBy      string
	SortOrder   string
	Reports     []reports.Report
	Limit       int
	SearchDelay time.Duration
	Alert       *Alert
}

// Alert is a user-facing error message.
type Alert struct {
	Message string
	Action  string
	Code    string
}

// ExportURL returns the CSV download link for the current filters and sort.
func (p DashboardParams) ExportURL() string {
	q := reports.EncodeQuery(reports.ExportRequest{
		SortBy:    p.SortBy,
		SortOrder: p.SortOrder,
		Filters:   p.Filters,
	})
	return "/api/reports/export?" + q.Encode()
}

// sortURL returns the dashboard link that sorts by column, toggling the
// direction when column is already active.
func (p DashboardParams) sortURL(column string) string {
	order := reports.OrderAsc
	if column == p.SortBy && p.SortOrder == reports.OrderAsc {
		order = reports.OrderDesc
	}
	q := reports.EncodeQuery(reports.ExportRequest{SortBy: column, SortOrder: order, Filters: p.Filters})
	return "/?" + q.Encode()
}

// Page wraps body in the HTML document.
func Page(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`+
			`<meta name="viewport" content="width=device-width, initial-scale=1"><title>%s</title>`+
			`<style>%s</style></head><body><main>`, templ.EscapeString(title), pageCSS); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</main></body></html>`)
		return err
	})
}

// Dashboard renders the filter form and the matching reports.
func Dashboard(p DashboardParams) templ.Component {
	return Page("Reports", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<h1>Reports</h1>`); err != nil {
			return err
		}
		if p.Alert != nil {
			if err := ErrorAlert(p.Alert.Message, p.Alert.Action, p.Alert.Code).Render(ctx, w); err != nil {
				return err
			}
		}
		if err := FilterForm(p).Render(ctx, w); err != nil {
			return err
		}
		return ReportsTable(p).Render(ctx, w)
	}))
}

// FilterForm renders the filter form. Typing in the search box submits the
// form once the input has been quiet for SearchDelay.
func FilterForm(p DashboardParams) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<form id="filters" method="get" action="/" class="filters">`)
		fmt.Fprintf(&b, `<input type="hidden" name="sortBy" value="%s"><input type="hidden" name="sortOrder" value="%s">`,
			templ.EscapeString(p.SortBy), templ.EscapeString(p.SortOrder))
		fmt.Fprintf(&b, `<label>Search <input id="search" type="search" name="search" value="%s" placeholder="Search reports..."></label>`,
			templ.EscapeString(p.Filters.Search))

		writeSelect(&b, "status", "Status", p.Filters.Status, reports.Statuses)
		writeSelect(&b, "department", "Department", p.Filters.Department, reports.Departments)
		writeSelect(&b, "priority", "Priority", p.Filters.Priority, reports.Priorities)

		fmt.Fprintf(&b, `<label>Date From <input type="date" name="dateFrom" value="%s"></label>`, templ.EscapeString(p.Filters.DateFrom))
		fmt.Fprintf(&b, `<label>Date To <input type="date" name="dateTo" value="%s"></label>`, templ.EscapeString(p.Filters.DateTo))

		b.WriteString(`<div class="actions"><button type="submit">Apply Filters</button>`)
		b.WriteString(`<a class="button secondary" href="/">Reset</a>`)
		fmt.Fprintf(&b, `<a class="button" href="%s" download>Export CSV</a></div></form>`, templ.EscapeString(p.ExportURL()))

		fmt.Fprintf(&b, `<script>(function(){var f=document.getElementById("filters"),s=document.getElementById("search"),t,last=s.value;`+
			`s.addEventListener("input",function(){clearTimeout(t);t=setTimeout(function(){`+
			`if(s.value!==last){last=s.value;if(s.value!==""){f.requestSubmit();}}},%d);});})();</script>`,
			searchDelayMillis(p.SearchDelay))

		_, err := io.WriteString(w, b.String())
		return err
	})
}

func writeSelect(b *strings.Builder, name, label, selected string, options []string) {
	fmt.Fprintf(b, `<label>%s <select name="%s"><option value="">All</option>`, label, name)
	for _, opt := range options {
		sel := ""
		if opt == selected {
			sel = " selected"
		}
		fmt.Fprintf(b, `<option value="%s"%s>%s</option>`, templ.EscapeString(opt), sel, templ.EscapeString(opt))
	}
	b.WriteString(`</select></label>`)
}

func searchDelayMillis(d time.Duration) int64 {
	if d <= 0 {
		return 300
	}
	return d.Milliseconds()
}

var tableColumns = []struct{ key, label string }{
	{"id", "ID"},
	{"title", "Title"},
	{"status", "Status"},
	{"department", "Department"},
	{"priority", "Priority"},
	{"createdAt", "Created"},
	{"updatedAt", "Updated"},
}

// ReportsTable renders the matching reports with sortable headers.
func ReportsTable(p DashboardParams) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder

		if len(p.Reports) == 0 {
			b.WriteString(`<p class="empty">No reports match the current filters.</p>`)
			_, err := io.WriteString(w, b.String())
			return err
		}

		b.WriteString(`<table><thead><tr>`)
		for _, col := range tableColumns {
			marker := ""
			if col.key == p.SortBy {
				marker = " ▲"
				if p.SortOrder == reports.OrderDesc {
					marker = " ▼"
				}
			}
			fmt.Fprintf(&b, `<th><a href="%s">%s%s</a></th>`, templ.EscapeString(p.sortURL(col.key)), col.label, marker)
		}
		b.WriteString(`</tr></thead><tbody>`)

		for _, r := range p.Reports {
			fmt.Fprintf(&b, `<tr><td>%d</td><td>%s</td><td><span class="badge %s">%s</span></td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
				r.ID,
				templ.EscapeString(r.Title),
				templ.EscapeString(r.Status), templ.EscapeString(r.Status),
				templ.EscapeString(r.Department),
				templ.EscapeString(r.Priority),
				formatDate(r.CreatedAt),
				formatDate(r.UpdatedAt),
			)
		}
		b.WriteString(`</tbody></table>`)

		if p.Limit > 0 && len(p.Reports) >= p.Limit {
			fmt.Fprintf(&b, `<p class="note">Showing the first %d reports. Export CSV to get all of them.</p>`, p.Limit)
		}

		_, err := io.WriteString(w, b.String())
		return err
	})
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(reports.DateLayout)
}

// ErrorAlert renders a dismissible error box.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<div class="alert" role="alert"><strong>%s</strong>`, templ.EscapeString(message))
		if err != nil {
			return err
		}
		if action != "" {
			if _, err := fmt.Fprintf(w, `<p>%s</p>`, templ.EscapeString(action)); err != nil {
				return err
			}
		}
		if code != "" {
			if _, err := fmt.Fprintf(w, `<small>Code: %s</small>`, templ.EscapeString(code)); err != nil {
				return err
			}
		}
		_, err = io.WriteString(w, `</div>`)
		return err
	})
}

const pageCSS = `body{font-family:system-ui,sans-serif;margin:0;background:#f6f7f9;color:#1f2933}` +
	`main{max-width:1100px;margin:0 auto;padding:24px}` +
	`.filters{display:grid;grid-template-columns:repeat(auto-fit,minmax(180px,1fr));gap:12px;background:#fff;padding:16px;border-radius:8px}` +
	`.filters label{display:flex;flex-direction:column;font-size:13px;gap:4px}` +
	`.actions{display:flex;gap:8px;align-items:end}` +
	`button,.button{background:#2563eb;color:#fff;border:0;border-radius:6px;padding:8px 12px;text-decoration:none;font-size:14px;cursor:pointer}` +
	`.secondary{background:#6b7280}` +
	`table{width:100%;margin-top:16px;border-collapse:collapse;background:#fff}` +
	`th,td{padding:8px;border-bottom:1px solid #e5e7eb;text-align:left;font-size:14px}` +
	`th a{color:inherit}` +
	`.badge{padding:2px 8px;border-radius:10px;background:#e5e7eb}` +
	`.alert{background:#fee2e2;border:1px solid #fca5a5;padding:12px;border-radius:6px;margin-bottom:12px}` +
	`.empty,.note{color:#6b7280}`
