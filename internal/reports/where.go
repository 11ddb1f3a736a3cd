package reports

import (
	"fmt"
	"strings"
)

// WhereBuilder accumulates AND-ed SQL conditions with numbered ($n)
// placeholders. Empty values are skipped so callers can add every filter
// unconditionally.
type WhereBuilder struct {
	conditions []string
	args       []any
	argIndex   int
}

// NewWhereBuilder returns an empty builder whose first placeholder is $1.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{argIndex: 1}
}

// Add adds "column = $n" unless value is empty.
func (wb *WhereBuilder) Add(column, value string) {
	wb.AddOp(column, "=", value)
}

// AddOp adds "column <op> $n" unless value is empty.
func (wb *WhereBuilder) AddOp(column, op, value string) {
	if value == "" {
		return
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s %s $%d", column, op, wb.argIndex))
	wb.args = append(wb.args, value)
	wb.argIndex++
}

// AddSearch matches query case-insensitively as a substring of any of the
// given columns. A blank query adds nothing.
func (wb *WhereBuilder) AddSearch(query string, columns []string) {
	query = strings.TrimSpace(query)
	if query == "" || len(columns) == 0 {
		return
	}

	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = fmt.Sprintf("%s ILIKE $%d", col, wb.argIndex)
	}
	wb.conditions = append(wb.conditions, "("+strings.Join(parts, " OR ")+")")
	wb.args = append(wb.args, "%"+escapeLike(query)+"%")
	wb.argIndex++
}

// Build returns the WHERE clause (with a leading space) and its arguments.
// With no conditions both are empty.
func (wb *WhereBuilder) Build() (string, []any) {
	if len(wb.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conditions, " AND "), wb.args
}

// NextArgIndex returns the number of the next free placeholder.
func (wb *WhereBuilder) NextArgIndex() int {
	return wb.argIndex
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// quoteIdentifier quotes a SQL identifier.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
