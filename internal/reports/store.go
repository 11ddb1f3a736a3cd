package reports

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/reports/internal/csvexport"
)

// DBTX is the subset of pgx used by Store.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
}

// columnMap maps API column names to database columns.
var columnMap = map[string]string{
	"id":         "id",
	"title":      "title",
	"status":     "status",
	"department": "department",
	"priority":   "priority",
	"createdAt":  "created_at",
	"updatedAt":  "updated_at",
}

// searchColumns are matched by the free-text search.
var searchColumns = []string{`"title"`, `"department"`, `"status"`}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS reports (
	id          BIGSERIAL PRIMARY KEY,
	title       TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'draft',
	department  TEXT NOT NULL,
	priority    TEXT NOT NULL DEFAULT 'medium',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS reports_created_at_idx ON reports (created_at);
`

// Store is the Postgres-backed reports backend.
type Store struct {
	db DBTX
}

// NewStore returns a Store using db.
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the reports table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// GetCSVData returns every report matching req as export rows.
func (s *Store) GetCSVData(ctx context.Context, req ExportRequest) ([]csvexport.Row, error) {
	list, err := s.query(ctx, req, 0)
	if err != nil {
		return nil, err
	}
	return Rows(list), nil
}

// List returns at most limit reports matching req.
func (s *Store) List(ctx context.Context, req ExportRequest, limit int) ([]Report, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.query(ctx, req, limit)
}

func (s *Store) query(ctx context.Context, req ExportRequest, limit int) ([]Report, error) {
	sql, args, err := buildSelect(req, limit)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ID, &r.Title, &r.Status, &r.Department, &r.Priority, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return out, nil
}

// buildSelect renders the SELECT for req. A limit of 0 means no limit.
func buildSelect(req ExportRequest, limit int) (string, []any, error) {
	req, err := req.Normalize()
	if err != nil {
		return "", nil, err
	}

	wb := NewWhereBuilder()
	wb.Add(`"status"`, req.Filters.Status)
	wb.Add(`"department"`, req.Filters.Department)
	wb.Add(`"priority"`, req.Filters.Priority)
	wb.AddOp(`"created_at"::date`, ">=", req.Filters.DateFrom)
	wb.AddOp(`"created_at"::date`, "<=", req.Filters.DateTo)
	wb.AddSearch(req.Search, searchColumns)
	where, args := wb.Build()

	cols := make([]string, len(CSVHeaders))
	for i, h := range CSVHeaders {
		cols[i] = quoteIdentifier(columnMap[h])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM reports%s ORDER BY %s %s, %s %s",
		strings.Join(cols, ", "),
		where,
		quoteIdentifier(columnMap[req.SortBy]), strings.ToUpper(req.SortOrder),
		quoteIdentifier("id"), strings.ToUpper(req.SortOrder),
	)
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT $%d", wb.NextArgIndex())
		args = append(args, limit)
	}

	return b.String(), args, nil
}
