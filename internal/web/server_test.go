package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/reports/internal/config"
	"github.com/JonMunkholm/reports/internal/csvexport"
	"github.com/JonMunkholm/reports/internal/metrics"
	"github.com/JonMunkholm/reports/internal/reports"
)

var testReports = []reports.Report{
	{
		ID: 1, Title: "Q3, final", Status: "draft", Department: "Sales", Priority: "high",
		CreatedAt: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
	},
	{
		ID: 2, Title: "Budget", Status: "approved", Department: "Finance", Priority: "low",
		CreatedAt: time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC),
	},
}

// fakeBackend filters by status only and records the last request.
type fakeBackend struct {
	mu        sync.Mutex
	reports   []reports.Report
	err       error
	lastReq   reports.ExportRequest
	lastLimit int
}

func (b *fakeBackend) match(req reports.ExportRequest) []reports.Report {
	var out []reports.Report
	for _, r := range b.reports {
		if req.Filters.Status == "" || r.Status == req.Filters.Status {
			out = append(out, r)
		}
	}
	return out
}

func (b *fakeBackend) List(ctx context.Context, req reports.ExportRequest, limit int) ([]reports.Report, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastReq, b.lastLimit = req, limit
	if b.err != nil {
		return nil, b.err
	}
	out := b.match(req)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (b *fakeBackend) GetCSVData(ctx context.Context, req reports.ExportRequest) ([]csvexport.Row, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastReq = req
	if b.err != nil {
		return nil, b.err
	}
	return reports.Rows(b.match(req)), nil
}

func testConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	base := map[string]string{
		"DATABASE_URL":       "postgres://localhost/reports_test",
		"RATE_LIMIT_ENABLED": "false",
	}
	for k, v := range env {
		base[k] = v
	}
	cfg, err := config.LoadFrom(func(k string) string { return base[k] })
	require.NoError(t, err)
	return cfg
}

type testEnv struct {
	server  *Server
	backend *fakeBackend
	metrics *metrics.Collector
}

func newTestServer(t *testing.T, env map[string]string) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	backend := &fakeBackend{reports: testReports}
	collector := metrics.NewCollector("reports")
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	exporter := csvexport.NewExporter(nil,
		csvexport.WithRecorder(collector),
		csvexport.WithClock(func() time.Time { return fixed }),
	)

	srv := NewServer(ctx, testConfig(t, env), Deps{
		Backend:  backend,
		Exporter: exporter,
		Metrics:  collector,
	})
	return &testEnv{server: srv, backend: backend, metrics: collector}
}

func (e *testEnv) do(t *testing.T, method, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestDashboard(t *testing.T) {
	env := newTestServer(t, nil)

	rec := env.do(t, http.MethodGet, "/?status=draft", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	assert.Contains(t, body, "Q3, final")
	assert.NotContains(t, body, "Budget")
	assert.Contains(t, body, "/api/reports/export?")
	assert.Equal(t, "createdAt", env.backend.lastReq.SortBy)
	assert.Equal(t, 100, env.backend.lastLimit)
}

func TestDashboard_InvalidSortShowsAlert(t *testing.T) {
	env := newTestServer(t, nil)

	rec := env.do(t, http.MethodGet, "/?sortBy=secret", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "FLT004")
}

func TestDashboard_BackendError(t *testing.T) {
	env := newTestServer(t, nil)
	env.backend.err = errors.New("dial tcp: connection refused")

	rec := env.do(t, http.MethodGet, "/", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "The reports service is unavailable")
	assert.NotContains(t, body, "dial tcp")
}

func TestListReports(t *testing.T) {
	env := newTestServer(t, nil)

	rec := env.do(t, http.MethodGet, "/api/reports?limit=1&sortBy=title&sortOrder=ASC", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp reports.ListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Reports, 1)
	assert.Equal(t, int64(1), resp.Reports[0].ID)
	assert.Equal(t, 1, env.backend.lastLimit)
	assert.Equal(t, "asc", env.backend.lastReq.SortOrder)
}

func TestListReports_EmptyIsArray(t *testing.T) {
	env := newTestServer(t, nil)

	rec := env.do(t, http.MethodGet, "/api/reports?status=archived", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reports":[],"count":0}`, rec.Body.String())
}

func TestCSVData(t *testing.T) {
	env := newTestServer(t, nil)

	rec := env.do(t, http.MethodGet, "/api/reports/csv-data?department=Sales&search=q3", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp reports.CSVDataResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Rows, 2)
	assert.Equal(t, "Sales", env.backend.lastReq.Filters.Department)
	assert.Equal(t, "q3", env.backend.lastReq.Search)
}

func TestCSVData_InvalidFilter(t *testing.T) {
	env := newTestServer(t, nil)

	rec := env.do(t, http.MethodGet, "/api/reports/csv-data?dateFrom=03/01/2024", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FLT002", decodeError(t, rec).Code)
}

func TestExport(t *testing.T) {
	env := newTestServer(t, nil)

	rec := env.do(t, http.MethodGet, "/api/reports/export?status=draft", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "reports-2024-06-01.csv")

	lines := strings.Split(rec.Body.String(), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,title,status,department,priority,createdAt,updatedAt", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], `1,"Q3, final",draft,Sales,high,`), lines[1])
}

func TestExport_DisplayFormat(t *testing.T) {
	env := newTestServer(t, nil)

	rec := env.do(t, http.MethodGet, "/api/reports/export?format=display&sortBy=title&sortOrder=asc", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	lines := strings.Split(rec.Body.String(), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "ID,Title,Status,Department,Priority,Created Date,Updated Date", lines[0])
	assert.Equal(t, `1,"Q3, final",draft,Sales,high,2024-03-10,`, lines[1])
	assert.Equal(t, "title", env.backend.lastReq.SortBy)
}

func TestExport_NoData(t *testing.T) {
	env := newTestServer(t, nil)

	rec := env.do(t, http.MethodGet, "/api/reports/export?status=archived", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "EXP001", body.Code)
	assert.Equal(t, "There is no data to export", body.Message)
}

func TestExport_BackendError(t *testing.T) {
	env := newTestServer(t, nil)
	env.backend.err = errors.New("pq: relation does not exist")

	rec := env.do(t, http.MethodGet, "/api/reports/export", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "ERR000", decodeError(t, rec).Code)
}

func TestExport_RateLimited(t *testing.T) {
	env := newTestServer(t, map[string]string{
		"RATE_LIMIT_ENABLED": "true",
		"RATE_LIMIT_EXPORT":  "1",
	})

	first := env.do(t, http.MethodGet, "/api/reports/export", nil)
	require.Equal(t, http.StatusOK, first.Code)

	second := env.do(t, http.MethodGet, "/api/reports/export", nil)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))

	// Listing is not bound by the export limit.
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/reports", nil).Code)
}

func TestAPIKeyRequired(t *testing.T) {
	env := newTestServer(t, map[string]string{
		"REQUIRE_API_KEY": "true",
		"API_KEYS":        "k1,k2",
	})

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/reports", nil).Code)

	rec := env.do(t, http.MethodGet, "/api/reports", http.Header{"X-Api-Key": {"k2"}})
	assert.Equal(t, http.StatusOK, rec.Code)

	// The dashboard is not part of the API.
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/", nil).Code)
}

func TestHealth(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthy := true
	srv := NewServer(ctx, testConfig(t, nil), Deps{
		Backend: &fakeBackend{},
		Health: func(context.Context) error {
			if healthy {
				return nil
			}
			return errors.New("db down")
		},
	})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	healthy = false
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestServer(t, nil)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/reports/export", nil).Code)

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "reports_export_total")
	assert.Contains(t, body, `route="/api/reports/export"`)
}

func TestMetricsDisabled(t *testing.T) {
	env := newTestServer(t, map[string]string{"METRICS_ENABLED": "false"})

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/metrics", nil).Code)
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestServer(t, nil)

	rec := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}
