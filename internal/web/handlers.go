package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/JonMunkholm/reports/internal/csvexport"
	"github.com/JonMunkholm/reports/internal/logging"
	"github.com/JonMunkholm/reports/internal/reports"
	"github.com/JonMunkholm/reports/internal/web/templates"
)

// errNoData is returned by the export endpoint when no report matches.
var errNoData = errors.New("no data to export")

// formatDisplay selects human-readable CSV headers and dates.
const formatDisplay = "display"

// parseRequest reads filters and sort from the query string and validates
// them.
func parseRequest(r *http.Request) (reports.ExportRequest, error) {
	req := reports.ParseQuery(r.URL.Query())
	if err := req.Filters.Validate(); err != nil {
		return req, err
	}
	return req.Normalize()
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errNoData):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case strings.HasPrefix(reports.MapError(err).Code, "FLT"):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	params := templates.DashboardParams{
		Limit:       s.cfg.Export.ListLimit,
		SearchDelay: s.cfg.Export.SearchDelay,
	}

	status := http.StatusOK
	req, err := parseRequest(r)
	params.Filters = req.Filters
	params.SortBy = req.SortBy
	params.SortOrder = req.SortOrder

	if err == nil {
		params.Reports, err = s.backend.List(r.Context(), req, s.cfg.Export.ListLimit)
	}
	if err != nil {
		status = statusFor(err)
		msg := reports.MapError(err)
		params.Alert = &templates.Alert{Message: msg.Message, Action: msg.Action, Code: msg.Code}
		logging.FromContext(r.Context()).Warn("dashboard query failed", "code", msg.Code, "error", err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.Dashboard(params).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render dashboard", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			logging.FromContext(r.Context()).Error("health check failed", "error", err)
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	limit := reports.ParseLimit(r.URL.Query(), s.cfg.Export.ListLimit)
	list, err := s.backend.List(r.Context(), req, limit)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	if list == nil {
		list = []reports.Report{}
	}

	writeJSON(w, r, reports.ListResponse{Reports: list, Count: len(list)})
}

func (s *Server) handleCSVData(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	rows, err := s.backend.GetCSVData(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	if rows == nil {
		rows = []csvexport.Row{}
	}

	writeJSON(w, r, reports.CSVDataResponse{Rows: rows})
}

// handleExport fetches the matching rows and sends them as a CSV download.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	ctx := r.Context()
	if s.cfg.Export.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Export.Timeout)
		defer cancel()
	}

	rows, err := s.backend.GetCSVData(ctx, req)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("fetch csv data: %w", err), statusFor(err))
		return
	}

	headers := reports.CSVHeaders
	if r.URL.Query().Get("format") == formatDisplay {
		rows = reports.FormatRowsForCSV(rows)
		headers = reports.DisplayCSVHeaders
	}

	tw := &trackingWriter{ResponseWriter: w}
	res, err := s.exporter.
		WithDeliverer(csvexport.HTTPDeliverer{W: tw}).
		Export(ctx, rows, s.cfg.Export.BaseName, headers)
	if err != nil {
		if tw.wrote {
			// The download already started; nothing useful can be sent.
			logging.FromContext(ctx).Error("export aborted mid-response", "error", err)
			return
		}
		s.respondError(w, r, err, statusFor(err))
		return
	}
	if !res.Success {
		s.respondError(w, r, errNoData, http.StatusNotFound)
	}
}

// trackingWriter records whether the response was started.
type trackingWriter struct {
	http.ResponseWriter
	wrote bool
}

func (t *trackingWriter) WriteHeader(status int) {
	t.wrote = true
	t.ResponseWriter.WriteHeader(status)
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	t.wrote = true
	return t.ResponseWriter.Write(b)
}
