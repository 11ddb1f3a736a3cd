package web

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/JonMunkholm/reports/internal/logging"
	"github.com/JonMunkholm/reports/internal/reports"
	"github.com/JonMunkholm/reports/internal/web/templates"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err with its technical detail and sends the mapped user
// message as JSON to API clients or as an HTML alert to browsers.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := reports.MapError(err)

	logger := logging.FromContext(r.Context())
	logArgs := []any{"path", r.URL.Path, "status", status, "code", msg.Code, "error", err}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", logArgs...)
	} else {
		logger.Warn("request rejected", logArgs...)
	}

	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(ErrorResponse{
			Error:   msg.Message,
			Message: msg.Message,
			Action:  msg.Action,
			Code:    msg.Code,
		})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = templates.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
}

// wantsJSON reports whether the client expects a JSON response. API routes
// always do.
func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/") ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}

// writeJSON encodes v with status 200.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("json encode failed", "error", err)
	}
}
