package reports

// error_messages.go maps technical errors to user-facing messages with a code
// that users can quote to support.
//
// Codes by category:
//
//	EXP001 - Nothing to export        (pattern: "no data to export")
//	EXP002 - Download failed          (pattern: "failed to download file")
//	EXP003 - Export failed            (pattern: "csv export failed")
//	FLT001 - Invalid option value     (pattern: "invalid enum")
//	FLT002 - Invalid date             (pattern: "invalid date")
//	FLT003 - Unknown filter field     (pattern: "unknown filter field")
//	FLT004 - Invalid sort             (pattern: "invalid sort")
//	API001 - Backend unavailable      (patterns: "connection refused", "no such host")
//	API002 - Backend error            (pattern: "reports api")
//	DB001  - Database unavailable     (patterns: "connection reset", "failed to connect")
//	REQ001 - Request cancelled        (pattern: "context canceled")
//	REQ002 - Request timed out        (patterns: "context deadline exceeded", "timeout")
//	RATE001 - Too many requests       (pattern: "rate limit")
//	ERR000 - Anything else
//
// Patterns match case-insensitively with strings.Contains; the first match
// wins, so specific patterns come first.

import (
	"fmt"
	"strings"
)

// UserMessage is a user-friendly error with an actionable hint.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Export
	{"no data to export", UserMessage{"There is no data to export", "Adjust the filters and try again", "EXP001"}},
	{"failed to download file", UserMessage{"The export file could not be delivered", "Please try again", "EXP002"}},

	// Filters
	{"invalid enum", UserMessage{"A filter value is not in the allowed list", "Pick a value from the list", "FLT001"}},
	{"invalid date", UserMessage{"Invalid date filter", "Use YYYY-MM-DD and make sure Date From is not after Date To", "FLT002"}},
	{"unknown filter field", UserMessage{"Unknown filter field", "Use one of: search, status, department, priority, dateFrom, dateTo", "FLT003"}},
	{"invalid sort", UserMessage{"Reports cannot be sorted that way", "Sort by one of the table columns", "FLT004"}},

	// Backend
	{"connection refused", UserMessage{"The reports service is unavailable", "Please try again in a few moments", "API001"}},
	{"no such host", UserMessage{"The reports service is unavailable", "Check the configured server address", "API001"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB001"}},
	{"failed to connect", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB001"}},

	// Requests
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "REQ001"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Narrow the filters or try again later", "REQ002"}},
	{"timeout", UserMessage{"Request timed out", "Narrow the filters or try again later", "REQ002"}},
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},

	// Generic wrappers come last so a more specific cause wins.
	{"reports api", UserMessage{"The reports service returned an error", "Please try again or contact support", "API002"}},
	{"csv export failed", UserMessage{"The export failed", "Please try again or contact support", "EXP003"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
