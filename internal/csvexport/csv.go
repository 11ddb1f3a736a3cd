// Package csvexport turns in-memory rows into CSV text and delivers the
// result as a downloadable, date-stamped file.
//
// The pipeline has three stages:
//
//   - ToCSV serializes rows under a fixed header list
//   - Download hands the text to a Deliverer (HTTP response, directory, ...)
//   - Exporter.Export ties both together with the empty-input policy,
//     filename convention and error reporting
package csvexport

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Row is one exportable record: column key to scalar value.
type Row map[string]any

// ToCSV serializes rows under headers.
//
// When headers is nil they are taken from the first row's keys, sorted, since
// Go maps have no insertion order. Without any headers the result is empty.
// The header line is written verbatim. A row missing a header key gets
// an empty cell in that column. Lines are joined by "\n" with no trailing
// newline.
func ToCSV(rows []Row, headers []string) string {
	if headers == nil {
		if len(rows) == 0 {
			return ""
		}
		headers = HeadersOf(rows[0])
	}
	if len(headers) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(strings.Join(headers, ","))

	for _, row := range rows {
		b.WriteByte('\n')
		for i, h := range headers {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(EscapeField(FormatValue(row[h])))
		}
	}

	return b.String()
}

// HeadersOf returns the keys of row in lexicographic order.
func HeadersOf(row Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EscapeField quotes s if and only if it contains a double quote, a comma or
// a line break. Inner quotes are doubled.
func EscapeField(s string) string {
	if strings.ContainsAny(s, ",\"\n\r") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

// FormatValue renders a cell value as text. Nil and invalid database values
// become the empty string; nothing here fails or panics.
func FormatValue(v any) string {
	if v == nil {
		return ""
	}

	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int8:
		return strconv.FormatInt(int64(val), 10)
	case int16:
		return strconv.FormatInt(int64(val), 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint8:
		return strconv.FormatUint(uint64(val), 10)
	case uint16:
		return strconv.FormatUint(uint64(val), 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return formatFloat(float64(val), 32)
	case float64:
		return formatFloat(val, 64)
	case time.Time:
		if val.IsZero() {
			return ""
		}
		return val.Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return ""
		}
		return FormatValue(*val)
	case *string:
		if val == nil {
			return ""
		}
		return *val

	// pgx values, as returned by rows.Values().
	case pgtype.Text:
		if !val.Valid {
			return ""
		}
		return val.String
	case pgtype.Bool:
		if !val.Valid {
			return ""
		}
		return strconv.FormatBool(val.Bool)
	case pgtype.Int4:
		if !val.Valid {
			return ""
		}
		return strconv.FormatInt(int64(val.Int32), 10)
	case pgtype.Int8:
		if !val.Valid {
			return ""
		}
		return strconv.FormatInt(val.Int64, 10)
	case pgtype.Date:
		if !val.Valid {
			return ""
		}
		return val.Time.Format("2006-01-02")
	case pgtype.Timestamptz:
		if !val.Valid {
			return ""
		}
		return val.Time.Format(time.RFC3339)
	case pgtype.Numeric:
		if !val.Valid {
			return ""
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return ""
		}
		return formatFloat(f.Float64, 64)

	case fmt.Stringer:
		return val.String()
	case error:
		return val.Error()
	}

	return fmt.Sprint(v)
}

func formatFloat(f float64, bits int) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, bits)
	}
	return strconv.FormatFloat(f, 'f', -1, bits)
}
