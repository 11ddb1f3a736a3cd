package reports

import (
	"net/url"
	"strconv"
	"strings"
)

// Query parameter names shared by the HTTP server and client.
const (
	ParamSortBy    = "sortBy"
	ParamSortOrder = "sortOrder"
	ParamLimit     = "limit"
)

// EncodeQuery renders req as URL query parameters. Unset filters are omitted.
func EncodeQuery(req ExportRequest) url.Values {
	v := url.Values{}
	if req.SortBy != "" {
		v.Set(ParamSortBy, req.SortBy)
	}
	if req.SortOrder != "" {
		v.Set(ParamSortOrder, req.SortOrder)
	}

	filters := req.Filters
	if req.Search != "" {
		filters = filters.With(FieldSearch, req.Search)
	}
	for _, f := range Fields {
		if val := filters.Get(f); val != "" {
			v.Set(string(f), val)
		}
	}
	return v
}

// ParseQuery is the inverse of EncodeQuery. Sort values are taken as given;
// call Normalize to validate them.
func ParseQuery(v url.Values) ExportRequest {
	var filters Filters
	for _, f := range Fields {
		filters = filters.With(f, strings.TrimSpace(v.Get(string(f))))
	}
	return ExportRequest{
		SortBy:    v.Get(ParamSortBy),
		SortOrder: v.Get(ParamSortOrder),
		Filters:   filters,
		Search:    filters.Search,
	}
}

// ParseLimit reads the limit parameter, falling back to def for missing or
// non-positive values.
func ParseLimit(v url.Values, def int) int {
	n, err := strconv.Atoi(v.Get(ParamLimit))
	if err != nil || n < 1 {
		return def
	}
	return n
}
