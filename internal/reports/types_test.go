package reports

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseField(t *testing.T) {
	tests := []struct {
		in      string
		want    Field
		wantErr bool
	}{
		{in: "status", want: FieldStatus},
		{in: "Department", want: FieldDepartment},
		{in: "dateFrom", want: FieldDateFrom},
		{in: "date_from", want: FieldDateFrom},
		{in: "DATE_TO", want: FieldDateTo},
		{in: "search", want: FieldSearch},
		{in: "owner", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseField(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownField) {
					t.Fatalf("expected ErrUnknownField, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseField(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFilters_WithLeavesOriginalUnchanged(t *testing.T) {
	orig := Filters{Status: "draft"}
	next := orig.With(FieldDepartment, "Sales")

	if orig.Department != "" {
		t.Errorf("original modified: %+v", orig)
	}
	want := Filters{Status: "draft", Department: "Sales"}
	if diff := cmp.Diff(want, next); diff != "" {
		t.Errorf("With() mismatch (-want +got):\n%s", diff)
	}

	if unchanged := orig.With(Field("owner"), "x"); unchanged != orig {
		t.Errorf("unknown field changed filters: %+v", unchanged)
	}
}

func TestFilters_GetAllFields(t *testing.T) {
	var fs Filters
	for i, f := range Fields {
		fs = fs.With(f, strings.Repeat("x", i+1))
	}
	for i, f := range Fields {
		if got := fs.Get(f); got != strings.Repeat("x", i+1) {
			t.Errorf("Get(%s) = %q", f, got)
		}
	}
	if fs.Get(Field("owner")) != "" {
		t.Error("Get of unknown field should be empty")
	}
}

func TestFilters_IsZeroAndActive(t *testing.T) {
	if !(Filters{}).IsZero() {
		t.Error("zero Filters should report IsZero")
	}

	fs := Filters{Priority: "high", Search: "q3"}
	if fs.IsZero() {
		t.Error("non-empty Filters reported IsZero")
	}
	want := []Field{FieldSearch, FieldPriority}
	if diff := cmp.Diff(want, fs.Active()); diff != "" {
		t.Errorf("Active() mismatch (-want +got):\n%s", diff)
	}
}

func TestFilters_Validate(t *testing.T) {
	tests := []struct {
		name    string
		filters Filters
		wantErr []string
	}{
		{name: "empty is valid", filters: Filters{}},
		{
			name: "all valid",
			filters: Filters{
				Status: "approved", Department: "Finance", Priority: "low",
				DateFrom: "2024-01-01", DateTo: "2024-01-31", Search: "anything",
			},
		},
		{name: "same day range", filters: Filters{DateFrom: "2024-05-05", DateTo: "2024-05-05"}},
		{name: "unknown status", filters: Filters{Status: "deleted"}, wantErr: []string{"invalid enum: status"}},
		{name: "department is case sensitive", filters: Filters{Department: "sales"}, wantErr: []string{"invalid enum: department"}},
		{name: "unknown priority", filters: Filters{Priority: "urgent"}, wantErr: []string{"invalid enum: priority"}},
		{name: "bad date", filters: Filters{DateFrom: "01/02/2024"}, wantErr: []string{"invalid date: dateFrom"}},
		{name: "reversed range", filters: Filters{DateFrom: "2024-02-01", DateTo: "2024-01-01"}, wantErr: []string{"invalid date range"}},
		{
			name:    "reports every problem",
			filters: Filters{Status: "x", Priority: "y", DateTo: "nope"},
			wantErr: []string{"status", "priority", "invalid date: dateTo"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filters.Validate()
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not mention %q", err, want)
				}
			}
		})
	}
}

func TestNewExportRequest(t *testing.T) {
	filters := Filters{Status: "draft", Search: "q3"}

	tests := []struct {
		name    string
		sorting []Sort
		want    ExportRequest
	}{
		{
			name:    "no sorting uses default",
			sorting: nil,
			want:    ExportRequest{SortBy: "createdAt", SortOrder: "desc", Filters: filters, Search: "q3"},
		},
		{
			name:    "ascending first entry",
			sorting: []Sort{{Column: "title", Desc: false}},
			want:    ExportRequest{SortBy: "title", SortOrder: "asc", Filters: filters, Search: "q3"},
		},
		{
			name:    "only first entry is used",
			sorting: []Sort{{Column: "priority", Desc: true}, {Column: "title"}},
			want:    ExportRequest{SortBy: "priority", SortOrder: "desc", Filters: filters, Search: "q3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewExportRequest(filters, tt.sorting)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("NewExportRequest mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExportRequest_Normalize(t *testing.T) {
	got, err := ExportRequest{SortOrder: "ASC", Filters: Filters{Search: "x"}}.Normalize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := ExportRequest{SortBy: "createdAt", SortOrder: "asc", Filters: Filters{Search: "x"}, Search: "x"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Normalize mismatch (-want +got):\n%s", diff)
	}

	if _, err := (ExportRequest{SortBy: "owner"}).Normalize(); !errors.Is(err, ErrInvalidSort) {
		t.Errorf("expected ErrInvalidSort for column, got %v", err)
	}
	if _, err := (ExportRequest{SortOrder: "sideways"}).Normalize(); !errors.Is(err, ErrInvalidSort) {
		t.Errorf("expected ErrInvalidSort for order, got %v", err)
	}
}

func TestQueryRoundTrip(t *testing.T) {
	req := ExportRequest{
		SortBy:    "title",
		SortOrder: "asc",
		Filters:   Filters{Status: "draft", DateFrom: "2024-01-01", Search: "q3 plan"},
		Search:    "q3 plan",
	}

	v := EncodeQuery(req)
	if v.Get("department") != "" || v.Has("department") {
		t.Error("unset filters should be omitted")
	}
	if v.Get("search") != "q3 plan" {
		t.Errorf("search = %q", v.Get("search"))
	}

	if diff := cmp.Diff(req, ParseQuery(v)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeQuery_SearchOverridesFilter(t *testing.T) {
	v := EncodeQuery(ExportRequest{Filters: Filters{Search: "old"}, Search: "new"})
	if v.Get("search") != "new" {
		t.Errorf("search = %q, want new", v.Get("search"))
	}
}

func TestParseLimit(t *testing.T) {
	tests := map[string]int{"": 50, "abc": 50, "0": 50, "-3": 50, "10": 10}
	for raw, want := range tests {
		v := EncodeQuery(ExportRequest{})
		if raw != "" {
			v.Set(ParamLimit, raw)
		}
		if got := ParseLimit(v, 50); got != want {
			t.Errorf("ParseLimit(%q) = %d, want %d", raw, got, want)
		}
	}
}
