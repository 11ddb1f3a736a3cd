// Package form holds the state of the reports filter form.
//
// A Form owns the current reports.Filters, forwards them to a submit
// callback on demand, re-submits automatically when the search text settles,
// and exports the matching reports as CSV using the caller's sort state.
package form

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/JonMunkholm/reports/internal/csvexport"
	"github.com/JonMunkholm/reports/internal/debounce"
	"github.com/JonMunkholm/reports/internal/reports"
)

// ExportBaseName is the file name prefix of form exports.
const ExportBaseName = "reports"

// ErrNoBackend is returned by ExportCSV when the form has no reports API.
var ErrNoBackend = errors.New("reports api not configured")

// SortingSource supplies the list view's current sort state.
type SortingSource interface {
	Sorting() []reports.Sort
}

// SortingFunc adapts a function to SortingSource.
type SortingFunc func() []reports.Sort

// Sorting calls fn.
func (fn SortingFunc) Sorting() []reports.Sort { return fn() }

// Options configures a Form. Every field is optional.
type Options struct {
	// Initial is the starting filter state.
	Initial reports.Filters

	// OnSubmit receives the whole filter state on submit, reset and
	// auto-search.
	OnSubmit func(reports.Filters)

	// API answers export requests.
	API reports.API

	// Sorting provides the sort order for exports.
	Sorting SortingSource

	// Exporter serializes and delivers exports.
	Exporter *csvexport.Exporter

	// SearchDelay is the auto-search quiet period. Zero uses
	// debounce.DefaultDelay.
	SearchDelay time.Duration

	Logger *slog.Logger
}

// Form is the filter form. It is safe for concurrent use.
type Form struct {
	mu           sync.Mutex
	filters      reports.Filters
	lastSearched string

	search   *debounce.Debouncer[string]
	onSubmit func(reports.Filters)
	api      reports.API
	sorting  SortingSource
	exporter *csvexport.Exporter
	logger   *slog.Logger
}

// New returns a form holding opts.Initial. A non-empty initial search is
// submitted once before New returns.
func New(opts Options) *Form {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	f := &Form{
		filters:      opts.Initial,
		lastSearched: opts.Initial.Search,
		onSubmit:     opts.OnSubmit,
		api:          opts.API,
		sorting:      opts.Sorting,
		exporter:     opts.Exporter,
		logger:       logger.With("component", "form"),
	}
	f.search = debounce.New(opts.Initial.Search, opts.SearchDelay, f.searchSettled)

	if opts.Initial.Search != "" {
		f.submit(opts.Initial)
	}
	return f
}

// State returns the current filters.
func (f *Form) State() reports.Filters {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filters
}

// SearchDelay returns the auto-search quiet period.
func (f *Form) SearchDelay() time.Duration {
	return f.search.Delay()
}

// SetField replaces one field. Changing the search text schedules an
// auto-search; other fields wait for Submit.
func (f *Form) SetField(field reports.Field, value string) error {
	if !slices.Contains(reports.Fields, field) {
		return fmt.Errorf("%w: %q", reports.ErrUnknownField, field)
	}

	f.mu.Lock()
	f.filters = f.filters.With(field, value)
	f.mu.Unlock()

	if field == reports.FieldSearch {
		f.search.Set(value)
	}
	return nil
}

// Submit sends the current filters to OnSubmit unchanged.
func (f *Form) Submit() {
	f.submit(f.State())
}

// Reset clears every field and submits the empty state.
func (f *Form) Reset() {
	f.mu.Lock()
	f.filters = reports.Filters{}
	f.mu.Unlock()

	// Supersede any pending search so it cannot resubmit stale text.
	f.search.Set("")
	f.submit(reports.Filters{})
}

// ExportCSV fetches every report matching the current filters, sorted like
// the list view, and exports them. With no rows the user is notified and
// the Result reports Success false.
func (f *Form) ExportCSV(ctx context.Context) (csvexport.Result, error) {
	if f.api == nil || f.exporter == nil {
		return csvexport.Result{}, ErrNoBackend
	}

	var sorting []reports.Sort
	if f.sorting != nil {
		sorting = f.sorting.Sorting()
	}
	req := reports.NewExportRequest(f.State(), sorting)

	logger := f.logger.With("sort_by", req.SortBy, "sort_order", req.SortOrder)
	logger.Debug("fetching csv data")

	rows, err := f.api.GetCSVData(ctx, req)
	if err != nil {
		logger.Error("fetch csv data failed", "error", err)
		return csvexport.Result{}, fmt.Errorf("fetch csv data: %w", err)
	}

	return f.exporter.Export(ctx, rows, ExportBaseName, reports.CSVHeaders)
}

// Close stops the auto-search timer. No submit is triggered by search
// input after Close returns.
func (f *Form) Close() {
	f.search.Close()
}

// searchSettled runs on the debounce timer goroutine.
func (f *Form) searchSettled(value string) {
	f.mu.Lock()
	if value == f.lastSearched {
		f.mu.Unlock()
		return
	}
	f.lastSearched = value
	filters := f.filters
	f.mu.Unlock()

	if value == "" {
		return
	}
	f.logger.Debug("auto search", "search", value)
	f.submit(filters)
}

func (f *Form) submit(filters reports.Filters) {
	if f.onSubmit != nil {
		f.onSubmit(filters)
	}
}
