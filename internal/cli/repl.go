// Package cli implements reportctl, an interactive filter form for a reports
// server.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/peterh/liner"

	"github.com/JonMunkholm/reports/internal/csvexport"
	"github.com/JonMunkholm/reports/internal/form"
	"github.com/JonMunkholm/reports/internal/reports"
)

const prompt = "reports> "

// LineReader reads one line of input per prompt. *liner.State implements
// it.
type LineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// REPL drives a form.Form from typed commands and prints every submission
// as a table of matching reports.
type REPL struct {
	backend reports.Backend
	limit   int
	dir     csvexport.DirDeliverer

	mu   sync.Mutex
	out  io.Writer
	ctx  context.Context
	sort []reports.Sort

	form *form.Form
}

// NewREPL returns a REPL listing from backend and exporting into
// cfg.ExportDir.
func NewREPL(cfg Config, backend reports.Backend, out io.Writer, logger *slog.Logger) *REPL {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	r := &REPL{
		backend: backend,
		limit:   cfg.Limit,
		dir:     csvexport.DirDeliverer{Dir: cfg.ExportDir},
		out:     out,
		ctx:     context.Background(),
	}

	exporter := csvexport.NewExporter(r.dir,
		csvexport.WithLogger(logger),
		csvexport.WithNotifier(csvexport.NotifierFunc(func(_ context.Context, msg string) {
			r.printf("%s\n", msg)
		})),
	)

	r.form = form.New(form.Options{
		OnSubmit:    r.list,
		API:         backend,
		Sorting:     form.SortingFunc(r.sorting),
		Exporter:    exporter,
		SearchDelay: cfg.Delay(),
		Logger:      logger,
	})
	return r
}

// Form returns the underlying form.
func (r *REPL) Form() *form.Form {
	return r.form
}

// Run reads commands until quit, EOF or Ctrl-C.
func (r *REPL) Run(ctx context.Context, lr LineReader) error {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()
	defer r.form.Close()

	r.printf("reportctl - type 'help' for commands\n")

	for {
		line, err := lr.Prompt(prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				r.printf("\n")
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lr.AppendHistory(line)

		quit, err := r.Exec(ctx, line)
		if err != nil {
			r.printError(err)
		}
		if quit {
			return nil
		}
	}
}

// Exec runs a single command line. It reports whether the REPL should exit.
func (r *REPL) Exec(ctx context.Context, line string) (bool, error) {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(cmd) {
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		r.printHelp()
	case "set":
		return false, r.cmdSet(rest)
	case "search":
		return false, r.form.SetField(reports.FieldSearch, rest)
	case "apply":
		r.form.Submit()
	case "reset":
		r.form.Reset()
	case "sort":
		return false, r.cmdSort(rest)
	case "show":
		r.cmdShow()
	case "export":
		return false, r.cmdExport(ctx)
	default:
		return false, fmt.Errorf("unknown command %q (type 'help' for commands)", cmd)
	}
	return false, nil
}

func (r *REPL) cmdSet(args string) error {
	name, value, _ := strings.Cut(args, " ")
	if name == "" {
		return errors.New("usage: set <field> <value>")
	}
	field, err := reports.ParseField(name)
	if err != nil {
		return err
	}
	return r.form.SetField(field, strings.TrimSpace(value))
}

func (r *REPL) cmdSort(args string) error {
	fields := strings.Fields(args)
	if len(fields) == 0 || len(fields) > 2 {
		return errors.New("usage: sort <column> [asc|desc]")
	}

	column := fields[0]
	if !slices.Contains(reports.SortColumns, column) {
		return fmt.Errorf("%w: column %q", reports.ErrInvalidSort, column)
	}
	desc := false
	if len(fields) == 2 {
		switch strings.ToLower(fields[1]) {
		case reports.OrderAsc:
		case reports.OrderDesc:
			desc = true
		default:
			return fmt.Errorf("%w: order %q", reports.ErrInvalidSort, fields[1])
		}
	}

	r.mu.Lock()
	r.sort = []reports.Sort{{Column: column, Desc: desc}}
	r.mu.Unlock()

	r.form.Submit()
	return nil
}

func (r *REPL) cmdShow() {
	state := r.form.State()
	req := reports.NewExportRequest(state, r.sorting())

	r.mu.Lock()
	defer r.mu.Unlock()
	tw := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	for _, f := range reports.Fields {
		fmt.Fprintf(tw, "%s\t%s\n", f, state.Get(f))
	}
	fmt.Fprintf(tw, "sort\t%s %s\n", req.SortBy, req.SortOrder)
	_ = tw.Flush()
}

func (r *REPL) cmdExport(ctx context.Context) error {
	res, err := r.form.ExportCSV(ctx)
	if err != nil {
		return err
	}
	if res.Success {
		r.printf("exported %d rows to %s\n", res.Rows, r.dir.Path(res.Filename))
	}
	return nil
}

func (r *REPL) sorting() []reports.Sort {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.sort)
}

// list is the form's submit callback. It may run on the debounce goroutine.
func (r *REPL) list(filters reports.Filters) {
	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()

	req, err := reports.NewExportRequest(filters, r.sorting()).Normalize()
	if err == nil {
		err = filters.Validate()
	}
	var list []reports.Report
	if err == nil {
		list, err = r.backend.List(ctx, req, r.limit)
	}
	if err != nil {
		r.printError(err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	printReports(r.out, list)
}

func printReports(w io.Writer, list []reports.Report) {
	if len(list) == 0 {
		fmt.Fprintln(w, "no reports match the current filters")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tDEPARTMENT\tPRIORITY\tCREATED")
	for _, rep := range list {
		created := ""
		if !rep.CreatedAt.IsZero() {
			created = rep.CreatedAt.UTC().Format(reports.DateLayout)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			rep.ID, rep.Title, rep.Status, rep.Department, rep.Priority, created)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "%d reports\n", len(list))
}

func (r *REPL) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

// printError prints the user message for known errors and the raw error
// otherwise.
func (r *REPL) printError(err error) {
	if reports.IsUserFacing(err) {
		r.printf("error: %s\n", reports.FormatUserError(err))
		return
	}
	r.printf("error: %v\n", err)
}

func (r *REPL) printHelp() {
	r.printf(`Commands:
  set <field> <value>   set a filter (status, department, priority, dateFrom, dateTo)
  search <text>         set the search text, applied after a short pause
  apply                 list reports matching the filters
  reset                 clear all filters and list again
  sort <col> [asc|desc] sort the list and exports
  show                  print the current filters and sort
  export                write the matching reports to a CSV file
  help                  show this help
  quit                  exit
`)
}
