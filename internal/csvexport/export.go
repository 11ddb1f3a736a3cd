package csvexport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultBaseName is used when Export is called without a base name.
const DefaultBaseName = "reports"

// NoDataMessage is shown to the user when there is nothing to export.
const NoDataMessage = "No data to export."

// errEmptyContent is returned when non-empty input serialized to nothing.
var errEmptyContent = errors.New("no data to export")

// Notifier shows a short message to the user.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, message string)

// Notify calls fn(ctx, message).
func (fn NotifierFunc) Notify(ctx context.Context, message string) {
	fn(ctx, message)
}

// Recorder receives export outcomes for metrics.
type Recorder interface {
	RecordExport(outcome string, rows, bytes int, duration time.Duration)
}

// Export outcomes passed to Recorder.
const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
	OutcomeFailed  = "failed"
)

// Result describes a finished export.
type Result struct {
	ID       string `json:"id,omitempty"`
	Success  bool   `json:"success"`
	Filename string `json:"filename,omitempty"`
	Rows     int    `json:"rows"`
	Bytes    int    `json:"bytes"`
}

// Exporter runs the serialize-and-deliver pipeline.
type Exporter struct {
	deliverer Deliverer
	notifier  Notifier
	recorder  Recorder
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithNotifier sets where user-facing notices go. Defaults to the log.
func WithNotifier(n Notifier) Option {
	return func(e *Exporter) { e.notifier = n }
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option {
	return func(e *Exporter) { e.recorder = r }
}

// WithClock overrides the clock used for the filename date.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Exporter) { e.logger = l }
}

// NewExporter returns an Exporter delivering through d.
func NewExporter(d Deliverer, opts ...Option) *Exporter {
	e := &Exporter{
		deliverer: d,
		now:       time.Now,
		logger:    slog.Default().With("component", "csvexport"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.notifier == nil {
		logger := e.logger
		e.notifier = NotifierFunc(func(_ context.Context, msg string) {
			logger.Info(msg)
		})
	}
	return e
}

// WithDeliverer returns a copy of e that delivers through d. Used to bind a
// shared Exporter to a single HTTP response.
func (e *Exporter) WithDeliverer(d Deliverer) *Exporter {
	cp := *e
	cp.deliverer = d
	return &cp
}

// Filename returns "<baseName>-<YYYY-MM-DD>.csv" for the given time, using
// the UTC calendar date. Repeated exports on one day share a name.
func Filename(baseName string, at time.Time) string {
	if baseName == "" {
		baseName = DefaultBaseName
	}
	return fmt.Sprintf("%s-%s.csv", baseName, at.UTC().Format("2006-01-02"))
}

// Export serializes rows under headers (nil infers them) and delivers the
// result as a date-stamped CSV file.
//
// Empty rows are not an error: the user is told there is nothing to export,
// nothing is delivered and the Result reports Success false. Serialization
// or delivery problems fail the whole export.
func (e *Exporter) Export(ctx context.Context, rows []Row, baseName string, headers []string) (Result, error) {
	start := time.Now()

	if len(rows) == 0 {
		e.notifier.Notify(ctx, NoDataMessage)
		e.record(OutcomeEmpty, 0, 0, start)
		return Result{Success: false}, nil
	}

	filename := Filename(baseName, e.now())
	logger := e.logger.With("filename", filename, "rows", len(rows))
	logger.Debug("csv export started")

	content := ToCSV(rows, headers)
	if content == "" {
		return e.fail(logger, len(rows), start, errEmptyContent)
	}

	if err := Download(ctx, e.deliverer, content, filename, DefaultMIMEType); err != nil {
		return e.fail(logger, len(rows), start, err)
	}

	res := Result{
		ID:       uuid.NewString(),
		Success:  true,
		Filename: filename,
		Rows:     len(rows),
		Bytes:    len(content),
	}
	e.record(OutcomeSuccess, res.Rows, res.Bytes, start)
	logger.Info("csv export complete", "export_id", res.ID, "bytes", res.Bytes)

	return res, nil
}

func (e *Exporter) fail(logger *slog.Logger, rows int, start time.Time, err error) (Result, error) {
	logger.Error("csv export failed", "error", err)
	e.record(OutcomeFailed, rows, 0, start)
	return Result{}, fmt.Errorf("csv export failed: %w", err)
}

func (e *Exporter) record(outcome string, rows, bytes int, start time.Time) {
	if e.recorder != nil {
		e.recorder.RecordExport(outcome, rows, bytes, time.Since(start))
	}
}
