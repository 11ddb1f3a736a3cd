// Package scheduler runs CSV exports on cron schedules.
//
// Each job fetches the reports matching its filters and exports them through
// the configured Exporter, which normally delivers into a directory. Runs of
// the same job on the same day produce the same filename and overwrite.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/JonMunkholm/reports/internal/csvexport"
	"github.com/JonMunkholm/reports/internal/reports"
)

// RunRecorder receives the outcome of every run.
type RunRecorder interface {
	RecordJobRun(job string, err error, at time.Time)
}

// Scheduler owns a cron instance and the jobs registered on it.
type Scheduler struct {
	api      reports.API
	exporter *csvexport.Exporter
	recorder RunRecorder
	now      func() time.Time
	logger   *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	running bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRecorder reports run outcomes to r.
func WithRecorder(r RunRecorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithClock overrides time.Now for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New returns a stopped scheduler that reads from api and writes with
// exporter.
func New(api reports.API, exporter *csvexport.Exporter, opts ...Option) *Scheduler {
	s := &Scheduler{
		api:      api,
		exporter: exporter,
		now:      time.Now,
		logger:   slog.Default(),
		cron:     cron.New(),
		entries:  make(map[string]cron.EntryID),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "scheduler")
	return s
}

// Start registers jobs and starts the cron loop. With no jobs it does
// nothing. The scheduler stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context, jobs []Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if len(jobs) == 0 {
		s.logger.Info("no scheduled exports configured")
		return nil
	}

	for _, job := range jobs {
		if err := job.Validate(); err != nil {
			return err
		}
		id, err := s.cron.AddFunc(job.Schedule, func() {
			_, _ = s.RunJob(ctx, job)
		})
		if err != nil {
			return fmt.Errorf("schedule job %q: %w", job.Name, err)
		}
		s.entries[job.Name] = id
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("scheduler started", "jobs", len(jobs))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunJob runs job once, now.
func (s *Scheduler) RunJob(ctx context.Context, job Job) (csvexport.Result, error) {
	at := s.now()
	logger := s.logger.With("job", job.Name)
	logger.Info("scheduled export started")

	res, err := s.run(ctx, job)
	if s.recorder != nil {
		s.recorder.RecordJobRun(job.Name, err, at)
	}
	if err != nil {
		logger.Error("scheduled export failed", "error", err)
		return res, err
	}

	if res.Success {
		logger.Info("scheduled export completed", "filename", res.Filename, "rows", res.Rows)
	} else {
		logger.Info("scheduled export skipped, no matching reports")
	}
	return res, nil
}

func (s *Scheduler) run(ctx context.Context, job Job) (csvexport.Result, error) {
	req, err := job.Request().Normalize()
	if err != nil {
		return csvexport.Result{}, err
	}

	rows, err := s.api.GetCSVData(ctx, req)
	if err != nil {
		return csvexport.Result{}, fmt.Errorf("fetch csv data: %w", err)
	}

	baseName := job.BaseName
	if baseName == "" {
		baseName = job.Name
	}
	return s.exporter.Export(ctx, rows, baseName, reports.CSVHeaders)
}

// Stop stops the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("scheduler stopped")
}

// IsRunning reports whether the cron loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRuns returns the next scheduled time of every registered job.
func (s *Scheduler) NextRuns() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]time.Time, len(s.entries))
	for name, id := range s.entries {
		out[name] = s.cron.Entry(id).Next
	}
	return out
}
