package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/reports/internal/csvexport"
	"github.com/JonMunkholm/reports/internal/reports"
)

type stubAPI struct {
	mu   sync.Mutex
	reqs []reports.ExportRequest
	rows []csvexport.Row
	err  error
}

func (a *stubAPI) GetCSVData(ctx context.Context, req reports.ExportRequest) ([]csvexport.Row, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reqs = append(a.reqs, req)
	return a.rows, a.err
}

type runLog struct {
	mu   sync.Mutex
	runs []string
}

func (r *runLog) RecordJobRun(job string, err error, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.runs = append(r.runs, job+":"+result)
}

var fixedNow = time.Date(2024, 7, 4, 6, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, api reports.API) (*Scheduler, string, *runLog) {
	t.Helper()
	dir := t.TempDir()
	clock := func() time.Time { return fixedNow }
	exp := csvexport.NewExporter(csvexport.DirDeliverer{Dir: dir}, csvexport.WithClock(clock))
	log := &runLog{}
	return New(api, exp, WithRecorder(log), WithClock(clock)), dir, log
}

func TestRunJob_WritesFile(t *testing.T) {
	api := &stubAPI{rows: []csvexport.Row{{"id": 1, "title": "Pipeline", "department": "Sales"}}}
	s, dir, log := newTestScheduler(t, api)

	job := Job{
		Name:     "weekly-sales",
		Schedule: "0 6 * * 1",
		BaseName: "sales",
		Filters:  reports.Filters{Department: "Sales"},
		SortBy:   "title",
	}

	res, err := s.RunJob(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "sales-2024-07-04.csv", res.Filename)

	data, err := os.ReadFile(filepath.Join(dir, res.Filename))
	require.NoError(t, err)
	assert.Equal(t,
		"id,title,status,department,priority,createdAt,updatedAt\n1,Pipeline,,Sales,,,",
		string(data))

	require.Len(t, api.reqs, 1)
	assert.Equal(t, reports.ExportRequest{
		SortBy:    "title",
		SortOrder: "desc",
		Filters:   reports.Filters{Department: "Sales"},
	}, api.reqs[0])
	assert.Equal(t, []string{"weekly-sales:ok"}, log.runs)
}

func TestRunJob_SameDayOverwrites(t *testing.T) {
	api := &stubAPI{rows: []csvexport.Row{{"id": 1}}}
	s, dir, _ := newTestScheduler(t, api)
	job := Job{Name: "daily", Schedule: "@daily"}

	_, err := s.RunJob(context.Background(), job)
	require.NoError(t, err)

	api.rows = []csvexport.Row{{"id": 2}}
	_, err = s.RunJob(context.Background(), job)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "daily-2024-07-04.csv", entries[0].Name())

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "\n2,,,,,,"))
}

func TestRunJob_NoRows(t *testing.T) {
	s, dir, log := newTestScheduler(t, &stubAPI{})

	res, err := s.RunJob(context.Background(), Job{Name: "empty", Schedule: "@daily"})
	require.NoError(t, err)
	assert.False(t, res.Success)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, []string{"empty:ok"}, log.runs)
}

func TestRunJob_FetchError(t *testing.T) {
	boom := errors.New("connection refused")
	s, _, log := newTestScheduler(t, &stubAPI{err: boom})

	_, err := s.RunJob(context.Background(), Job{Name: "broken", Schedule: "@daily"})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"broken:error"}, log.runs)
}

func TestStart(t *testing.T) {
	tests := []struct {
		name        string
		jobs        []Job
		wantRunning bool
		wantErr     bool
	}{
		{name: "no jobs", jobs: nil, wantRunning: false},
		{name: "valid job", jobs: []Job{{Name: "a", Schedule: "0 3 * * *"}}, wantRunning: true},
		{name: "invalid schedule", jobs: []Job{{Name: "a", Schedule: "whenever"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := newTestScheduler(t, &stubAPI{})
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := s.Start(ctx, tt.jobs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Start() error = %v, wantErr %v", err, tt.wantErr)
			}
			assert.Equal(t, tt.wantRunning, s.IsRunning())

			if tt.wantRunning {
				next := s.NextRuns()
				require.Contains(t, next, "a")
				assert.False(t, next["a"].IsZero())
				s.Stop()
				assert.False(t, s.IsRunning())
			}
		})
	}
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	s, _, _ := newTestScheduler(t, &stubAPI{})
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, s.Start(ctx, []Job{{Name: "a", Schedule: "@hourly"}}))
	require.Error(t, s.Start(ctx, []Job{{Name: "b", Schedule: "@hourly"}}))

	cancel()
	require.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, 10*time.Millisecond)
}
