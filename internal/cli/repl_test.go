package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/peterh/liner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/reports/internal/csvexport"
	"github.com/JonMunkholm/reports/internal/reports"
)

// script feeds fixed lines to the REPL, then ends with err or io.EOF.
type script struct {
	lines   []string
	end     error
	history []string
}

func (s *script) Prompt(string) (string, error) {
	if len(s.lines) == 0 {
		if s.end != nil {
			return "", s.end
		}
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (s *script) AppendHistory(item string) {
	s.history = append(s.history, item)
}

// syncBuffer is a bytes.Buffer safe for the debounce goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeBackend struct {
	mu    sync.Mutex
	list  []reports.Report
	err   error
	reqs  []reports.ExportRequest
	limit int
}

func (b *fakeBackend) List(ctx context.Context, req reports.ExportRequest, limit int) ([]reports.Report, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reqs = append(b.reqs, req)
	b.limit = limit
	return b.list, b.err
}

func (b *fakeBackend) GetCSVData(ctx context.Context, req reports.ExportRequest) ([]csvexport.Row, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reqs = append(b.reqs, req)
	return reports.Rows(b.list), b.err
}

func (b *fakeBackend) requests() []reports.ExportRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]reports.ExportRequest(nil), b.reqs...)
}

func newTestREPL(t *testing.T, backend *fakeBackend) (*REPL, *syncBuffer, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.ExportDir = dir
	cfg.SearchDelay = "20ms"
	cfg.Limit = 5

	out := &syncBuffer{}
	r := NewREPL(cfg, backend, out, nil)
	t.Cleanup(r.Form().Close)
	return r, out, dir
}

var sample = []reports.Report{
	{ID: 1, Title: "Q3 plan", Status: "draft", Department: "Sales", Priority: "high",
		CreatedAt: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)},
	{ID: 2, Title: "Budget", Status: "approved", Department: "Finance", Priority: "low"},
}

func TestRun_SetApplyListsReports(t *testing.T) {
	backend := &fakeBackend{list: sample}
	r, out, _ := newTestREPL(t, backend)

	in := &script{lines: []string{"set status draft", "set department Sales", "apply", "quit"}}
	require.NoError(t, r.Run(context.Background(), in))

	reqs := backend.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, reports.Filters{Status: "draft", Department: "Sales"}, reqs[0].Filters)
	assert.Equal(t, "createdAt", reqs[0].SortBy)
	assert.Equal(t, 5, backend.limit)

	text := out.String()
	assert.Contains(t, text, "Q3 plan")
	assert.Contains(t, text, "2024-03-10")
	assert.Contains(t, text, "2 reports")
	assert.Equal(t, []string{"set status draft", "set department Sales", "apply", "quit"}, in.history)
}

func TestRun_EndsOnAbortAndEOF(t *testing.T) {
	for _, end := range []error{liner.ErrPromptAborted, io.EOF} {
		r, _, _ := newTestREPL(t, &fakeBackend{})
		assert.NoError(t, r.Run(context.Background(), &script{end: end}))
	}
}

func TestRun_ReadError(t *testing.T) {
	r, _, _ := newTestREPL(t, &fakeBackend{})

	err := r.Run(context.Background(), &script{end: errors.New("tty gone")})
	require.ErrorContains(t, err, "tty gone")
}

func TestRun_ErrorsAreReportedAndLoopContinues(t *testing.T) {
	r, out, _ := newTestREPL(t, &fakeBackend{})

	in := &script{lines: []string{"set owner me", "bogus", "sort nope", "show"}}
	require.NoError(t, r.Run(context.Background(), in))

	text := out.String()
	assert.Contains(t, text, "FLT003")
	assert.Contains(t, text, `unknown command "bogus"`)
	assert.Contains(t, text, "FLT004")
	assert.Contains(t, text, "createdAt desc")
}

func TestSearchIsDebounced(t *testing.T) {
	backend := &fakeBackend{list: sample[:1]}
	r, out, _ := newTestREPL(t, backend)
	ctx := context.Background()

	for _, line := range []string{"search q", "search q3"} {
		_, err := r.Exec(ctx, line)
		require.NoError(t, err)
	}
	assert.Empty(t, backend.requests())

	require.Eventually(t, func() bool { return len(backend.requests()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "q3", backend.requests()[0].Search)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "1 reports") }, time.Second, 5*time.Millisecond)
}

func TestSortResubmits(t *testing.T) {
	backend := &fakeBackend{}
	r, out, _ := newTestREPL(t, backend)

	_, err := r.Exec(context.Background(), "sort title ASC")
	require.NoError(t, err)

	reqs := backend.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "title", reqs[0].SortBy)
	assert.Equal(t, "asc", reqs[0].SortOrder)
	assert.Contains(t, out.String(), "no reports match")
}

func TestReset(t *testing.T) {
	backend := &fakeBackend{}
	r, _, _ := newTestREPL(t, backend)
	ctx := context.Background()

	_, err := r.Exec(ctx, "set priority high")
	require.NoError(t, err)
	_, err = r.Exec(ctx, "reset")
	require.NoError(t, err)

	assert.True(t, r.Form().State().IsZero())
	require.Len(t, backend.requests(), 1)
	assert.True(t, backend.requests()[0].Filters.IsZero())
}

func TestExport(t *testing.T) {
	backend := &fakeBackend{list: sample}
	r, out, dir := newTestREPL(t, backend)
	ctx := context.Background()

	_, err := r.Exec(ctx, "sort title desc")
	require.NoError(t, err)
	_, err = r.Exec(ctx, "export")
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(dir, "reports-*.csv"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "id,title,status,department,priority,createdAt,updatedAt\n1,Q3 plan,draft"))
	assert.Contains(t, out.String(), "exported 2 rows to "+matches[0])

	reqs := backend.requests()
	assert.Equal(t, "desc", reqs[len(reqs)-1].SortOrder)
}

func TestExport_NoData(t *testing.T) {
	r, out, dir := newTestREPL(t, &fakeBackend{})

	_, err := r.Exec(context.Background(), "export")
	require.NoError(t, err)

	assert.Contains(t, out.String(), csvexport.NoDataMessage)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExport_BackendError(t *testing.T) {
	r, _, _ := newTestREPL(t, &fakeBackend{err: errors.New("connection refused")})

	_, err := r.Exec(context.Background(), "export")
	require.Error(t, err)
	assert.Equal(t, "API001", reports.MapError(err).Code)
}

func TestQuit(t *testing.T) {
	r, _, _ := newTestREPL(t, &fakeBackend{})

	for _, cmd := range []string{"quit", "exit", "q"} {
		quit, err := r.Exec(context.Background(), cmd)
		require.NoError(t, err)
		assert.True(t, quit, cmd)
	}
}
