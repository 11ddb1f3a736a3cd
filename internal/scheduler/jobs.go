package scheduler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/reports/internal/reports"
)

// Job is one scheduled export as declared in the jobs file.
//
//	jobs:
//	  - name: weekly-sales
//	    schedule: "0 6 * * 1"
//	    base_name: sales
//	    filters:
//	      department: Sales
//	    sort_by: createdAt
//	    sort_order: desc
type Job struct {
	Name      string          `yaml:"name"`
	Schedule  string          `yaml:"schedule"`
	BaseName  string          `yaml:"base_name"`
	Filters   reports.Filters `yaml:"filters"`
	SortBy    string          `yaml:"sort_by"`
	SortOrder string          `yaml:"sort_order"`
}

type jobFile struct {
	Jobs []Job `yaml:"jobs"`
}

// Request returns the export request the job runs.
func (j Job) Request() reports.ExportRequest {
	return reports.ExportRequest{
		SortBy:    j.SortBy,
		SortOrder: j.SortOrder,
		Filters:   j.Filters,
		Search:    j.Filters.Search,
	}
}

// Validate checks the job's name, cron schedule, filters and sort.
func (j Job) Validate() error {
	var errs []string

	if strings.TrimSpace(j.Name) == "" {
		errs = append(errs, "name is required")
	}
	if _, err := cron.ParseStandard(j.Schedule); err != nil {
		errs = append(errs, fmt.Sprintf("invalid cron schedule %q: %v", j.Schedule, err))
	}
	if strings.ContainsAny(j.BaseName, `/\`) {
		errs = append(errs, fmt.Sprintf("base_name %q must not contain path separators", j.BaseName))
	}
	if err := j.Filters.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := j.Request().Normalize(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("job %q: %s", j.Name, strings.Join(errs, "; "))
	}
	return nil
}

// LoadJobs reads and validates a jobs file. A missing file yields no jobs.
func LoadJobs(path string) ([]Job, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read jobs file: %w", err)
	}

	jobs, err := ParseJobs(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return jobs, nil
}

// ParseJobs decodes a jobs document. Unknown keys and duplicate names are
// rejected.
func ParseJobs(data []byte) ([]Job, error) {
	var f jobFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse jobs: %w", err)
	}

	seen := make(map[string]bool, len(f.Jobs))
	var errs []error
	for _, j := range f.Jobs {
		if err := j.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[j.Name] {
			errs = append(errs, fmt.Errorf("job %q: duplicate name", j.Name))
			continue
		}
		seen[j.Name] = true
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid jobs: %w", errors.Join(errs...))
	}

	return f.Jobs, nil
}
