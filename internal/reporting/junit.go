// Package reporting writes structured pass/fail records for task executions.
// Records are encoded as JUnit XML so CI systems can pick them up.
package reporting

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jstemmer/go-junit-report/v2/junit"
	"github.com/marcus/stagehand/internal/logging"
)

// timestampFormat is the ISO8601 form JUnit consumers expect.
const timestampFormat = "2006-01-02T15:04:05"

// Record is the outcome of one task run against one template.
type Record struct {
	Task     string
	Template string
	Start    time.Time
	Duration time.Duration
	Err      error // nil on success
}

// Name returns the test case name, "{task} - {template}".
func (r Record) Name() string {
	return fmt.Sprintf("%s - %s", r.Task, r.Template)
}

// Passed reports whether the run succeeded.
func (r Record) Passed() bool {
	return r.Err == nil
}

// Reporter receives execution records and returns where they were written.
type Reporter interface {
	Report(rec Record) (string, error)
}

// DefaultReportsDir returns the default directory for JUnit results.
func DefaultReportsDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return "test-results"
	}
	return filepath.Join(wd, "test-results")
}

// JUnitReporter writes one XML file per task identifier into Dir.
// Runs of the same task against different templates overwrite each other.
type JUnitReporter struct {
	Dir    string
	logger *logging.Logger
}

// NewJUnitReporter creates a reporter writing into dir.
func NewJUnitReporter(dir string) *JUnitReporter {
	if dir == "" {
		dir = DefaultReportsDir()
	}
	return &JUnitReporter{
		Dir:    dir,
		logger: logging.Component("reporting"),
	}
}

// PathFor returns the report path for a task.
func (j *JUnitReporter) PathFor(task string) string {
	return filepath.Join(j.Dir, task+".xml")
}

// Report encodes rec and writes it to {Dir}/{task}.xml.
func (j *JUnitReporter) Report(rec Record) (string, error) {
	if rec.Task == "" {
		return "", fmt.Errorf("record has no task")
	}
	payload, err := Marshal(rec)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(j.Dir, 0755); err != nil {
		return "", fmt.Errorf("creating reports dir: %w", err)
	}
	path := j.PathFor(rec.Task)
	if err := os.WriteFile(path, payload, 0644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	j.logger.DebugCtx("junit report written", map[string]any{
		"path":     path,
		"task":     rec.Task,
		"template": rec.Template,
		"passed":   rec.Passed(),
	})
	return path, nil
}

// Encode builds a single-suite, single-case JUnit document for rec.
func Encode(rec Record) junit.Testsuites {
	name := rec.Name()
	secs := formatSeconds(rec.Duration)

	tc := junit.Testcase{
		Name:      name,
		Classname: rec.Task,
		Time:      secs,
	}
	if rec.Err != nil {
		tc.Failure = &junit.Result{
			Message: rec.Err.Error(),
			Type:    "error",
			Data:    rec.Err.Error(),
		}
	}

	suite := junit.Testsuite{
		Name:      name,
		Time:      secs,
		Timestamp: rec.Start.Format(timestampFormat),
	}
	suite.AddTestcase(tc)

	suites := junit.Testsuites{
		Name: name,
		Time: secs,
	}
	suites.AddSuite(suite)
	return suites
}

// Marshal renders rec as an indented XML document.
func Marshal(rec Record) ([]byte, error) {
	suites := Encode(rec)
	body, err := xml.MarshalIndent(suites, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding junit: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.Write(body)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
