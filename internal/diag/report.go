// Package diag writes error reports for failures worth a closer look, such
// as a broken model stream. Reports are JSON files in a directory; writing
// them never fails the caller.
package diag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/xdg/bastion/internal/clog"
)

var log = clog.For("diag")

// FilePrefix starts every report file name.
const FilePrefix = "bastion-client-error-"

var unsafeNameRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Report is the JSON body of a report file.
type Report struct {
	Error   ReportError      `json:"error"`
	Context []*genai.Content `json:"context,omitempty"`
}

// ReportError describes the failure. Chain lists the messages of every
// wrapped error, outermost first.
type ReportError struct {
	Message string   `json:"message"`
	Chain   []string `json:"stack,omitempty"`
}

// FileReporter writes one report file per failure.
type FileReporter struct {
	// Dir receives the files. Empty means os.TempDir().
	Dir string

	now func() time.Time
}

// NewFileReporter returns a reporter writing into dir.
func NewFileReporter(dir string) *FileReporter {
	return &FileReporter{Dir: dir, now: time.Now}
}

// Report writes err with its context. label is logged alongside the file
// path; site names the code that failed and becomes part of the file name.
// Failures to write are logged and the report is dropped.
func (r *FileReporter) Report(_ context.Context, err error, label string, contents []*genai.Content, site string) {
	path, werr := r.write(err, contents, site)
	if werr != nil {
		log.Error("%s: %v (additionally, writing the error report failed: %v)", label, err, werr)
		return
	}
	log.Error("%s: %v. Full report available at: %s", label, err, path)
}

func (r *FileReporter) write(err error, contents []*genai.Content, site string) (string, error) {
	dir := r.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	now := time.Now
	if r.now != nil {
		now = r.now
	}

	if site == "" {
		site = "general"
	}
	stamp := strings.NewReplacer(":", "-", ".", "-").Replace(now().UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	name := FilePrefix + unsafeNameRe.ReplaceAllString(site, "_") + "-" + stamp + ".json"
	path := filepath.Join(dir, name)

	report := Report{Error: describe(err), Context: contents}
	data, mErr := json.MarshalIndent(report, "", "  ")
	if mErr != nil {
		// Context may hold values JSON cannot encode; keep the error itself.
		report.Context = nil
		if data, mErr = json.MarshalIndent(report, "", "  "); mErr != nil {
			return "", fmt.Errorf("encode report: %w", mErr)
		}
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

func describe(err error) ReportError {
	if err == nil {
		return ReportError{Message: "unknown error"}
	}
	re := ReportError{Message: err.Error()}
	for e := errors.Unwrap(err); e != nil; e = errors.Unwrap(e) {
		re.Chain = append(re.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	return re
}
