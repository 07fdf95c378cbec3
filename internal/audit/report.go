// Package audit checks package release descriptors, alone and as a
// publication history, and collects the results in a report.
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
)

// Severity ranks a finding.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// ParseSeverity is the inverse of Severity.String.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return Info, nil
	case "warning", "warn":
		return Warning, nil
	case "error":
		return Error, nil
	}
	return Info, fmt.Errorf("unknown severity %q", s)
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Finding codes.
const (
	CodeEmptyDescription   = "empty-description"
	CodeInvalidHomepage    = "invalid-homepage"
	CodeInvalidURL         = "invalid-url"
	CodeUnknownLicense     = "unknown-license"
	CodeInvalidChecksum    = "invalid-checksum"
	CodeDraft              = "draft"
	CodeMissingDependency  = "missing-dependency"
	CodeInvalidDependency  = "invalid-dependency"
	CodeInstallDirective   = "install-directive"
	CodeSmokeTest          = "smoke-test"
	CodeInvalidVersion     = "invalid-version"
	CodeTagMismatch        = "tag-mismatch"
	CodeFieldDrift         = "field-drift"
	CodeVersionRegression  = "version-regression"
	CodeChecksumConflict   = "checksum-conflict"
	CodeDuplicate          = "duplicate"
	CodeChecksumMismatch   = "checksum-mismatch"
	CodeFetchFailed        = "fetch-failed"
	CodeArchiveUnreadable  = "archive-unreadable"
	CodeArchiveVersion     = "archive-version-mismatch"
	CodeEntryPointMissing  = "entry-point-missing"
	CodePythonIncompatible = "python-incompatible"
	CodeSignatureInvalid   = "signature-invalid"
	CodeSignatureUnchecked = "signature-unchecked"
	CodeLedgerConflict     = "ledger-conflict"
)

// Finding is one audit result attached to a descriptor.
type Finding struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Ref      string   `json:"ref"`
	Message  string   `json:"message"`

	index int // position of the descriptor in the audited series
}

func (f Finding) String() string {
	return fmt.Sprintf("%s %s %s: %s", f.Severity, f.Code, f.Ref, f.Message)
}

// Summary counts findings per severity.
type Summary struct {
	Info    int `json:"info"`
	Warning int `json:"warning"`
	Error   int `json:"error"`
}

// Report is the outcome of one audit run.
type Report struct {
	RunID       string        `json:"run_id"`
	Started     time.Time     `json:"started"`
	Duration    time.Duration `json:"duration_ns"`
	Remote      bool          `json:"remote"`
	Descriptors []string      `json:"descriptors"`
	Findings    []Finding     `json:"findings"`
	Summary     Summary       `json:"summary"`
}

func newReport(refs []string) *Report {
	return &Report{
		RunID:       uuid.NewString(),
		Started:     time.Now().UTC(),
		Descriptors: refs,
	}
}

func (r *Report) add(fs ...Finding) {
	r.Findings = append(r.Findings, fs...)
}

// finish orders findings by descriptor, keeping check order within a
// descriptor, and fills the summary.
func (r *Report) finish() {
	sort.SliceStable(r.Findings, func(i, j int) bool {
		return r.Findings[i].index < r.Findings[j].index
	})
	r.Summary = Summary{}
	for _, f := range r.Findings {
		switch f.Severity {
		case Info:
			r.Summary.Info++
		case Warning:
			r.Summary.Warning++
		case Error:
			r.Summary.Error++
		}
	}
	r.Duration = time.Since(r.Started)
}

// HasErrors reports whether any finding is an error.
func (r *Report) HasErrors() bool {
	for _, f := range r.Findings {
		if f.Severity == Error {
			return true
		}
	}
	return false
}

// Filter returns the findings at or above min.
func (r *Report) Filter(min Severity) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity >= min {
			out = append(out, f)
		}
	}
	return out
}

// Codes returns the finding codes in report order.
func (r *Report) Codes() []string {
	out := make([]string, len(r.Findings))
	for i, f := range r.Findings {
		out[i] = f.Code
	}
	return out
}

// WriteText prints a table of findings followed by a summary line.
func (r *Report) WriteText(w io.Writer, min Severity) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fs := r.Filter(min)
	if len(fs) > 0 {
		fmt.Fprintln(tw, "SEVERITY\tCODE\tDESCRIPTOR\tMESSAGE")
	}
	for _, f := range fs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", strings.ToUpper(f.Severity.String()), f.Code, f.Ref, f.Message)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "audit %s: %d descriptor(s), %d error(s), %d warning(s), %d info\n",
		r.RunID, len(r.Descriptors), r.Summary.Error, r.Summary.Warning, r.Summary.Info)
	return err
}

// WriteJSON encodes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
