// Package doctor runs environment health checks and reports them as a
// checklist.
package doctor

import (
	"fmt"
	"io"
	"strings"
)

// Status is the outcome of a single health check.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusWarn Status = "warn"
	StatusSkip Status = "skip"
)

// Result holds the outcome of a single health check. Fixable failures
// carry a FixHint naming the command that repairs them.
type Result struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	FixHint string `json:"fixHint,omitempty"`
}

// Pass creates a passing check result.
func Pass(name, message string) Result {
	return Result{Name: name, Status: StatusPass, Message: message}
}

// Fail creates a failing check result with no known fix.
func Fail(name, message string) Result {
	return Result{Name: name, Status: StatusFail, Message: message}
}

// FailWithFix creates a failing check result with a fixing command.
func FailWithFix(name, message, fixHint string) Result {
	return Result{Name: name, Status: StatusFail, Message: message, FixHint: fixHint}
}

// Warn creates a warning check result. Warnings do not fail the run.
func Warn(name, message string) Result {
	return Result{Name: name, Status: StatusWarn, Message: message}
}

// Skip creates a skipped check result. Checks are skipped when a
// prerequisite check failed.
func Skip(name, message string) Result {
	return Result{Name: name, Status: StatusSkip, Message: message}
}

// Report is the aggregate outcome of a doctor run, shaped for JSON output.
type Report struct {
	Checks []Result `json:"checks"`
	OK     bool     `json:"ok"`
}

// NewReport builds a report from check results. OK is false when any
// check failed.
func NewReport(results []Result) Report {
	ok := true
	for _, r := range results {
		if r.Status == StatusFail {
			ok = false

			break
		}
	}

	return Report{Checks: results, OK: ok}
}

// PrintChecklist writes check results as a human-readable checklist and
// reports whether every check passed. Failures print their fixing
// command underneath.
func PrintChecklist(w io.Writer, results []Result) bool {
	ok := true

	for _, r := range results {
		prefix := strings.ToUpper(string(r.Status))
		fmt.Fprintf(w, "[%-5s]  %-40s  %s\n", prefix, r.Name, r.Message)

		if r.Status != StatusFail {
			continue
		}

		ok = false
		if r.FixHint != "" {
			fmt.Fprintf(w, "         %-40s  fix: %s\n", "", r.FixHint)
		}
	}

	fmt.Fprintln(w)

	if ok {
		fmt.Fprintln(w, "All checks passed.")
	} else {
		fmt.Fprintln(w, "Some checks failed.")
	}

	return ok
}
