package updater

import (
	"context"
	"errors"
	"time"

	"github.com/macropower/dotup/pkg/manager"
)

// Status classifies the outcome of an update run.
type Status string

const (
	// StatusOK means every package updated successfully.
	StatusOK Status = "ok"
	// StatusPartial means some packages updated and some failed.
	StatusPartial Status = "partial"
	// StatusFailed means nothing updated successfully.
	StatusFailed Status = "failed"
	// StatusCanceled means the run was canceled before it finished.
	StatusCanceled Status = "canceled"
)

// PackageResult is the outcome of one package update.
type PackageResult struct {
	Started  time.Time
	Finished time.Time
	Err      error
	Stdout   string
	Stderr   string
	Package  manager.Package
	Skipped  bool
}

// Duration returns the wall time the update took.
func (pr PackageResult) Duration() time.Duration {
	return pr.Finished.Sub(pr.Started)
}

// ManagerResult is the outcome of one manager within a run. Err is set when
// the manager could not list packages at all; per-package failures are on the
// package results.
type ManagerResult struct {
	Err      error
	Packages []PackageResult
}

// RunResult is the aggregate outcome of an update run.
type RunResult struct {
	Started  time.Time
	Finished time.Time
	Managers map[string]*ManagerResult
	Status   Status
}

// Duration returns the wall time the run took.
func (rr *RunResult) Duration() time.Duration {
	return rr.Finished.Sub(rr.Started)
}

// Counts returns package totals across all managers.
func (rr *RunResult) Counts() (updated, failed, skipped int) {
	for _, mr := range rr.Managers {
		for _, pr := range mr.Packages {
			switch {
			case pr.Err != nil:
				failed++
			case pr.Skipped:
				skipped++
			default:
				updated++
			}
		}
	}

	return updated, failed, skipped
}

// Packages returns the package results of all managers in one slice.
func (rr *RunResult) Packages() []PackageResult {
	var out []PackageResult
	for _, mr := range rr.Managers {
		out = append(out, mr.Packages...)
	}

	return out
}

func (rr *RunResult) computeStatus(ctx context.Context) Status {
	if errors.Is(ctx.Err(), context.Canceled) {
		return StatusCanceled
	}

	managerErrs := 0
	for _, mr := range rr.Managers {
		if mr.Err != nil {
			managerErrs++
		}
	}

	updated, failed, _ := rr.Counts()

	switch {
	case managerErrs == 0 && failed == 0:
		return StatusOK
	case updated == 0 && failed == 0 && managerErrs == len(rr.Managers):
		return StatusFailed
	case updated == 0 && failed > 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}
