package updater

import (
	"context"

	"github.com/macropower/dotup/pkg/manager"
)

// Event is implemented by all runner events. Events carry the context of the
// run that produced them, so subscribers can propagate cancellation and
// traces.
type Event interface {
	GetContext() context.Context
}

type baseEvent struct {
	ctx context.Context
}

func (e baseEvent) GetContext() context.Context {
	if e.ctx == nil {
		return context.Background()
	}

	return e.ctx
}

// EventRunStart signals the start of an update run.
type EventRunStart struct {
	baseEvent

	// Managers lists the managers participating in the run.
	Managers []string

	// DryRun reports whether package updates are skipped.
	DryRun bool
}

// NewEventRunStart creates a new [EventRunStart] event.
func NewEventRunStart(ctx context.Context, managers []string, dryRun bool) EventRunStart {
	return EventRunStart{
		baseEvent: baseEvent{ctx: ctx},
		Managers:  managers,
		DryRun:    dryRun,
	}
}

// EventManagerStart signals that a manager started listing packages.
type EventManagerStart struct {
	baseEvent

	// Manager is the name of the manager.
	Manager string
}

// NewEventManagerStart creates a new [EventManagerStart] event.
func NewEventManagerStart(ctx context.Context, name string) EventManagerStart {
	return EventManagerStart{
		baseEvent: baseEvent{ctx: ctx},
		Manager:   name,
	}
}

// EventManagerEnd reports a finished manager.
type EventManagerEnd struct {
	baseEvent

	// Result holds the manager outcome, including per-package results.
	Result *ManagerResult

	// Manager is the name of the manager.
	Manager string
}

// NewEventManagerEnd creates a new [EventManagerEnd] event.
func NewEventManagerEnd(ctx context.Context, name string, result *ManagerResult) EventManagerEnd {
	return EventManagerEnd{
		baseEvent: baseEvent{ctx: ctx},
		Manager:   name,
		Result:    result,
	}
}

// EventPackageStart signals that a single package update started.
type EventPackageStart struct {
	baseEvent

	// Package is the package being updated.
	Package manager.Package
}

// NewEventPackageStart creates a new [EventPackageStart] event.
func NewEventPackageStart(ctx context.Context, pkg manager.Package) EventPackageStart {
	return EventPackageStart{
		baseEvent: baseEvent{ctx: ctx},
		Package:   pkg,
	}
}

// EventPackageEnd reports one finished package update.
type EventPackageEnd struct {
	baseEvent

	// Result is the package outcome.
	Result PackageResult
}

// NewEventPackageEnd creates a new [EventPackageEnd] event.
func NewEventPackageEnd(ctx context.Context, result PackageResult) EventPackageEnd {
	return EventPackageEnd{
		baseEvent: baseEvent{ctx: ctx},
		Result:    result,
	}
}

// EventRunEnd reports a finished update run.
type EventRunEnd struct {
	baseEvent

	// Result is the aggregate run outcome.
	Result *RunResult
}

// NewEventRunEnd creates a new [EventRunEnd] event.
func NewEventRunEnd(ctx context.Context, result *RunResult) EventRunEnd {
	return EventRunEnd{
		baseEvent: baseEvent{ctx: ctx},
		Result:    result,
	}
}

// EventCancel signals that the in-flight run was canceled.
type EventCancel struct {
	baseEvent
}

// NewEventCancel creates a new [EventCancel] event.
func NewEventCancel(ctx context.Context) EventCancel {
	return EventCancel{
		baseEvent: baseEvent{ctx: ctx},
	}
}
