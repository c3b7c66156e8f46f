package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/dotup/pkg/dotfiles"
	"github.com/macropower/dotup/pkg/updater"
	"github.com/macropower/dotup/pkg/version"
)

// ErrRefreshCanceled is returned when a package refresh is canceled before
// completing.
var ErrRefreshCanceled = errors.New("package refresh canceled")

// ExecutionStatus represents the current state of the package inventory.
type ExecutionStatus string

const (
	// StatusIdle indicates no inventory has been collected yet.
	StatusIdle ExecutionStatus = "idle"
	// StatusRunning indicates a package enumeration is in flight.
	StatusRunning ExecutionStatus = "running"
	// StatusCompleted indicates the last enumeration completed.
	StatusCompleted ExecutionStatus = "completed"
	// StatusError indicates the last enumeration finished with failures.
	StatusError ExecutionStatus = "error"
)

// ExecutionState tracks the current state of package enumeration.
type ExecutionState struct {
	Result          *updater.RunResult
	Status          ExecutionStatus
	CompletionCount int64
	RequestCount    int64
}

// UpdateRunner is the runner surface the server consumes. Enumeration runs
// as a dry-run, so the server never updates anything.
type UpdateRunner interface {
	Subscribe(ch chan<- updater.Event)
	Configure(opts ...updater.RunnerOpt) error
	RunContext(ctx context.Context) *updater.RunResult
}

// StatusReporter reports dotfile entry deployment states.
type StatusReporter interface {
	Status(ctx context.Context) ([]*dotfiles.EntryStatus, error)
}

// Server implements the MCP server for dotup.
type Server struct {
	runner          UpdateRunner
	reporter        StatusReporter
	server          *mcp.Server
	tracer          trace.Tracer
	eventCh         chan updater.Event
	completionCond  *sync.Cond
	address         string
	state           ExecutionState
	completionCount int64
	requestCount    int64
	mu              sync.RWMutex
}

// NewServer creates a new MCP server instance.
func NewServer(address string, runner UpdateRunner, reporter StatusReporter) (*Server, error) {
	impl := &mcp.Implementation{
		Name:    name,
		Version: version.GetVersion(),
	}

	opts := &mcp.ServerOptions{
		Instructions: instructions,
	}

	s := &Server{
		address:  address,
		server:   mcp.NewServer(impl, opts),
		tracer:   otel.Tracer("mcp-server"),
		runner:   runner,
		reporter: reporter,
		eventCh:  make(chan updater.Event, 100),
		state: ExecutionState{
			Status: StatusIdle,
		},
	}

	s.completionCond = sync.NewCond(&s.mu)

	runner.Subscribe(s.eventCh)

	s.registerTools()

	// Start event processing.
	go s.processEvents()

	return s, nil
}

// registerTools registers all available tools with the MCP server. Input
// schemas are inferred from the parameter struct tags.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_packages",
		Description: "List outdated packages across the configured package managers. Enumeration shells out to each manager, so the first call may take a while; later calls reuse the cached inventory unless refresh=true is passed.",
	}, WithTracing(s.tracer, s.handleListPackages))

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_status",
		Description: "Report the deployment state of every configured dotfile entry (ok, missing, drifted, conflict, skipped).",
	}, WithTracing(s.tracer, s.handleGetStatus))
}

// processEvents processes update runner events in a separate goroutine.
func (s *Server) processEvents() {
	for event := range s.eventCh {
		s.mu.Lock()

		switch e := event.(type) {
		case updater.EventRunStart:
			s.state.Status = StatusRunning
			s.state.Result = nil

		case updater.EventRunEnd:
			completionCount := atomic.AddInt64(&s.completionCount, 1)
			currentRequestCount := atomic.LoadInt64(&s.requestCount)

			if e.Result != nil && e.Result.Status == updater.StatusFailed {
				s.state.Status = StatusError
			} else {
				s.state.Status = StatusCompleted
			}

			s.state.Result = e.Result
			s.state.CompletionCount = completionCount
			s.state.RequestCount = currentRequestCount

			// Wake all waiters.
			s.completionCond.Broadcast()

		case updater.EventCancel:
			s.state.Status = StatusIdle
			s.state.Result = nil
			s.state.RequestCount = atomic.LoadInt64(&s.requestCount)

			// Wake waiters so they can fail instead of hanging.
			s.completionCond.Broadcast()
		}

		s.mu.Unlock()
	}
}

// refresh starts a new package enumeration when the inventory is missing or
// a refresh is forced. The returned request number is 0 when the cached
// inventory can be served directly. Callers must hold s.mu.
func (s *Server) refresh(ctx context.Context, force bool) (int64, error) {
	switch s.state.Status {
	case StatusCompleted, StatusError:
		if !force {
			return 0, nil
		}

	case StatusRunning:
		// An enumeration is already in flight. Wait for it instead of
		// starting another.
		return atomic.LoadInt64(&s.requestCount), nil

	case StatusIdle:
	}

	// Enumeration is a dry-run regardless of how the runner was built, so
	// this server can never mutate the machine.
	err := s.runner.Configure(updater.WithDryRun(true))
	if err != nil {
		return 0, fmt.Errorf("configure runner: %w", err)
	}

	requestNumber := atomic.AddInt64(&s.requestCount, 1)
	go s.runner.RunContext(ctx)

	return requestNumber, nil
}

// waitForCompletion blocks until an enumeration completes after the given
// request number, or the context is canceled.
func (s *Server) waitForCompletion(ctx context.Context, requestNumber int64) error {
	if requestNumber == 0 {
		return nil // Inventory is current.
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Create a channel for context cancellation.
	ctxDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(ctxDone)
		s.completionCond.Broadcast() // Wake up the condition variable.
	}()

	for {
		switch {
		case s.state.Status == StatusCompleted || s.state.Status == StatusError:
			if s.state.RequestCount >= requestNumber {
				return nil
			}

		case s.state.Status == StatusIdle && s.state.RequestCount >= requestNumber:
			// The enumeration was canceled out from under us.
			return ErrRefreshCanceled
		}

		// Check if context was canceled.
		select {
		case <-ctxDone:
			return fmt.Errorf("wait for completion canceled: %w", ctx.Err())
		default:
		}

		// Wait for the next completion.
		s.completionCond.Wait()
	}
}

// handleListPackages handles the list_packages tool call.
func (s *Server) handleListPackages(
	ctx context.Context,
	_ *mcp.ServerSession,
	params *mcp.CallToolParamsFor[ListPackagesParams],
) (*mcp.CallToolResultFor[ListPackagesResult], error) {
	startTime := time.Now()

	s.mu.Lock()

	requestNumber, err := s.refresh(ctx, params.Arguments.Refresh)
	if err != nil {
		s.mu.Unlock()

		return nil, fmt.Errorf("refresh package inventory: %w", err)
	}

	s.mu.Unlock()

	// Wait for any enumeration that occurs after our request was made.
	err = s.waitForCompletion(ctx, requestNumber)
	if err != nil {
		return nil, fmt.Errorf("wait for completion: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := ListPackagesResult{}

	if s.state.Result != nil {
		populateResultFromRun(&result, s.state.Result, params.Arguments.Manager)
	}

	slog.DebugContext(ctx, "list_packages completed",
		slog.String("status", string(s.state.Status)),
		slog.Int("package_count", result.PackageCount),
		slog.Duration("duration", time.Since(startTime)),
	)

	return createListPackagesResult(result), nil
}

// handleGetStatus handles the get_status tool call.
func (s *Server) handleGetStatus(
	ctx context.Context,
	_ *mcp.ServerSession,
	_ *mcp.CallToolParamsFor[GetStatusParams],
) (*mcp.CallToolResultFor[GetStatusResult], error) {
	statuses, err := s.reporter.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("dotfiles status: %w", err)
	}

	result := GetStatusResult{}
	populateResultFromStatuses(&result, statuses)

	return createGetStatusResult(result), nil
}

func (s *Server) Server() *mcp.Server {
	return s.server
}

func (s *Server) Close() {
	close(s.eventCh)
	// Wake up any waiting goroutines before closing.
	s.mu.Lock()
	s.completionCond.Broadcast()
	s.mu.Unlock()
}

// Serve starts the MCP server. An empty address serves over stdio.
func (s *Server) Serve(ctx context.Context) error {
	slog.InfoContext(ctx, "starting MCP server", slog.String("address", s.address))

	if s.address == "" {
		err := s.serveStdio(ctx)
		if err != nil {
			return fmt.Errorf("serve Stdio: %w", err)
		}

		return nil
	}

	err := s.serveHTTP()
	if err != nil {
		return fmt.Errorf("serve HTTP: %w", err)
	}

	return nil
}

func (s *Server) serveHTTP() error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)

	server := &http.Server{
		Addr:    s.address,
		Handler: handler,

		ReadHeaderTimeout: 10 * time.Second,
	}

	err := server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("MCP server failed: %w", err)
	}

	return nil
}

func (s *Server) serveStdio(ctx context.Context) error {
	t := mcp.NewLoggingTransport(mcp.NewStdioTransport(), os.Stderr)

	err := s.server.Run(ctx, t)
	if err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}

	return nil
}
