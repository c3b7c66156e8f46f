package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/macropower/dotup/pkg/manager"
	"github.com/macropower/dotup/pkg/ui/statusbar"
	"github.com/macropower/dotup/pkg/ui/theme"
	"github.com/macropower/dotup/pkg/updater"
)

// Runner drives package updates on behalf of the TUI.
type Runner interface {
	Configure(opts ...updater.RunnerOpt) error
	Outdated(ctx context.Context) ([]manager.Package, map[string]error, error)
	Run() *updater.RunResult
	Cancel()
	Subscribe(ch chan<- updater.Event)
	String() string
}

// CommonModel carries state shared by all views.
type CommonModel struct {
	Cmd                Runner
	Theme              *theme.Theme
	StatusMessageTimer *time.Timer
	KeyBinds           *CommonKeyBinds
	StatusMessage      StatusMessage
	Width              int
	Height             int
	Loaded             bool
	ShowStatusMessage  bool // Whether to show the status message in the status bar.
}

const StatusMessageTimeout = time.Second * 3 // How long to show status messages.

type (
	StatusMessage struct {
		Message string
		Style   statusbar.Style
	}
	StatusMessageTimeoutMsg struct{}
)

func (m *CommonModel) GetStatusBar() *statusbar.StatusBarRenderer {
	if m.ShowStatusMessage && m.StatusMessage.Message != "" {
		return statusbar.NewStatusBarRenderer(m.Theme, m.Width,
			statusbar.WithMessage(m.StatusMessage.Message, m.StatusMessage.Style))
	}

	return statusbar.NewStatusBarRenderer(m.Theme, m.Width)
}

// SendStatusMessage shows a transient message in the status bar.
func (m *CommonModel) SendStatusMessage(msg string, style statusbar.Style) tea.Cmd {
	m.ShowStatusMessage = true
	m.StatusMessage = StatusMessage{
		Message: msg,
		Style:   style,
	}
	if m.StatusMessageTimer != nil {
		m.StatusMessageTimer.Stop()
	}

	m.StatusMessageTimer = time.NewTimer(StatusMessageTimeout)

	return WaitForStatusMessageTimeout(m.StatusMessageTimer)
}

type ErrMsg struct{ Err error } //nolint:errname // Tea message.

func (e ErrMsg) Error() string { return e.Err.Error() }

func WaitForStatusMessageTimeout(t *time.Timer) tea.Cmd {
	return func() tea.Msg {
		<-t.C

		return StatusMessageTimeoutMsg{}
	}
}
