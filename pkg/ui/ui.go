// Package ui provides the main UI for the dotup application.
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/macropower/dotup/pkg/keys"
	"github.com/macropower/dotup/pkg/ui/statusbar"
	"github.com/macropower/dotup/pkg/ui/theme"
	"github.com/macropower/dotup/pkg/updater"
)

// NewProgram returns a new Tea program.
func NewProgram(cfg *Config, r Runner, opts ...ProgramOpt) *tea.Program {
	slog.Debug("starting dotup ui")

	m := newModel(cfg, r)
	for _, opt := range opts {
		opt(m)
	}

	return tea.NewProgram(m, tea.WithAltScreen())
}

type ProgramOpt func(*model)

// WithLogPath sets the transcript path offered for copying in the progress
// view.
func WithLogPath(path string) ProgramOpt {
	return func(m *model) {
		m.progress.logPath = path
	}
}

// State is the top-level application State.
type State int

const (
	statePicker State = iota
	stateProgress
)

func (s State) String() string {
	return map[State]string{
		statePicker:   "picking packages",
		stateProgress: "showing progress",
	}[s]
}

type model struct {
	err       error
	cm        *CommonModel
	kb        *KeyBinds
	picker    PickerModel
	progress  ProgressModel
	state     State
	canceling bool
}

func newModel(cfg *Config, r Runner) *model {
	cm := &CommonModel{
		Cmd:      r,
		Theme:    theme.New(cfg.Theme),
		KeyBinds: cfg.KeyBinds.Common,
	}

	pickerModel := NewPickerModel(PickerConfig{
		CommonModel: cm,
		KeyBinds:    cfg.KeyBinds.Picker,
		Compact:     cfg.Compact,
	})

	progressModel := NewProgressModel(ProgressConfig{
		CommonModel: cm,
		KeyBinds:    cfg.KeyBinds.Progress,
	})

	m := &model{
		cm:       cm,
		state:    statePicker,
		picker:   pickerModel,
		progress: progressModel,
		kb:       cfg.KeyBinds,
	}

	return m
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.loadPackages(), m.picker.spinner.Tick)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Handle global key events that should work anywhere in the app.
		if newModel, cmd, handled := m.handleGlobalKeys(msg); handled {
			return newModel, cmd
		}

	// Window size is received when starting up and on every resize.
	case tea.WindowSizeMsg:
		m.handleWindowResize(msg)

	case PackagesLoadedMsg:
		if n := len(msg.Errors); n > 0 {
			cmds = append(cmds, m.cm.SendStatusMessage(
				fmt.Sprintf("%d managers failed", n), statusbar.StyleError))
		}

	case PickerConfirmedMsg:
		err := m.cm.Cmd.Configure(updater.WithPackages(msg.Packages...))
		if err != nil {
			m.err = err

			break
		}

		m.state = stateProgress
		cmds = append(cmds, m.runUpdate())

	case updater.EventRunStart:
		m.state = stateProgress
		m.cm.ShowStatusMessage = false
		if m.cm.StatusMessageTimer != nil {
			m.cm.StatusMessageTimer.Stop()
		}

	case updater.EventRunEnd:
		updated, failed, _ := msg.Result.Counts()

		statusMsg := fmt.Sprintf("updated %d packages", updated)
		style := statusbar.StyleSuccess
		if failed > 0 {
			statusMsg = fmt.Sprintf("updated %d packages, %d failed", updated, failed)
			style = statusbar.StyleError
		}

		cmds = append(cmds, m.cm.SendStatusMessage(statusMsg, style))

	case StatusMessageTimeoutMsg:
		m.cm.ShowStatusMessage = false

	case ErrMsg:
		m.err = msg.Err
	}

	// Always pass messages to the other models so we can keep them
	// updated, even if the user isn't currently viewing them.
	cmds = append(cmds, m.updateChildModels(msg)...)

	return m, tea.Batch(cmds...)
}

func (m *model) View() string {
	if m.err != nil {
		return m.errorView()
	}

	var s string

	switch m.state {
	case stateProgress:
		s = m.progress.View()
	default:
		s = m.picker.View()
	}

	return strings.TrimRight(s, " \n")
}

func (m *model) errorView() string {
	errMsg := "<nil>"
	if m.err != nil {
		errMsg = m.err.Error()
	}

	return lipgloss.JoinVertical(lipgloss.Top,
		m.cm.Theme.ErrorTitleStyle.Padding(0, 1).Render("ERROR"),
		lipgloss.NewStyle().Padding(1, 0).Render(errMsg),
		m.cm.Theme.SubtleStyle.Render("press q to quit"),
	)
}

// handleGlobalKeys handles keys that work across all contexts.
func (m *model) handleGlobalKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	key := msg.String()

	if m.matchAction(m.kb.Common.Quit, key) {
		// The first quit during a run cancels it, the second one exits.
		if m.state == stateProgress && !m.progress.Finished() && !m.canceling {
			m.canceling = true
			m.cm.Cmd.Cancel()

			return m, m.cm.SendStatusMessage("canceling run, press again to quit", statusbar.StyleError), true
		}

		return m, tea.Quit, true
	}

	return m, nil, false
}

func (m *model) matchAction(kb *keys.KeyBind, key string) bool {
	if m.isTextInputFocused() && keys.IsTextInputAction(key) {
		return false
	}

	return kb.Match(key)
}

func (m *model) isTextInputFocused() bool {
	if m.state == statePicker && m.picker.FilterState == Filtering {
		// Pass through to picker filter handler.
		return true
	}

	return false
}

// updateChildModels updates child models based on current state.
func (m *model) updateChildModels(msg tea.Msg) []tea.Cmd {
	var cmds []tea.Cmd

	switch m.state {
	case statePicker:
		newPickerModel, cmd := m.picker.Update(msg)
		m.picker = newPickerModel

		cmds = append(cmds, cmd)

	case stateProgress:
		newProgressModel, cmd := m.progress.Update(msg)
		m.progress = newProgressModel

		cmds = append(cmds, cmd)
	}

	return cmds
}

// handleWindowResize handles terminal window resize events.
func (m *model) handleWindowResize(msg tea.WindowSizeMsg) {
	m.cm.Width = msg.Width
	m.cm.Height = msg.Height
	m.picker.SetSize(msg.Width, msg.Height)
	m.progress.SetSize(msg.Width, msg.Height)
}

// loadPackages checks every manager for outdated packages.
func (m *model) loadPackages() tea.Cmd {
	return func() tea.Msg {
		pkgs, errs, err := m.cm.Cmd.Outdated(context.Background())
		if err != nil {
			return ErrMsg{Err: err}
		}

		return PackagesLoadedMsg{
			Packages: pkgs,
			Errors:   errs,
		}
	}
}

func (m *model) runUpdate() tea.Cmd {
	return func() tea.Msg {
		go m.cm.Cmd.Run()

		return nil
	}
}
