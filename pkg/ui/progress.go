package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/termenv"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/macropower/dotup/pkg/keys"
	"github.com/macropower/dotup/pkg/ui/statusbar"
	"github.com/macropower/dotup/pkg/ui/theme"
	"github.com/macropower/dotup/pkg/updater"
)

const statusBarHeight = 1

// LogPathMsg delivers the transcript path once the run has been journaled.
type LogPathMsg struct {
	Path string
}

type progressRowKind int

const (
	rowPackage progressRowKind = iota
	rowManagerErr
)

// progressRow is one line of run output. Package rows start without a result
// and receive one when the update finishes.
type progressRow struct {
	result  *updater.PackageResult
	err     error
	name    string
	manager string
	kind    progressRowKind
}

// ProgressModel displays a live update run.
type ProgressModel struct {
	cm           *CommonModel
	helpRenderer *statusbar.HelpRenderer
	kb           *ProgressKeyBinds
	running      map[string]bool
	result       *updater.RunResult
	logPath      string
	managers     []string
	rows         []progressRow
	viewport     viewport.Model
	spinner      spinner.Model
	helpHeight   int
	dryRun       bool
	canceled     bool
	ShowHelp     bool
}

type ProgressConfig struct {
	CommonModel *CommonModel
	KeyBinds    *ProgressKeyBinds
	LogPath     string
}

func NewProgressModel(c ProgressConfig) ProgressModel {
	vp := viewport.New(0, 0)
	vp.YPosition = 0

	sp := spinner.New()
	sp.Spinner = spinner.Line
	sp.Style = c.CommonModel.Theme.SelectedStyle

	ckb := c.CommonModel.KeyBinds
	kbr := &keys.KeyBindRenderer{}
	kbr.AddColumn(
		*ckb.Up,
		*ckb.Down,
	)
	kbr.AddColumn(
		*c.KeyBinds.CopyLogPath,
	)
	kbr.AddColumn(
		*ckb.Help,
		*ckb.Quit,
	)

	m := ProgressModel{
		cm:           c.CommonModel,
		kb:           c.KeyBinds,
		viewport:     vp,
		spinner:      sp,
		logPath:      c.LogPath,
		running:      make(map[string]bool),
		helpRenderer: statusbar.NewHelpRenderer(c.CommonModel.Theme, kbr),
	}

	return m
}

// Finished reports whether the run reached a terminal state.
func (m ProgressModel) Finished() bool {
	return m.result != nil || m.canceled
}

func (m ProgressModel) Update(msg tea.Msg) (ProgressModel, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		key := msg.String()

		switch {
		case m.kb.CopyLogPath.Match(key):
			if m.logPath == "" {
				return m, m.cm.SendStatusMessage("no log file for this run", statusbar.StyleError)
			}

			// Copy using OSC 52.
			termenv.Copy(m.logPath)
			// Copy using native system clipboard.
			_ = clipboard.WriteAll(m.logPath) //nolint:errcheck // Can be ignored.
			cmds = append(cmds, m.cm.SendStatusMessage("copied log path", statusbar.StyleSuccess))

		case m.cm.KeyBinds.Help.Match(key):
			m.toggleHelp()

			return m, nil
		}

	case updater.EventRunStart:
		m.reset(msg.Managers, msg.DryRun)
		cmds = append(cmds, m.spinner.Tick)

	case updater.EventManagerStart:
		m.running[msg.Manager] = true
		m.refreshContent()

	case updater.EventManagerEnd:
		delete(m.running, msg.Manager)
		if msg.Result != nil && msg.Result.Err != nil {
			m.rows = append(m.rows, progressRow{
				kind:    rowManagerErr,
				manager: msg.Manager,
				err:     msg.Result.Err,
			})
		}

		m.refreshContent()

	case updater.EventPackageStart:
		m.rows = append(m.rows, progressRow{
			kind:    rowPackage,
			name:    msg.Package.Name,
			manager: msg.Package.Manager,
		})
		m.refreshContent()

	case updater.EventPackageEnd:
		m.finishPackage(msg.Result)
		m.refreshContent()

	case updater.EventRunEnd:
		m.result = msg.Result
		clear(m.running)
		m.refreshContent()
		m.viewport.GotoBottom()

	case updater.EventCancel:
		m.canceled = true
		clear(m.running)
		m.refreshContent()
		m.viewport.GotoBottom()

	case LogPathMsg:
		m.logPath = msg.Path
		m.refreshContent()

	case spinner.TickMsg:
		if !m.Finished() {
			var cmd tea.Cmd

			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
			m.refreshContent()
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m ProgressModel) View() string {
	return lipgloss.JoinVertical(
		lipgloss.Top,
		m.viewport.View(),
		m.statusBarView(),
		m.helpView(),
	)
}

func (m *ProgressModel) SetSize(w, h int) {
	m.cm.Width = w
	m.cm.Height = h

	viewportHeight := h - statusBarHeight

	// Calculate help height if needed.
	if m.ShowHelp {
		m.helpHeight = m.helpRenderer.CalculateHelpHeight()
		viewportHeight -= statusBarHeight + m.helpHeight
	}

	m.viewport.Width = w
	m.viewport.Height = viewportHeight

	m.refreshContent()
}

func (m *ProgressModel) toggleHelp() {
	m.ShowHelp = !m.ShowHelp
	m.SetSize(m.cm.Width, m.cm.Height)

	if m.viewport.PastBottom() {
		m.viewport.GotoBottom()
	}
}

// reset prepares the model for a new run.
func (m *ProgressModel) reset(managers []string, dryRun bool) {
	m.rows = nil
	m.result = nil
	m.canceled = false
	m.managers = managers
	m.dryRun = dryRun

	clear(m.running)

	m.viewport.SetContent("")
	m.viewport.YOffset = 0
	m.refreshContent()
}

// finishPackage attaches a result to the matching in-flight row.
func (m *ProgressModel) finishPackage(result updater.PackageResult) {
	for i := len(m.rows) - 1; i >= 0; i-- {
		row := &m.rows[i]
		if row.kind != rowPackage || row.result != nil {
			continue
		}
		if row.name == result.Package.Name && row.manager == result.Package.Manager {
			row.result = &result

			return
		}
	}

	// No start event was seen for this package.
	m.rows = append(m.rows, progressRow{
		kind:    rowPackage,
		name:    result.Package.Name,
		manager: result.Package.Manager,
		result:  &result,
	})
}

// doneCount returns finished and total package row counts.
func (m ProgressModel) doneCount() (done, total int) {
	for _, row := range m.rows {
		if row.kind != rowPackage {
			continue
		}

		total++
		if row.result != nil {
			done++
		}
	}

	return done, total
}

func (m *ProgressModel) refreshContent() {
	wasAtBottom := m.viewport.AtBottom()

	m.viewport.SetContent(m.contentView())

	if wasAtBottom {
		m.viewport.GotoBottom()
	}
}

func (m ProgressModel) contentView() string {
	t := m.cm.Theme

	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("  " + t.GenericTextStyle.Render(m.titleView()) + "\n\n")

	for _, row := range m.rows {
		b.WriteString(m.rowView(row) + "\n")
	}

	// Managers that are still listing packages.
	names := make([]string, 0, len(m.running))
	for name := range m.running {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		line := fmt.Sprintf("  %s %s", m.spinner.View(),
			t.SubtleStyle.Render(name+": checking for updates..."))
		b.WriteString(m.truncateLine(line) + "\n")
	}

	if m.Finished() {
		b.WriteString("\n" + m.summaryView())
	}

	return b.String()
}

func (m ProgressModel) titleView() string {
	managers := strings.Join(m.managers, ", ")
	if managers == "" {
		managers = m.cm.Cmd.String()
	}

	if m.dryRun {
		return fmt.Sprintf("Previewing updates from %s", managers)
	}

	return fmt.Sprintf("Updating packages from %s", managers)
}

func (m ProgressModel) rowView(row progressRow) string {
	t := m.cm.Theme

	var line string

	switch {
	case row.kind == rowManagerErr:
		line = fmt.Sprintf("  %s %s",
			t.ErrorTextStyle.Render(theme.IconFail),
			t.SubtleStyle.Render(fmt.Sprintf("%s: %v", row.manager, row.err)),
		)

	case row.result == nil:
		line = fmt.Sprintf("  %s %s %s",
			m.spinner.View(),
			t.GenericTextStyle.Render(row.name),
			t.SubtleStyle.Render(row.manager),
		)

	case row.result.Err != nil:
		line = fmt.Sprintf("  %s %s %s",
			t.ErrorTextStyle.Render(theme.IconFail),
			t.GenericTextStyle.Render(row.name),
			t.ErrorTextStyle.Render(firstLine(row.result.Err.Error())),
		)

	case row.result.Skipped:
		line = fmt.Sprintf("  %s %s %s",
			t.SubtleStyle.Render(theme.IconPending),
			t.SubtleStyle.Render(row.name),
			t.SubtleStyle.Render(versionNote(row)+" skipped"),
		)

	default:
		line = fmt.Sprintf("  %s %s %s",
			t.SuccessTextStyle.Render(theme.IconOK),
			t.GenericTextStyle.Render(row.name),
			t.SubtleStyle.Render(fmt.Sprintf("%s (%.1fs)", versionNote(row), row.result.Duration().Seconds())),
		)
	}

	return m.truncateLine(line)
}

func versionNote(row progressRow) string {
	pkg := row.result.Package
	if pkg.Current == "" && pkg.Latest == "" {
		return ""
	}

	return fmt.Sprintf("%s → %s", pkg.Current, pkg.Latest)
}

func (m ProgressModel) summaryView() string {
	t := m.cm.Theme

	var (
		status      string
		statusStyle lipgloss.Style
	)

	switch {
	case m.canceled:
		status = "canceled"
		statusStyle = t.WarningTextStyle
	case m.result.Status == updater.StatusOK:
		status = "ok"
		statusStyle = t.SuccessTextStyle
	case m.result.Status == updater.StatusPartial:
		status = "partial"
		statusStyle = t.WarningTextStyle
	default:
		status = "failed"
		statusStyle = t.ErrorTextStyle
	}

	parts := []string{statusStyle.Render(status)}

	updated, failed, skipped := m.counts()
	parts = append(parts, t.SubtleStyle.Render(fmt.Sprintf("%d updated", updated)))
	if failed > 0 {
		parts = append(parts, t.ErrorTextStyle.Render(fmt.Sprintf("%d failed", failed)))
	}
	if skipped > 0 {
		parts = append(parts, t.SubtleStyle.Render(fmt.Sprintf("%d skipped", skipped)))
	}

	if m.result != nil {
		parts = append(parts, t.SubtleStyle.Render(fmt.Sprintf("%.1fs", m.result.Duration().Seconds())))
	}

	summary := "  " + strings.Join(parts, t.SubtleStyle.Render(" · "))

	if m.logPath != "" {
		summary += "\n  " + t.SubtleStyle.Render("log: "+m.logPath)
	}

	return summary
}

// counts aggregates package outcomes from the displayed rows, so a summary
// can be shown even when the run was canceled before producing a result.
func (m ProgressModel) counts() (updated, failed, skipped int) {
	if m.result != nil {
		return m.result.Counts()
	}

	for _, row := range m.rows {
		if row.kind != rowPackage || row.result == nil {
			continue
		}

		switch {
		case row.result.Err != nil:
			failed++
		case row.result.Skipped:
			skipped++
		default:
			updated++
		}
	}

	return updated, failed, skipped
}

func (m ProgressModel) truncateLine(line string) string {
	if m.viewport.Width <= 0 {
		return line
	}

	return truncate.StringWithTail(line, uint(m.viewport.Width), m.cm.Theme.Ellipsis) //nolint:gosec // Checked above.
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}

	return s
}

func (m ProgressModel) statusBarView() string {
	title := m.cm.Cmd.String()
	if m.canceled {
		title = "canceled"
	}

	done, total := m.doneCount()
	note := fmt.Sprintf("%d/%d", done, total)

	return m.cm.GetStatusBar().RenderWithNote(title, note)
}

func (m ProgressModel) helpView() string {
	var help string
	if m.ShowHelp {
		help = m.helpRenderer.Render(m.cm.Width)
	}

	return help
}
