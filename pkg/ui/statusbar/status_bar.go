// Package statusbar renders the status bar and keybind help for the TUI.
package statusbar

import (
	"fmt"
	"strings"

	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"

	"github.com/macropower/dotup/pkg/ui/theme"
	"github.com/macropower/dotup/pkg/version"
)

const (
	helpText  = " ? Help "
	errorText = " ! Error "

	minWidth = 30
)

// Style selects the status bar color set.
type Style int

const (
	StyleNormal Style = iota
	StyleSuccess
	StyleError
)

// StatusBarRenderer renders the one-line status bar shown at the bottom of
// every view.
type StatusBarRenderer struct {
	theme   *theme.Theme
	message string
	width   int
	style   Style
}

// NewStatusBarRenderer creates a new StatusBarRenderer.
func NewStatusBarRenderer(t *theme.Theme, width int, opts ...StatusBarOpt) *StatusBarRenderer {
	sb := &StatusBarRenderer{
		theme: t,
		width: max(width, minWidth),
		style: StyleNormal,
	}
	for _, opt := range opts {
		opt(sb)
	}

	return sb
}

type StatusBarOpt func(*StatusBarRenderer)

// WithMessage replaces the view's message with a transient one.
func WithMessage(message string, style Style) StatusBarOpt {
	return func(r *StatusBarRenderer) {
		r.message = message
		r.style = style
	}
}

func (r *StatusBarRenderer) getMessage(msg string) string {
	if r.message != "" {
		return r.message
	}

	return msg
}

// RenderWithNote renders the status bar with a note on the right side, e.g.
// a page position or progress count.
func (r *StatusBarRenderer) RenderWithNote(msg, progress string) string {
	logo := r.logoView()
	helpNote := r.renderHelpNote()
	progressNote := r.renderProgressNote(progress)
	note := r.renderNote(msg, progressNote)
	emptySpace := r.renderEmptySpace(logo, note, progressNote, helpNote)

	return fmt.Sprintf("%s%s%s%s%s", logo, note, emptySpace, progressNote, helpNote)
}

func (r *StatusBarRenderer) renderProgressNote(note string) string {
	note = " " + note + " "

	switch r.style {
	case StyleError:
		return r.theme.ErrorTitleStyle.Render(note)
	case StyleSuccess:
		return r.theme.StatusBarMessageStyle.Render(note)
	default:
		return r.theme.StatusBarPosStyle.Render(note)
	}
}

func (r *StatusBarRenderer) renderHelpNote() string {
	switch r.style {
	case StyleError:
		return r.theme.ErrorTitleStyle.Render(errorText)
	case StyleSuccess:
		return r.theme.StatusBarMessageStyle.Render(helpText)
	default:
		return r.theme.StatusBarHelpStyle.Render(helpText)
	}
}

// renderNote renders the main note/message component.
func (r *StatusBarRenderer) renderNote(msg, progress string) string {
	note := r.getMessage(msg)
	note = strings.ReplaceAll(note, "\n", " ") // Remove newlines for better rendering.
	note = strings.TrimSpace(note)

	// Calculate available width for the note.
	logo := r.logoView()
	helpNote := r.renderHelpNote()

	availableWidth := max(0, r.width-
		ansi.PrintableRuneWidth(logo)-
		ansi.PrintableRuneWidth(progress)-
		ansi.PrintableRuneWidth(helpNote))

	note = truncate.StringWithTail(" "+note+" ", uint(availableWidth), r.theme.Ellipsis) //nolint:gosec // Uses max.

	switch r.style {
	case StyleError:
		return r.theme.ErrorTitleStyle.Render(note)
	case StyleSuccess:
		return r.theme.StatusBarMessageStyle.Render(note)
	default:
		return r.theme.StatusBarStyle.Render(note)
	}
}

// renderEmptySpace renders the empty space between components.
func (r *StatusBarRenderer) renderEmptySpace(components ...string) string {
	padding := r.width
	for _, comp := range components {
		padding -= ansi.PrintableRuneWidth(comp)
	}
	padding = max(0, padding)

	emptySpace := strings.Repeat(" ", padding)

	switch r.style {
	case StyleError:
		return r.theme.ErrorTitleStyle.Render(emptySpace)
	case StyleSuccess:
		return r.theme.StatusBarMessageStyle.Render(emptySpace)
	default:
		return r.theme.StatusBarStyle.Render(emptySpace)
	}
}

func (r *StatusBarRenderer) logoView() string {
	return r.theme.LogoStyle.Render(fmt.Sprintf(" dotup %s ", version.GetVersion()))
}
