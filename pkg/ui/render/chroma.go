// Package render turns configuration, transcripts, and diffs into styled
// terminal output.
package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/charmbracelet/x/cellbuf"
	"github.com/muesli/termenv"

	"github.com/macropower/dotup/pkg/ui/ansis"
	"github.com/macropower/dotup/pkg/ui/theme"
)

const wrapOnCharacters = " /-"

// ChromaRenderer renders content with chroma syntax highlighting, optional
// line numbers, and an optional highlighted error region.
type ChromaRenderer struct {
	lexer             chroma.Lexer
	formatter         chroma.Formatter
	theme             *theme.Theme
	style             *chroma.Style
	errRegion         *errRegion
	initialLineNumber int
	lineNumbers       bool
}

type errRegion struct {
	startLine, startCol, endLine, endCol int
}

type ChromaOpt func(cr *ChromaRenderer)

// WithInitialLineNumber sets the number rendered for the first line. Used
// when rendering an excerpt of a larger document.
func WithInitialLineNumber(n int) ChromaOpt {
	return func(cr *ChromaRenderer) {
		cr.initialLineNumber = n
	}
}

// WithoutLineNumbers disables the line number gutter.
func WithoutLineNumbers() ChromaOpt {
	return func(cr *ChromaRenderer) {
		cr.lineNumbers = false
	}
}

// WithLexer selects the chroma lexer by name. Defaults to YAML.
func WithLexer(name string) ChromaOpt {
	return func(cr *ChromaRenderer) {
		lexer := lexers.Get(name)
		if lexer == nil {
			lexer = lexers.Fallback
		}

		cr.lexer = chroma.Coalesce(lexer)
	}
}

// NewChromaRenderer creates a new [ChromaRenderer].
func NewChromaRenderer(t *theme.Theme, opts ...ChromaOpt) *ChromaRenderer {
	lexer := lexers.Get("YAML")
	lexer = chroma.Coalesce(lexer)

	formatterName := "noop" // Default to noop formatter.
	switch termenv.ColorProfile() {
	case termenv.TrueColor:
		formatterName = "terminal16m"

	case termenv.ANSI256:
		formatterName = "terminal256"

	case termenv.ANSI:
		formatterName = "terminal8"
	}

	cr := &ChromaRenderer{
		theme:             t,
		lexer:             lexer,
		formatter:         formatters.Get(formatterName),
		style:             t.ChromaStyle,
		initialLineNumber: 1,
		lineNumbers:       true,
	}
	for _, opt := range opts {
		opt(cr)
	}

	return cr
}

// SetFormatter sets the chroma formatter explicitly.
// This is primarily useful for testing.
func (cr *ChromaRenderer) SetFormatter(name string) {
	cr.formatter = formatters.Get(name)
}

// SetError marks a region of the content, by zero-based line and column, to
// be rendered with the error style on top of syntax highlighting.
func (cr *ChromaRenderer) SetError(startLine, startCol, endLine, endCol int) {
	cr.errRegion = &errRegion{
		startLine: startLine,
		startCol:  max(0, startCol),
		endLine:   endLine,
		endCol:    max(0, endCol),
	}
}

// RenderContent renders content with chroma styling. A width of zero
// disables wrapping.
func (cr *ChromaRenderer) RenderContent(content string, width int) (string, error) {
	styled, err := cr.executeRendering(content)
	if err != nil {
		return "", err
	}

	if cr.errRegion != nil {
		styled = cr.applyErrorRegion(styled)
	}

	return cr.postProcessContent(styled, width), nil
}

func (cr *ChromaRenderer) executeRendering(content string) (string, error) {
	iterator, err := cr.lexer.Tokenise(nil, content)
	if err != nil {
		return "", fmt.Errorf("lexer tokenize: %w", err)
	}

	buf := &bytes.Buffer{}

	err = cr.formatter.Format(buf, cr.style, iterator)
	if err != nil {
		return "", fmt.Errorf("format: %w", err)
	}

	return buf.String(), nil
}

// applyErrorRegion overlays the error style on the marked region while
// preserving the chroma styling of the surrounding text.
func (cr *ChromaRenderer) applyErrorRegion(styled string) string {
	reg := cr.errRegion
	lines := strings.Split(styled, "\n")
	editor := ansis.NewStyleEditor()

	result := make([]string, 0, len(lines))
	for i, line := range lines {
		if i < reg.startLine || i > reg.endLine {
			result = append(result, line)

			continue
		}

		start := 0
		if i == reg.startLine {
			start = reg.startCol
		}

		end := len([]rune(ansi.Strip(stripTrailingNewline(line))))
		if i == reg.endLine && reg.endCol > start {
			end = min(end, reg.endCol)
		}

		if end <= start {
			result = append(result, line)

			continue
		}

		result = append(result, editor.ApplyStyles(line, []ansis.StyleRange{{
			Start: start,
			End:   end,
			Style: cr.theme.ErrorTitleStyle,
		}}))
	}

	return strings.Join(result, "\n")
}

func (cr *ChromaRenderer) postProcessContent(content string, width int) string {
	content = strings.TrimRight(content, "\n")

	lines := strings.Split(content, "\n")

	var result strings.Builder

	for i, line := range lines {
		if cr.lineNumbers {
			result.WriteString(cr.formatLineWithNumber(line, cr.initialLineNumber+i, width))
		} else {
			result.WriteString(cr.formatLine(line, width))
		}

		// Don't add an artificial newline after the last split.
		if i+1 < len(lines) {
			result.WriteRune('\n')
		}
	}

	return result.String()
}

func (cr *ChromaRenderer) formatLine(line string, width int) string {
	if width <= 0 {
		return line
	}

	trunc := lipgloss.NewStyle().MaxWidth(width).Render

	return trunc(cellbuf.Wrap(line, width, wrapOnCharacters))
}

// formatLineWithNumber formats a line with a line number gutter, wrapping
// continuation lines under it.
func (cr *ChromaRenderer) formatLineWithNumber(line string, lineNum, width int) string {
	lineNumberText := fmt.Sprintf("%4d  ", lineNum)

	if width <= 0 {
		return cr.theme.LineNumberStyle.Render(lineNumberText) + line
	}

	width = max(0, width-2) // Reserve space for line number and padding.
	trunc := lipgloss.NewStyle().MaxWidth(width).Render

	wrapped := cellbuf.Wrap(line, width, wrapOnCharacters)

	fmtLines := []string{}
	for i, ln := range strings.Split(wrapped, "\n") {
		if i == 0 {
			ln = cr.theme.LineNumberStyle.Render(lineNumberText) + trunc(ln)
		} else {
			ln = cr.theme.LineNumberStyle.Render("   -  ") + trunc(ln)
		}
		fmtLines = append(fmtLines, ln)
	}

	return strings.Join(fmtLines, "\n")
}

func stripTrailingNewline(s string) string {
	return strings.TrimRight(s, "\r\n")
}
