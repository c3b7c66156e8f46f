package theme

import (
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	ErrInvalidName    = errors.New("invalid style name")
	ErrRegisterStyles = errors.New("register styles")
)

// Icons.
const (
	Ellipsis = "…"

	IconOK      = "✓"
	IconFail    = "✗"
	IconWarn    = "!"
	IconPending = "•"
)

var Default = New("github")

// Theme derives all UI styles from a chroma syntax style, so the interactive
// views and the highlighted output always agree on colors.
type Theme struct {
	CursorStyle           lipgloss.Style
	DiffDeletedStyle      lipgloss.Style
	DiffInsertedStyle     lipgloss.Style
	ErrorTextStyle        lipgloss.Style
	ErrorTitleStyle       lipgloss.Style
	FilterStyle           lipgloss.Style
	GenericTextStyle      lipgloss.Style
	HelpStyle             lipgloss.Style
	LineNumberStyle       lipgloss.Style
	LogoStyle             lipgloss.Style
	ResultTitleStyle      lipgloss.Style
	SelectedStyle         lipgloss.Style
	SelectedSubtleStyle   lipgloss.Style
	StatusBarHelpStyle    lipgloss.Style
	StatusBarMessageStyle lipgloss.Style
	StatusBarPosStyle     lipgloss.Style
	StatusBarStyle        lipgloss.Style
	SubtleStyle           lipgloss.Style
	SuccessTextStyle      lipgloss.Style
	WarningTextStyle      lipgloss.Style

	ChromaStyle *chroma.Style
	Ellipsis    string
}

func New(theme string) *Theme {
	style := newChromaStyle(theme)

	var (
		genericStyle = lipgloss.NewStyle().
				Foreground(style.lipglossFromToken(chroma.Background))

		logoStyle = lipgloss.NewStyle().
				Foreground(style.lipglossFromTokenBg(chroma.Background)).
				Background(style.lipglossFromToken(chroma.NameTag)).
				Bold(true)

		selectedStyle = lipgloss.NewStyle().
				Foreground(style.lipglossFromToken(chroma.NameTag))

		selectedSubtleStyle = lipgloss.NewStyle().
					Foreground(style.lipglossFromTokenWithFactor(chroma.NameTag, 0.3))

		filterStyle = selectedStyle

		cursorStyle = selectedSubtleStyle

		helpStyle = lipgloss.NewStyle().
				Foreground(style.lipglossFromTokenWithFactor(chroma.Background, 0.2)).
				Background(style.lipglossFromTokenBgWithFactor(chroma.Background, 0.2))

		statusBarStyle = lipgloss.NewStyle().
				Foreground(style.lipglossFromToken(chroma.Background)).
				Background(style.lipglossFromTokenBgWithFactor(chroma.Background, 0.1))

		statusBarPosStyle = lipgloss.NewStyle().
					Foreground(style.lipglossFromToken(chroma.Background)).
					Background(style.lipglossFromTokenBgWithFactor(chroma.Background, 0.15))

		statusBarHelpStyle = helpStyle

		statusBarMessageStyle = lipgloss.NewStyle().
					Foreground(style.lipglossFromTokenBg(chroma.Background)).
					Background(style.lipglossFromTokenWithFactor(chroma.NameTag, 0.15))

		errorTextStyle = lipgloss.NewStyle().
				Foreground(style.lipglossFromToken(chroma.GenericDeleted))

		successTextStyle = lipgloss.NewStyle().
					Foreground(style.lipglossFromToken(chroma.GenericInserted))

		warningTextStyle = lipgloss.NewStyle().
					Foreground(style.lipglossFromToken(chroma.Keyword))

		errorTitleStyle = genericStyle.
				Background(style.lipglossFromToken(chroma.GenericDeleted))

		resultTitleStyle = genericStyle.
					Background(style.lipglossFromToken(chroma.GenericInserted))

		diffInsertedStyle = successTextStyle

		diffDeletedStyle = errorTextStyle

		subtleStyle = lipgloss.NewStyle().
				Foreground(style.lipglossFromToken(chroma.Comment))

		lineNumberStyle = subtleStyle
	)

	return &Theme{
		CursorStyle:           cursorStyle,
		DiffDeletedStyle:      diffDeletedStyle,
		DiffInsertedStyle:     diffInsertedStyle,
		ErrorTextStyle:        errorTextStyle,
		ErrorTitleStyle:       errorTitleStyle,
		FilterStyle:           filterStyle,
		GenericTextStyle:      genericStyle,
		HelpStyle:             helpStyle,
		LineNumberStyle:       lineNumberStyle,
		LogoStyle:             logoStyle,
		ResultTitleStyle:      resultTitleStyle,
		SelectedStyle:         selectedStyle,
		SelectedSubtleStyle:   selectedSubtleStyle,
		StatusBarHelpStyle:    statusBarHelpStyle,
		StatusBarMessageStyle: statusBarMessageStyle,
		StatusBarPosStyle:     statusBarPosStyle,
		StatusBarStyle:        statusBarStyle,
		SubtleStyle:           subtleStyle,
		SuccessTextStyle:      successTextStyle,
		WarningTextStyle:      warningTextStyle,

		ChromaStyle: style.style,
		Ellipsis:    Ellipsis,
	}
}

func Register(name string, entries chroma.StyleEntries) error {
	if name == "" {
		return ErrInvalidName
	}

	customTheme, err := chroma.NewStyle(name, entries)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRegisterStyles, err)
	}
	styles.Register(customTheme)

	return nil
}

type chromaStyle struct {
	style *chroma.Style
}

func newChromaStyle(theme string) chromaStyle {
	s := styles.Get(getStyle(theme))
	if s == nil {
		// If the style is not found, fallback to the default style.
		s = styles.Fallback
	}

	return chromaStyle{
		style: s,
	}
}

func (cs chromaStyle) lipglossFromToken(c chroma.TokenType) lipgloss.Color {
	s := cs.style.Get(c)

	return lipgloss.Color(s.Colour.String()) // nolint:misspell // Chroma naming.
}

func (cs chromaStyle) lipglossFromTokenBg(c chroma.TokenType) lipgloss.Color {
	s := cs.style.Get(c)

	return lipgloss.Color(s.Background.String())
}

func (cs chromaStyle) lipglossFromTokenWithFactor(c chroma.TokenType, factor float64) lipgloss.Color {
	s := cs.style.Get(c)

	sc := s.Colour.BrightenOrDarken(factor) // nolint:misspell // Chroma naming.

	return lipgloss.Color(sc.String())
}

func (cs chromaStyle) lipglossFromTokenBgWithFactor(c chroma.TokenType, factor float64) lipgloss.Color {
	s := cs.style.Get(c)

	sc := s.Background.BrightenOrDarken(factor)

	return lipgloss.Color(sc.String())
}

func getStyle(style string) string {
	switch style {
	case "dark":
		return "github-dark"
	case "light":
		return "github"
	case "auto", "":
		return getDefaultStyle()
	default:
		return style
	}
}

func getDefaultStyle() string {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return "" // Fallback.
	}
	if termenv.HasDarkBackground() {
		return "github-dark"
	}

	return "github"
}
