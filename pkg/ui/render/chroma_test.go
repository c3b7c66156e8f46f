package render_test

import (
	"strings"
	"testing"

	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/dotup/pkg/ui/render"
	"github.com/macropower/dotup/pkg/ui/theme"
)

// testTheme creates a basic theme for testing.
func testTheme() *theme.Theme {
	return &theme.Theme{
		SelectedStyle:   lipgloss.NewStyle().Background(lipgloss.Color("12")).Underline(true).Bold(true),
		ErrorTitleStyle: lipgloss.NewStyle().Background(lipgloss.Color("9")),
		LineNumberStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		ChromaStyle:     styles.Get("github"),
	}
}

func TestNewChromaRenderer(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		opts []render.ChromaOpt
		want string
	}{
		"with line numbers": {
			opts: nil,
			want: "   1  ",
		},
		"without line numbers": {
			opts: []render.ChromaOpt{render.WithoutLineNumbers()},
			want: "key: value",
		},
		"with initial line number": {
			opts: []render.ChromaOpt{render.WithInitialLineNumber(10)},
			want: "  10  ",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			renderer := render.NewChromaRenderer(testTheme(), tc.opts...)
			renderer.SetFormatter("noop")

			result, err := renderer.RenderContent("key: value", 80)
			require.NoError(t, err)

			plain := ansi.Strip(result)
			assert.Contains(t, plain, tc.want)
			assert.Contains(t, plain, "key: value")
		})
	}
}

func TestChromaRenderer_Wrapping(t *testing.T) {
	t.Parallel()

	renderer := render.NewChromaRenderer(testTheme(), render.WithoutLineNumbers())
	renderer.SetFormatter("noop")

	longLine := "key: " + strings.Repeat("value ", 20)

	result, err := renderer.RenderContent(longLine, 20)
	require.NoError(t, err)
	assert.Greater(t, len(strings.Split(result, "\n")), 1)

	// Width zero disables wrapping.
	result, err = renderer.RenderContent(longLine, 0)
	require.NoError(t, err)
	assert.Len(t, strings.Split(result, "\n"), 1)
}

func TestChromaRenderer_SetError(t *testing.T) {
	t.Parallel()

	content := "name: test\nbad: [\nother: value"

	renderer := render.NewChromaRenderer(testTheme(), render.WithoutLineNumbers())
	renderer.SetFormatter("noop")
	renderer.SetError(1, 0, 1, 6)

	result, err := renderer.RenderContent(content, 0)
	require.NoError(t, err)

	// The error overlay must not alter the text itself.
	assert.Equal(t, content, ansi.Strip(result))
}

func TestChromaRenderer_WithLexer(t *testing.T) {
	t.Parallel()

	renderer := render.NewChromaRenderer(testTheme(),
		render.WithoutLineNumbers(),
		render.WithLexer("JSON"),
	)
	renderer.SetFormatter("noop")

	result, err := renderer.RenderContent(`{"key": "value"}`, 80)
	require.NoError(t, err)
	assert.Contains(t, ansi.Strip(result), `{"key": "value"}`)
}
