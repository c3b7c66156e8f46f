package shell_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/dotup/pkg/shell"
)

func TestHook(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		shell        shell.Shell
		wantContains []string
		wantErr      bool
	}{
		"bash sets PS1 through PROMPT_COMMAND": {
			shell: shell.Bash,
			wantContains: []string{
				`PS1="$(dotup prompt path)> "`,
				"PROMPT_COMMAND",
				`*";__dotup_prompt;"*`,
			},
		},
		"zsh registers a precmd hook": {
			shell: shell.Zsh,
			wantContains: []string{
				`PROMPT="$(dotup prompt path)> "`,
				"add-zsh-hook precmd __dotup_prompt",
			},
		},
		"fish overrides fish_prompt": {
			shell: shell.Fish,
			wantContains: []string{
				"function fish_prompt",
				"(dotup prompt path)",
				"end",
			},
		},
		"unknown shell": {
			shell:   shell.Shell("pwsh"),
			wantErr: true,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := shell.Hook(tc.shell)
			if tc.wantErr {
				require.ErrorIs(t, err, shell.ErrUnknownShell)

				return
			}

			require.NoError(t, err)
			for _, want := range tc.wantContains {
				assert.Contains(t, got, want)
			}
		})
	}
}

func TestHookMatchesBlock(t *testing.T) {
	t.Parallel()

	// The rc block evaluates `dotup prompt hook <shell>`, so every shell with
	// a block needs a hook.
	for _, s := range shell.Shells() {
		block, err := shell.Block(s)
		require.NoError(t, err)
		assert.Contains(t, block, "dotup prompt hook "+s.String())

		hook, err := shell.Hook(s)
		require.NoError(t, err)
		assert.NotEmpty(t, strings.TrimSpace(hook))
	}
}
