package shell

import (
	"fmt"
)

// bashHook guards against PROMPT_COMMAND picking up the function twice when
// the rc file is sourced again.
const bashHook = `__dotup_prompt() {
  PS1="$(dotup prompt path)> "
}
case ";${PROMPT_COMMAND};" in
  *";__dotup_prompt;"*) ;;
  *) PROMPT_COMMAND="__dotup_prompt${PROMPT_COMMAND:+;${PROMPT_COMMAND}}" ;;
esac`

// zshHook relies on add-zsh-hook, which deduplicates registrations itself.
const zshHook = `__dotup_prompt() {
  PROMPT="$(dotup prompt path)> "
}
autoload -Uz add-zsh-hook
add-zsh-hook precmd __dotup_prompt`

const fishHook = `function fish_prompt
  printf '%s> ' (dotup prompt path)
end`

// Hook returns the script the managed rc block evaluates. It rewires the
// shell's prompt to render the working directory through `dotup prompt path`.
func Hook(s Shell) (string, error) {
	switch s {
	case Bash:
		return bashHook, nil
	case Zsh:
		return zshHook, nil
	case Fish:
		return fishHook, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownShell, s)
	}
}
