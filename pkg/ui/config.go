package ui

import (
	"github.com/macropower/dotup/pkg/keys"
)

// Config contains TUI-specific configuration.
type Config struct {
	// KeyBinds override the default key bindings.
	KeyBinds *KeyBinds `json:"keybinds,omitempty" jsonschema:"title=Key Bindings"`
	// Theme sets the color theme for the TUI and diff output.
	Theme string `json:"theme,omitempty" jsonschema:"title=Theme"`
	// Compact shows one line per package in the picker.
	Compact bool `json:"compact,omitempty" jsonschema:"title=Compact"`
}

// DefaultConfig carries the built-in TUI defaults.
var DefaultConfig = NewConfig()

func NewConfig() *Config {
	c := &Config{}
	c.EnsureDefaults()

	return c
}

func (c *Config) EnsureDefaults() {
	if c.KeyBinds == nil {
		c.KeyBinds = NewKeyBinds()
	} else {
		c.KeyBinds.EnsureDefaults()
	}
}

func (c *Config) Validate() error {
	return c.KeyBinds.Validate()
}

// KeyBinds groups key bindings by view.
type KeyBinds struct {
	Common   *CommonKeyBinds   `json:"common,omitempty" jsonschema:"title=Common"`
	Picker   *PickerKeyBinds   `json:"picker,omitempty" jsonschema:"title=Picker"`
	Progress *ProgressKeyBinds `json:"progress,omitempty" jsonschema:"title=Progress"`
}

func NewKeyBinds() *KeyBinds {
	kb := &KeyBinds{}
	kb.EnsureDefaults()

	return kb
}

func (kb *KeyBinds) EnsureDefaults() {
	if kb.Common == nil {
		kb.Common = &CommonKeyBinds{}
	}
	if kb.Picker == nil {
		kb.Picker = &PickerKeyBinds{}
	}
	if kb.Progress == nil {
		kb.Progress = &ProgressKeyBinds{}
	}

	kb.Common.EnsureDefaults()
	kb.Picker.EnsureDefaults()
	kb.Progress.EnsureDefaults()
}

// Validate reports key codes bound to more than one action within a view.
func (kb *KeyBinds) Validate() error {
	err := keys.ValidateBinds(
		kb.Common.GetKeyBinds(),
		kb.Picker.GetKeyBinds(),
	)
	if err != nil {
		return err //nolint:wrapcheck // Errors name the duplicate key.
	}

	err = keys.ValidateBinds(
		kb.Common.GetKeyBinds(),
		kb.Progress.GetKeyBinds(),
	)
	if err != nil {
		return err //nolint:wrapcheck // Errors name the duplicate key.
	}

	return nil
}

// CommonKeyBinds apply in every view.
type CommonKeyBinds struct {
	Quit *keys.KeyBind `json:"quit,omitempty" jsonschema:"title=Quit"`
	Help *keys.KeyBind `json:"help,omitempty" jsonschema:"title=Help"`
	Up   *keys.KeyBind `json:"up,omitempty"   jsonschema:"title=Up"`
	Down *keys.KeyBind `json:"down,omitempty" jsonschema:"title=Down"`
}

func (kb *CommonKeyBinds) EnsureDefaults() {
	keys.SetDefaultBind(&kb.Quit, keys.NewBind("quit", keys.New("q")))
	// Always ensure that ctrl+c is bound to quit.
	kb.Quit.AddKey(keys.New("ctrl+c", keys.WithAlias("⌃c"), keys.Hidden()))

	keys.SetDefaultBind(&kb.Help,
		keys.NewBind("toggle help",
			keys.New("?"),
		))
	keys.SetDefaultBind(&kb.Up,
		keys.NewBind("move up",
			keys.New("up", keys.WithAlias("↑")),
			keys.New("k"),
		))
	keys.SetDefaultBind(&kb.Down,
		keys.NewBind("move down",
			keys.New("down", keys.WithAlias("↓")),
			keys.New("j"),
		))
}

func (kb *CommonKeyBinds) GetKeyBinds() []keys.KeyBind {
	return []keys.KeyBind{
		*kb.Quit,
		*kb.Help,
		*kb.Up,
		*kb.Down,
	}
}

// PickerKeyBinds apply in the package picker.
type PickerKeyBinds struct {
	Toggle  *keys.KeyBind `json:"toggle,omitempty"  jsonschema:"title=Toggle"`
	All     *keys.KeyBind `json:"all,omitempty"     jsonschema:"title=Select All"`
	None    *keys.KeyBind `json:"none,omitempty"    jsonschema:"title=Select None"`
	Confirm *keys.KeyBind `json:"confirm,omitempty" jsonschema:"title=Confirm"`
	Filter  *keys.KeyBind `json:"filter,omitempty"  jsonschema:"title=Filter"`
}

func (kb *PickerKeyBinds) EnsureDefaults() {
	keys.SetDefaultBind(&kb.Toggle,
		keys.NewBind("toggle package",
			keys.New(" ", keys.WithAlias("␣")),
		))
	keys.SetDefaultBind(&kb.All,
		keys.NewBind("select all",
			keys.New("a"),
		))
	keys.SetDefaultBind(&kb.None,
		keys.NewBind("select none",
			keys.New("A"),
		))
	keys.SetDefaultBind(&kb.Confirm,
		keys.NewBind("run update",
			keys.New("enter", keys.WithAlias("↵")),
		))
	keys.SetDefaultBind(&kb.Filter,
		keys.NewBind("filter",
			keys.New("/"),
		))
}

func (kb *PickerKeyBinds) GetKeyBinds() []keys.KeyBind {
	return []keys.KeyBind{
		*kb.Toggle,
		*kb.All,
		*kb.None,
		*kb.Confirm,
		*kb.Filter,
	}
}

// ProgressKeyBinds apply while a run is in flight or finished.
type ProgressKeyBinds struct {
	CopyLogPath *keys.KeyBind `json:"copyLogPath,omitempty" jsonschema:"title=Copy Log Path"`
}

func (kb *ProgressKeyBinds) EnsureDefaults() {
	keys.SetDefaultBind(&kb.CopyLogPath,
		keys.NewBind("copy log path",
			keys.New("c"),
		))
}

func (kb *ProgressKeyBinds) GetKeyBinds() []keys.KeyBind {
	return []keys.KeyBind{
		*kb.CopyLogPath,
	}
}
