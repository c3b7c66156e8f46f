package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/invopop/jsonschema"

	_ "embed"

	"github.com/macropower/dotup/pkg/dotfiles"
	"github.com/macropower/dotup/pkg/journal"
	"github.com/macropower/dotup/pkg/prompt"
	"github.com/macropower/dotup/pkg/ui"
	"github.com/macropower/dotup/pkg/ui/theme"
	"github.com/macropower/dotup/pkg/updater"
	"github.com/macropower/dotup/pkg/yaml"
)

//go:generate go run ../../internal/schemagen/main.go -o config.v1beta1.json

// LocalName is the machine-local overlay loaded from the main configuration's
// directory. Overlay managers and rules merge into the shared configuration;
// other overlay sections replace their shared counterparts.
const LocalName = "config.local.yaml"

var (
	//go:embed config.yaml
	defaultConfigYAML []byte

	//go:embed config.v1beta1.json
	schemaJSON []byte

	ValidAPIVersions = []string{
		"dotup.jacobcolvin.com/v1beta1",
	}
	ValidKinds = []string{
		"Configuration",
	}

	DefaultValidator = yaml.MustNewValidator("/config.v1beta1.json", schemaJSON)
)

// Config represents the dotup configuration.
//
//nolint:recvcheck // Must satisfy the jsonschema interface.
type Config struct {
	Updater *updater.Config `json:",inline"`
	// Dotfiles describes the dotfile entries to deploy.
	Dotfiles *dotfiles.Source `json:"dotfiles,omitempty" jsonschema:"title=Dotfiles"`
	// Logs configures run transcript placement and retention.
	Logs *journal.Config `json:"logs,omitempty" jsonschema:"title=Logs"`
	// Prompt configures prompt path rendering.
	Prompt *prompt.Config `json:"prompt,omitempty" jsonschema:"title=Prompt"`
	// UI contains TUI-specific configuration.
	UI *ui.Config `json:"ui,omitempty" jsonschema:"title=UI"`
	// APIVersion specifies the API version for this configuration.
	APIVersion string `json:"apiVersion" jsonschema:"title=API Version"`
	// Kind defines the type of configuration.
	Kind string `json:"kind" jsonschema:"title=Kind"`
}

func NewConfig() *Config {
	c := &Config{
		APIVersion: "dotup.jacobcolvin.com/v1beta1",
		Kind:       "Configuration",
	}
	c.EnsureDefaults()

	return c
}

func (c *Config) EnsureDefaults() {
	if c.Updater == nil {
		c.Updater = updater.DefaultConfig
	} else {
		c.Updater.EnsureDefaults()
	}

	if c.Dotfiles == nil {
		c.Dotfiles = &dotfiles.Source{}
	}
	c.Dotfiles.EnsureDefaults()

	if c.Logs == nil {
		c.Logs = &journal.Config{}
	}
	c.Logs.EnsureDefaults()

	if c.Prompt == nil {
		c.Prompt = &prompt.Config{}
	}
	c.Prompt.EnsureDefaults()

	if c.UI == nil {
		c.UI = ui.DefaultConfig
	} else {
		c.UI.EnsureDefaults()
	}
}

// Merge overlays a machine-local config onto this one. Managers and rules
// merge entry-wise; other sections are replaced wholesale when the overlay
// provides them.
func (c *Config) Merge(overlay *Config) {
	if overlay == nil {
		return
	}

	if c.Updater == nil {
		c.Updater = overlay.Updater
	} else {
		c.Updater.Merge(overlay.Updater)
	}

	if overlay.Dotfiles != nil {
		c.Dotfiles = overlay.Dotfiles
	}
	if overlay.Logs != nil {
		c.Logs = overlay.Logs
	}
	if overlay.Prompt != nil {
		c.Prompt = overlay.Prompt
	}
	if overlay.UI != nil {
		c.UI = overlay.UI
	}
}

// Validate runs Go-level validation over all sections, for requirements that
// cannot be represented in the JSON schema.
//
//nolint:wrapcheck // Section errors carry their own YAML paths.
func (c *Config) Validate() error {
	if c.Updater != nil {
		err := c.Updater.Validate()
		if err != nil {
			return err
		}
	}

	if c.Dotfiles != nil {
		err := c.Dotfiles.Validate()
		if err != nil {
			return err
		}
	}

	if c.Logs != nil {
		err := c.Logs.Validate()
		if err != nil {
			return err
		}
	}

	if c.Prompt != nil {
		err := c.Prompt.Validate()
		if err != nil {
			return err
		}
	}

	if c.UI != nil {
		err := c.UI.Validate()
		if err != nil {
			pb := yaml.NewPathBuilder()

			return yaml.NewError(err,
				yaml.WithPath(pb.Root().Child("ui").Child("keybinds").Build()),
			)
		}
	}

	return nil
}

func (c Config) JSONSchemaExtend(jss *jsonschema.Schema) {
	apiVersion, ok := jss.Properties.Get("apiVersion")
	if !ok {
		panic("apiVersion property not found in schema")
	}

	for _, version := range ValidAPIVersions {
		apiVersion.OneOf = append(apiVersion.OneOf, &jsonschema.Schema{
			Type:  "string",
			Const: version,
			Title: "API Version",
		})
	}

	_, _ = jss.Properties.Set("apiVersion", apiVersion)

	kind, ok := jss.Properties.Get("kind")
	if !ok {
		panic("kind property not found in schema")
	}

	for _, kindValue := range ValidKinds {
		kind.OneOf = append(kind.OneOf, &jsonschema.Schema{
			Type:  "string",
			Const: kindValue,
			Title: "Kind",
		})
	}

	_, _ = jss.Properties.Set("kind", kind)
}

func (c Config) MarshalYAML() ([]byte, error) {
	type alias Config

	b, err := yaml.Marshal(alias(c))
	if err != nil {
		return nil, fmt.Errorf("marshal yaml: %w", err)
	}

	return b, nil
}

// Write writes the config to the specified path if it doesn't already exist.
func (c Config) Write(path string) error {
	pathInfo, err := os.Stat(path)
	if pathInfo != nil {
		if err == nil && pathInfo.Mode().IsRegular() {
			return nil // Config already exists.
		}
		if pathInfo.IsDir() {
			return fmt.Errorf("%s: path is a directory", path)
		}

		return fmt.Errorf("%s: unknown file state", path)
	}

	err = os.MkdirAll(filepath.Dir(path), 0o700)
	if err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	b, err := c.MarshalYAML()
	if err != nil {
		return err
	}

	err = os.WriteFile(path, b, 0o600)
	if err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return nil
}

type ConfigValidator interface {
	Validate(data any) error
}

type ConfigLoader struct {
	cv        ConfigValidator
	theme     *theme.Theme
	yamlError *yaml.ErrorWrapper
	data      []byte
}

func NewConfigLoaderFromBytes(data []byte, opts ...ConfigLoaderOpt) *ConfigLoader {
	cl := &ConfigLoader{
		cv:    DefaultValidator,
		theme: theme.Default,
		data:  data,
	}
	for _, opt := range opts {
		opt(cl)
	}

	cl.yamlError = yaml.NewErrorWrapper(
		yaml.WithTheme(cl.theme),
		yaml.WithSource(cl.data),
		yaml.WithSourceLines(4),
	)

	return cl
}

func NewConfigLoaderFromFile(path string, opts ...ConfigLoaderOpt) (*ConfigLoader, error) {
	data, err := readConfig(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return NewConfigLoaderFromBytes(data, opts...), nil
}

type ConfigLoaderOpt func(*ConfigLoader)

func WithConfigValidator(cv ConfigValidator) ConfigLoaderOpt {
	return func(cl *ConfigLoader) {
		cl.cv = cv
	}
}

// WithThemeFromData extracts the theme from the config data, so that error
// output is styled even when the config itself does not load.
func WithThemeFromData() ConfigLoaderOpt {
	return func(cl *ConfigLoader) {
		cl.theme = getTheme(cl.data)
	}
}

// Validate validates configuration data with [ConfigValidator] without loading
// it into a [Config] struct.
func (cl *ConfigLoader) Validate() error {
	// Decode into interface{} for initial validation.
	var anyConfig any

	dec := yaml.NewDecoder(bytes.NewReader(cl.data))
	err := dec.Decode(&anyConfig)
	if err != nil {
		return cl.yamlError.Wrap(err)
	}

	err = cl.cv.Validate(anyConfig)
	if err != nil {
		return cl.yamlError.Wrap(err)
	}

	return nil
}

// Load parses the configuration, applies defaults, and runs Go validation.
func (cl *ConfigLoader) Load() (*Config, error) {
	c, err := cl.decode()
	if err != nil {
		return nil, err
	}

	c.EnsureDefaults()

	// Run Go validation on the config (for requirements that can't be represented in the schema).
	err = c.Validate()
	if err != nil {
		return nil, cl.yamlError.Wrap(err)
	}

	return c, nil
}

// LoadOverlay parses the configuration without applying defaults, so that
// absent sections stay absent. Used for machine-local overlay files, which
// are validated after merging.
func (cl *ConfigLoader) LoadOverlay() (*Config, error) {
	return cl.decode()
}

func (cl *ConfigLoader) decode() (*Config, error) {
	c := &Config{}

	dec := yaml.NewDecoder(bytes.NewReader(cl.data))
	err := dec.Decode(c)
	if err != nil {
		return nil, cl.yamlError.Wrap(err)
	}

	return c, nil
}

func (cl *ConfigLoader) GetTheme() *theme.Theme {
	return cl.theme
}

// LoadPath loads the configuration at path, overlaying a sibling
// config.local.yaml when one exists.
func LoadPath(path string) (*Config, error) {
	cl, err := NewConfigLoaderFromFile(path, WithThemeFromData())
	if err != nil {
		return nil, err
	}

	err = cl.Validate()
	if err != nil {
		return nil, err
	}

	cfg, err := cl.Load()
	if err != nil {
		return nil, err
	}

	localPath := LocalPath(path)

	lcl, err := NewConfigLoaderFromFile(localPath, WithThemeFromData())
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("local config: %w", err)
	}

	err = lcl.Validate()
	if err != nil {
		return nil, fmt.Errorf("local config: %w", err)
	}

	overlay, err := lcl.LoadOverlay()
	if err != nil {
		return nil, fmt.Errorf("local config: %w", err)
	}

	cfg.Merge(overlay)
	cfg.EnsureDefaults()

	// Cross-references like rule manager names are only checkable after the
	// merge, so the merged config is validated as a whole.
	err = cfg.Validate()
	if err != nil {
		return nil, lcl.yamlError.Wrap(err)
	}

	slog.Debug("merged machine-local configuration",
		slog.String("path", localPath),
	)

	return cfg, nil
}

// WriteDefaultConfig writes the embedded default config.yaml and jsonschema to
// the specified path.
func WriteDefaultConfig(path string, force bool) error {
	configExists := false
	pathInfo, err := os.Stat(path)
	if pathInfo != nil {
		switch {
		case err == nil && pathInfo.Mode().IsRegular():
			configExists = true
		case pathInfo.IsDir():
			return fmt.Errorf("%s: path is a directory", path)
		default:
			return fmt.Errorf("%s: unknown file state", path)
		}
	}

	err = os.MkdirAll(filepath.Dir(path), 0o700)
	if err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	if configExists && force {
		// Move the existing file to a backup.
		backupFile := fmt.Sprintf("%s.%d.old", filepath.Base(path), time.Now().UnixNano())
		backupPath := filepath.Join(filepath.Dir(path), backupFile)
		slog.Info("backing up existing config file",
			slog.String("path", backupPath),
		)

		err = os.Rename(path, backupPath)
		if err != nil {
			return fmt.Errorf("rename existing config file to backup: %w", err)
		}

		configExists = false
	}

	// Write the default config file.
	if !configExists {
		slog.Info("write default configuration",
			slog.String("path", path),
		)

		err = os.WriteFile(path, defaultConfigYAML, 0o600)
		if err != nil {
			return fmt.Errorf("write config file: %w", err)
		}
	} else {
		slog.Debug("configuration file already exists, skipping write",
			slog.String("path", path),
		)
	}

	// Write the JSON schema file alongside the config file.
	schemaPath := filepath.Join(filepath.Dir(path), "config.v1beta1.json")
	slog.Debug("write JSON schema",
		slog.String("path", schemaPath),
	)

	err = os.WriteFile(schemaPath, schemaJSON, 0o600)
	if err != nil {
		return fmt.Errorf("write schema file: %w", err)
	}

	return nil
}

func GetPath() string {
	if xdgHome, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && xdgHome != "" {
		return filepath.Join(xdgHome, "dotup", "config.yaml")
	}

	usrHome, err := os.UserHomeDir()
	if err == nil && usrHome != "" {
		return filepath.Join(usrHome, ".config", "dotup", "config.yaml")
	}

	tmpConfig := filepath.Join(os.TempDir(), "dotup", "config.yaml")

	slog.Warn("could not determine user config directory, using temp path for config",
		slog.String("path", tmpConfig),
		slog.Any("error", fmt.Errorf("$XDG_CONFIG_HOME is unset, fall back to home directory: %w", err)),
	)

	return tmpConfig
}

// LocalPath returns the machine-local overlay path for a config path.
func LocalPath(path string) string {
	return filepath.Join(filepath.Dir(path), LocalName)
}

func readConfig(path string) ([]byte, error) {
	pathInfo, err := os.Stat(path)
	if pathInfo != nil {
		if err == nil && pathInfo.IsDir() {
			return nil, fmt.Errorf("%s: path is a directory", path)
		}
		if err == nil && !pathInfo.Mode().IsRegular() {
			return nil, fmt.Errorf("%s: unknown file state", path)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: Potential file inclusion via variable.
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return data, nil
}

func getTheme(data []byte) *theme.Theme {
	var themeName string

	path := yaml.NewPathBuilder().Root().Child("ui").Child("theme").Build()
	err := path.Read(bytes.NewReader(data), &themeName)
	if err == nil {
		return theme.New(themeName)
	}

	slog.Debug("could not read theme, config might be invalid")

	// As a last-ditch effort, try to get the theme using regex.
	// This is a fallback if the config is malformed or missing the theme.
	themeName = extractThemeWithRegex(data)
	if themeName != "" {
		slog.Debug("extracted theme using regex fallback", slog.String("theme", themeName))

		return theme.New(themeName)
	}

	return theme.Default
}

var (
	// uiSectionRe captures the indented body of a top-level ui: block.
	uiSectionRe = regexp.MustCompile(`(?m)^ui:\s*$((?:\n[ \t]+.*)*)`)
	// themeValueRe captures a quoted or unquoted theme value within it.
	themeValueRe = regexp.MustCompile(`\n[ \t]+theme:\s*(?:"([^"#\n]+)"|'([^'#\n]+)'|([^\s#\n]+))`)
)

// extractThemeWithRegex pulls the theme name out of YAML that may not parse.
func extractThemeWithRegex(data []byte) string {
	uiMatches := uiSectionRe.FindStringSubmatch(string(data))
	if len(uiMatches) < 2 {
		return ""
	}

	themeMatches := themeValueRe.FindStringSubmatch(uiMatches[1])
	if len(themeMatches) < 4 {
		return ""
	}

	// The value is in whichever capture group matched.
	for i := 1; i < 4; i++ {
		if themeMatches[i] != "" {
			return strings.TrimSpace(themeMatches[i])
		}
	}

	return ""
}
