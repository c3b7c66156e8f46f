package schema_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/dotup/pkg/journal"
	"github.com/macropower/dotup/pkg/manager"
	"github.com/macropower/dotup/pkg/prompt"
	"github.com/macropower/dotup/pkg/schema"
)

type inner struct {
	Name  string `json:"name"`
	Level int    `json:"level,omitempty"`
}

type outer struct {
	Inner *inner `json:",inline"`
	Kind  string `json:"kind"`
}

// Config references two identically named section types.
type Config struct {
	Journal *journal.Config `json:"journal,omitempty"`
	Prompt  *prompt.Config  `json:"prompt,omitempty"`
}

func generate(t *testing.T, obj any, pkgs ...string) map[string]any {
	t.Helper()

	b, err := schema.NewGenerator(obj, pkgs...).Generate()
	require.NoError(t, err)

	var doc map[string]any

	err = json.Unmarshal(b, &doc)
	require.NoError(t, err)

	return doc
}

func defs(t *testing.T, doc map[string]any) map[string]any {
	t.Helper()

	d, ok := doc["$defs"].(map[string]any)
	require.True(t, ok, "schema must have $defs")

	return d
}

func TestGenerator_Generate_FlattensInlineFields(t *testing.T) {
	t.Parallel()

	doc := generate(t, &outer{})

	assert.Equal(t, "#/$defs/outer", doc["$ref"])

	d := defs(t, doc)
	require.Contains(t, d, "outer")
	assert.NotContains(t, d, "inner", "inline definition must be merged away")

	root, ok := d["outer"].(map[string]any)
	require.True(t, ok)

	props, ok := root["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "name")
	assert.Contains(t, props, "level")
	assert.Contains(t, props, "kind")
	assert.NotContains(t, props, "Inner")

	assert.Equal(t, []any{"name", "kind"}, root["required"])
}

func TestGenerator_Generate_DisambiguatesConfigNames(t *testing.T) {
	t.Parallel()

	doc := generate(t, &Config{})

	d := defs(t, doc)
	require.Contains(t, d, "Config")
	assert.Contains(t, d, "JournalConfig")
	assert.Contains(t, d, "PromptConfig")

	root, ok := d["Config"].(map[string]any)
	require.True(t, ok)

	props, ok := root["properties"].(map[string]any)
	require.True(t, ok)

	logs, ok := props["journal"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "#/$defs/JournalConfig", logs["$ref"])
}

func TestGenerator_Generate_AddsDocComments(t *testing.T) {
	t.Parallel()

	doc := generate(t, &manager.Manager{},
		"github.com/macropower/dotup/pkg/manager",
		"github.com/macropower/dotup/pkg/execs",
	)

	assert.Equal(t, "https://github.com/macropower/dotup/pkg/manager/manager", doc["$id"])

	d := defs(t, doc)

	mgr, ok := d["Manager"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Manager represents one package manager.", mgr["description"])

	parser, ok := d["Parser"].(map[string]any)
	require.True(t, ok)

	props, ok := parser["properties"].(map[string]any)
	require.True(t, ok)

	pattern, ok := props["pattern"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "regex", pattern["format"])
}

func TestGenerator_Generate_RejectsForeignPackages(t *testing.T) {
	t.Parallel()

	_, err := schema.NewGenerator(&outer{}, "github.com/other/module/pkg/thing").Generate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside module")
}
