package journal

import (
	"errors"
	"fmt"

	"github.com/macropower/dotup/pkg/yaml"
)

// ErrInvalidKeep is returned when the retention count is negative.
var ErrInvalidKeep = errors.New("invalid retention count")

// Config defines transcript retention and journal placement.
type Config struct {
	// Dir overrides the state directory holding transcripts and the history
	// index. Defaults to the dotup state directory. Supports a leading ~.
	Dir string `json:"dir,omitempty" jsonschema:"title=Directory"`
	// Keep is how many transcripts are retained per run kind.
	Keep int `json:"keep,omitempty" jsonschema:"title=Keep,minimum=1"`
}

func (c *Config) EnsureDefaults() {
	if c.Keep == 0 {
		c.Keep = DefaultKeep
	}
}

func (c *Config) Validate() error {
	if c.Keep < 0 {
		pb := yaml.NewPathBuilder()

		return yaml.NewError(
			fmt.Errorf("%w: %d", ErrInvalidKeep, c.Keep),
			yaml.WithPath(pb.Root().Child("logs").Child("keep").Build()),
		)
	}

	return nil
}
