package yaml

import (
	"bytes"
	"io"

	"github.com/goccy/go-yaml"
)

// DefaultEncoderOptions are applied to every encoder created by this package.
var DefaultEncoderOptions = []yaml.EncodeOption{
	yaml.Indent(2),
	yaml.IndentSequence(true),
}

type Encoder struct {
	e *yaml.Encoder
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		e: yaml.NewEncoder(w, DefaultEncoderOptions...),
	}
}

func (e *Encoder) Encode(v any) error {
	return e.e.Encode(v) //nolint:wrapcheck // Return the original error.
}

func (e *Encoder) Close() error {
	return e.e.Close() //nolint:wrapcheck // Return the original error.
}

// Marshal encodes v with the package encoder options.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer

	e := NewEncoder(&buf)
	if err := e.Encode(v); err != nil {
		return nil, err
	}
	if err := e.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
