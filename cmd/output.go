package cmd

import (
	"encoding/json"
	"io"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/reactive/internal/errors"
)

// outputFormat is the value of the --output flag.
type outputFormat string

const (
	formatText outputFormat = "text"
	formatJSON outputFormat = "json"
	formatYAML outputFormat = "yaml"
)

var _ pflag.Value = (*outputFormat)(nil)

func (f *outputFormat) String() string { return string(*f) }

func (f *outputFormat) Set(s string) error {
	switch outputFormat(s) {
	case formatText, formatJSON, formatYAML:
		*f = outputFormat(s)
		return nil
	}
	return errors.NewValidationError(errors.ErrCodeValidationFailed, "unsupported output format "+s+" (supported: text, json, yaml)")
}

func (f *outputFormat) Type() string { return "format" }

// render writes v in the selected format. text renders the text form.
func render(w io.Writer, format outputFormat, v any, text func(io.Writer) error) error {
	switch format {
	case formatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case formatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(v); err != nil {
			return err
		}
		return encoder.Close()
	}
	return text(w)
}
