package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/ia319/nola/internal/services"
)

// Options carries per-task transcription parameters. Fields left at their
// zero value fall back to the daemon configuration.
type Options struct {
	Language       string `json:"language,omitempty"`
	ModelSize      string `json:"model_size,omitempty"`
	Device         string `json:"device,omitempty"`
	ComputeType    string `json:"compute_type,omitempty"`
	BeamSize       int    `json:"beam_size,omitempty"`
	WordTimestamps bool   `json:"word_timestamps,omitempty"`
	VADFilter      bool   `json:"vad_filter,omitempty"`
	InitialPrompt  string `json:"initial_prompt,omitempty"`
}

var validModelSizes = map[string]struct{}{
	"tiny": {}, "base": {}, "small": {}, "medium": {}, "large-v3": {},
}

// ParseOptions decodes a task's options document. An empty document yields
// zero options. Unknown fields are rejected so a typo surfaces at enqueue
// time instead of silently falling back to defaults.
func ParseOptions(optionsJSON string) (Options, error) {
	var opts Options
	trimmed := strings.TrimSpace(optionsJSON)
	if trimmed == "" {
		return opts, nil
	}
	decoder := json.NewDecoder(strings.NewReader(trimmed))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&opts); err != nil {
		return Options{}, services.Wrap(services.ErrValidation, "engine", "parse-options", "invalid options document", err)
	}
	return opts, opts.Validate()
}

// Validate checks field values and canonicalizes the language tag.
func (o *Options) Validate() error {
	if o.Language != "" {
		tag, err := language.Parse(o.Language)
		if err != nil {
			return services.Wrap(services.ErrValidation, "engine", "parse-options",
				fmt.Sprintf("unrecognized language tag %q", o.Language), err)
		}
		base, _ := tag.Base()
		o.Language = base.String()
	}
	if o.ModelSize != "" {
		if _, ok := validModelSizes[o.ModelSize]; !ok {
			return services.Wrap(services.ErrValidation, "engine", "parse-options",
				fmt.Sprintf("unknown model size %q", o.ModelSize), nil)
		}
	}
	switch o.Device {
	case "", "auto", "cpu", "cuda":
	default:
		return services.Wrap(services.ErrValidation, "engine", "parse-options",
			fmt.Sprintf("unknown device %q", o.Device), nil)
	}
	switch o.ComputeType {
	case "", "default", "float16", "int8":
	default:
		return services.Wrap(services.ErrValidation, "engine", "parse-options",
			fmt.Sprintf("unknown compute type %q", o.ComputeType), nil)
	}
	if o.BeamSize < 0 || o.BeamSize > 10 {
		return services.Wrap(services.ErrValidation, "engine", "parse-options",
			fmt.Sprintf("beam size %d out of range [0, 10]", o.BeamSize), nil)
	}
	return nil
}
