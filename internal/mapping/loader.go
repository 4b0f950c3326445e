// Package mapping loads field-mapping presets from YAML files, so a dataset's
// column names can be kept next to the dataset instead of on the command line.
//
// A preset looks like:
//
//	user_field: question
//	chosen_field: answer_zh
//	reject_field: answer_en
//	system_text: You are a helpful assistant.
//	default_rejected: 我不知道
package mapping

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MikeSquared-Agency/dpoconv/internal/record"
)

// Preset is the on-disk form of a field mapping.
type Preset struct {
	UserField       string `yaml:"user_field"`
	ChosenField     string `yaml:"chosen_field"`
	RejectField     string `yaml:"reject_field"`
	SystemText      string `yaml:"system_text"`
	DefaultRejected string `yaml:"default_rejected"`
}

// LoadFile loads and parses a YAML preset from the given path.
func LoadFile(path string) (*Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses YAML data into a Preset. Unknown keys are an error.
func Parse(data []byte) (*Preset, error) {
	var p Preset

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse mapping YAML: %w", err)
	}

	p.UserField = strings.TrimSpace(p.UserField)
	p.ChosenField = strings.TrimSpace(p.ChosenField)
	p.RejectField = strings.TrimSpace(p.RejectField)

	return &p, nil
}

// Mapping converts the preset into the normalizer configuration.
func (p *Preset) Mapping() record.Mapping {
	return record.Mapping{
		UserField:       p.UserField,
		ChosenField:     p.ChosenField,
		RejectField:     p.RejectField,
		SystemText:      p.SystemText,
		DefaultRejected: p.DefaultRejected,
	}
}

// FromMapping is the inverse of Preset.Mapping.
func FromMapping(m record.Mapping) *Preset {
	return &Preset{
		UserField:       m.UserField,
		ChosenField:     m.ChosenField,
		RejectField:     m.RejectField,
		SystemText:      m.SystemText,
		DefaultRejected: m.DefaultRejected,
	}
}

// Marshal serializes a Preset to YAML.
func Marshal(p *Preset) ([]byte, error) {
	return yaml.Marshal(p)
}
