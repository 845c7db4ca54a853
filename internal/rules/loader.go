package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Veraticus/saffron/internal/common"
	"gopkg.in/yaml.v3"
)

// LoadTables reads rule tables from a YAML file.
func LoadTables(path string) (*Tables, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied rules file
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}
	t, err := ParseTables(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules file %s: %w", path, err)
	}
	return t, nil
}

// ParseTables decodes YAML rule tables. Unknown keys are rejected.
func ParseTables(data []byte) (*Tables, error) {
	var spec Spec
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	return New(spec)
}

// MarshalYAML encodes the tables in the format ParseTables reads.
func (t *Tables) MarshalYAML() (any, error) {
	return t.Spec(), nil
}
