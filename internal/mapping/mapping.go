// Package mapping reads relation mappings from YAML files.
//
// Example:
//
//	classes:
//	  - Customer
//	  - Order
//	relations:
//	  - name: customer_orders
//	    class: Order
//	    property: Customer
//	    opposite_class: Customer
//	    opposite_property: Orders
//	    change_detection: ordered
package mapping

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/relgraph/pkg/types"
)

// File is the top-level structure of a mapping file.
type File struct {
	Classes   []string                   `yaml:"classes"`
	Relations []types.RelationDefinition `yaml:"relations"`
}

// LoadFile reads and validates the mapping file at path.
func LoadFile(path string) (*types.Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening mapping file %q: %w", path, err)
	}
	defer f.Close()

	m, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("mapping file %q: %w", path, err)
	}
	return m, nil
}

// Load parses mapping YAML from r and builds the validated mapping.
// Unknown keys are rejected.
func Load(r io.Reader) (*types.Mapping, error) {
	file, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return file.Mapping()
}

// Decode parses mapping YAML without validating it.
func Decode(r io.Reader) (*File, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty mapping: %w", types.ErrInvalidMapping)
		}
		return nil, fmt.Errorf("decoding mapping yaml: %w", err)
	}
	return &file, nil
}

// Mapping validates the file contents.
func (f *File) Mapping() (*types.Mapping, error) {
	return types.NewMapping(f.Classes, f.Relations)
}

// Write encodes f as YAML.
func (f *File) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encoding mapping yaml: %w", err)
	}
	return enc.Close()
}

// FromMapping returns the file form of m, with defaults filled in.
func FromMapping(m *types.Mapping) *File {
	return &File{Classes: m.Classes(), Relations: m.Relations()}
}
