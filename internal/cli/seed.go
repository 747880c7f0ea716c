package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/relgraph/pkg/types"
)

// seedFile is the YAML layout read by the seed command.
//
//	objects:
//	  - id: Customer|c1
//	  - id: Order|o1
//	    foreign_keys:
//	      Order.Customer: Customer|c1
type seedFile struct {
	Objects []seedObject `yaml:"objects"`
}

type seedObject struct {
	ID          string            `yaml:"id"`
	ForeignKeys map[string]string `yaml:"foreign_keys"`
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Load objects from a YAML seed file",
		Long:  "Insert the objects of a seed file that are not stored yet, with their foreign keys.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open seed file: %w", err)
			}
			defer f.Close()

			g, err := openGraph(cmd)
			if err != nil {
				return err
			}
			defer g.Close()

			records, err := readSeed(f, g.Mapping())
			if err != nil {
				return fmt.Errorf("seed file %q: %w", args[0], err)
			}
			n, err := g.Store().Seed(records)
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			if flags.jsonMode {
				return writeJSON(cmd.OutOrStdout(), map[string]int{"seeded": n, "skipped": len(records) - n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d objects (%d already stored)\n", n, len(records)-n)
			return nil
		},
	}
}

// readSeed decodes a seed file and checks every object and foreign key
// against m.
func readSeed(r io.Reader, m *types.Mapping) ([]types.ObjectRecord, error) {
	var file seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decoding seed yaml: %w", err)
	}

	records := make([]types.ObjectRecord, 0, len(file.Objects))
	for _, obj := range file.Objects {
		id, err := parseID(obj.ID)
		if err != nil {
			return nil, err
		}
		if !m.HasClass(id.Class) {
			return nil, fmt.Errorf("object %s: class %q is not mapped: %w", id, id.Class, types.ErrInvalidMapping)
		}
		record := types.ObjectRecord{ID: id, ForeignKeys: make(map[string]types.ObjectID, len(obj.ForeignKeys))}
		for property, raw := range obj.ForeignKeys {
			def, err := m.EndPoint(property)
			if err != nil {
				return nil, fmt.Errorf("object %s: %w", id, err)
			}
			if def.Class != id.Class || def.IsCollection() {
				return nil, fmt.Errorf("object %s: %s is not a foreign key of %s: %w", id, property, id.Class, types.ErrUnknownProperty)
			}
			related, err := types.ParseObjectID(raw)
			if err != nil {
				return nil, fmt.Errorf("object %s: %w", id, err)
			}
			if !related.IsZero() && related.Class != def.OppositeClass {
				return nil, fmt.Errorf("object %s: %s must point at a %s, got %s: %w",
					id, property, def.OppositeClass, related, types.ErrItemClassMismatch)
			}
			record.ForeignKeys[property] = related
		}
		records = append(records, record)
	}
	return records, nil
}
