package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/mesh-intelligence/relgraph/pkg/types"
)

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// parseID parses a "Class|Value" argument.
func parseID(arg string) (types.ObjectID, error) {
	id, err := types.ParseObjectID(arg)
	if err != nil {
		return types.ObjectID{}, err
	}
	if id.IsZero() {
		return types.ObjectID{}, fmt.Errorf("object id %q: %w", arg, types.ErrInvalidID)
	}
	return id, nil
}

func idStrings(ids []types.ObjectID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
