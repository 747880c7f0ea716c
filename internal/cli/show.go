package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/relgraph/internal/endpoint"
	"github.com/mesh-intelligence/relgraph/pkg/types"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [class]",
		Short: "List stored objects",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := openGraph(cmd)
			if err != nil {
				return err
			}
			defer g.Close()

			class := ""
			if len(args) == 1 {
				class = args[0]
				if !g.Mapping().HasClass(class) {
					return fmt.Errorf("class %q is not mapped: %w", class, types.ErrInvalidMapping)
				}
			}
			ids, err := g.Store().ListObjects(class)
			if err != nil {
				return fmt.Errorf("list: %w", err)
			}
			if flags.jsonMode {
				return writeJSON(cmd.OutOrStdout(), idStrings(ids))
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

// objectView is the JSON form of show.
type objectView struct {
	ID          string              `json:"id"`
	ForeignKeys map[string]string   `json:"foreign_keys"`
	Collections map[string][]string `json:"collections"`
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Display an object with its relations",
		Long:  "Display an object, the objects its foreign keys point at, and the contents of its collections.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			g, err := openGraph(cmd)
			if err != nil {
				return err
			}
			defer g.Close()

			scope, err := g.NewScope()
			if err != nil {
				return err
			}
			view, err := describe(scope, id)
			if err != nil {
				return err
			}
			if flags.jsonMode {
				return writeJSON(cmd.OutOrStdout(), view)
			}
			printView(cmd, scope.Mapping(), view)
			return nil
		},
	}
}

// describe reads every end-point of id.
func describe(scope *endpoint.Manager, id types.ObjectID) (objectView, error) {
	if err := scope.EnsureObject(id); err != nil {
		return objectView{}, err
	}
	view := objectView{
		ID:          id.String(),
		ForeignKeys: map[string]string{},
		Collections: map[string][]string{},
	}
	for _, def := range scope.Mapping().EndPointsOf(id.Class) {
		if def.IsCollection() {
			c, err := scope.Collection(id, def.Property())
			if err != nil {
				return objectView{}, err
			}
			ids, err := c.IDs()
			if err != nil {
				return objectView{}, fmt.Errorf("loading %s: %w", def.Property(), err)
			}
			view.Collections[def.Property()] = idStrings(ids)
			continue
		}
		related, err := scope.Related(id, def.Property())
		if err != nil {
			return objectView{}, err
		}
		view.ForeignKeys[def.Property()] = related.String()
	}
	return view, nil
}

func printView(cmd *cobra.Command, m *types.Mapping, view objectView) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, view.ID)
	class, _, _ := strings.Cut(view.ID, "|")
	for _, def := range m.EndPointsOf(class) {
		if def.IsCollection() {
			items := view.Collections[def.Property()]
			fmt.Fprintf(w, "  %s (%d):", def.Name, len(items))
			if len(items) == 0 {
				fmt.Fprintln(w, " -")
				continue
			}
			fmt.Fprintln(w)
			for _, item := range items {
				fmt.Fprintf(w, "    %s\n", item)
			}
			continue
		}
		fmt.Fprintf(w, "  %s: %s\n", def.Name, view.ForeignKeys[def.Property()])
	}
}
