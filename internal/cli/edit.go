// This file implements the create, add, remove and delete commands.

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/relgraph/internal/endpoint"
	"github.com/mesh-intelligence/relgraph/pkg/relgraph"
	"github.com/mesh-intelligence/relgraph/pkg/types"
)

// editScope opens the graph, runs edit in a fresh scope and saves it.
func editScope(cmd *cobra.Command, edit func(g *relgraph.Graph, scope *endpoint.Manager) error) error {
	g, err := openGraph(cmd)
	if err != nil {
		return err
	}
	defer g.Close()

	scope, err := g.NewScope()
	if err != nil {
		return err
	}
	if err := edit(g, scope); err != nil {
		return err
	}
	if err := g.Save(scope); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

func newCreateCmd() *cobra.Command {
	var owner, property string
	cmd := &cobra.Command{
		Use:   "create <class>",
		Short: "Create an object",
		Long:  "Create an object of class and print its id. With --owner and --property the object is added to that collection.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (owner == "") != (property == "") {
				return fmt.Errorf("--owner and --property go together: %w", errUsage)
			}
			var created types.ObjectID
			err := editScope(cmd, func(g *relgraph.Graph, scope *endpoint.Manager) error {
				id, err := scope.NewObject(args[0])
				if err != nil {
					return err
				}
				created = id
				if owner == "" {
					return nil
				}
				ownerID, err := parseID(owner)
				if err != nil {
					return err
				}
				c, err := scope.Collection(ownerID, property)
				if err != nil {
					return err
				}
				return c.Add(id)
			})
			if err != nil {
				return err
			}
			if flags.jsonMode {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"id": created.String()})
			}
			fmt.Fprintln(cmd.OutOrStdout(), created)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "object whose collection receives the new object")
	cmd.Flags().StringVar(&property, "property", "", "collection property of --owner, e.g. Customer.Orders")
	return cmd
}

func newAddCmd() *cobra.Command {
	var index int
	cmd := &cobra.Command{
		Use:   "add <owner> <property> <item>",
		Short: "Add an object to a collection",
		Long:  "Add item to owner's collection. The item leaves the collection it was in before.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, item, err := parseOwnerAndItem(args)
			if err != nil {
				return err
			}
			err = editScope(cmd, func(_ *relgraph.Graph, scope *endpoint.Manager) error {
				c, err := scope.Collection(owner, args[1])
				if err != nil {
					return err
				}
				if index < 0 {
					return c.Add(item)
				}
				return c.Insert(index, item)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s to %s/%s\n", item, owner, args[1])
			return nil
		},
	}
	cmd.Flags().IntVar(&index, "at", -1, "insert position (default: append)")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <owner> <property> <item>",
		Short: "Remove an object from a collection",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, item, err := parseOwnerAndItem(args)
			if err != nil {
				return err
			}
			err = editScope(cmd, func(_ *relgraph.Graph, scope *endpoint.Manager) error {
				c, err := scope.Collection(owner, args[1])
				if err != nil {
					return err
				}
				removed, err := c.Remove(item)
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("%s in %s/%s: %w", item, owner, args[1], types.ErrObjectNotInCollection)
				}
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s from %s/%s\n", item, owner, args[1])
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an object",
		Long:  "Delete an object. Objects that pointed at it lose that foreign key.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			err = editScope(cmd, func(_ *relgraph.Graph, scope *endpoint.Manager) error {
				return scope.Delete(id)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			return nil
		},
	}
}

func parseOwnerAndItem(args []string) (types.ObjectID, types.ObjectID, error) {
	owner, err := parseID(args[0])
	if err != nil {
		return types.ObjectID{}, types.ObjectID{}, err
	}
	item, err := parseID(args[2])
	if err != nil {
		return types.ObjectID{}, types.ObjectID{}, err
	}
	return owner, item, nil
}
