package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/relgraph/pkg/relgraph"
)

const modulePath = "github.com/mesh-intelligence/relgraph"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the relgraph version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "relgraph v%s\nmodule: %s\n", relgraph.Version, modulePath)
			return nil
		},
	}
}
