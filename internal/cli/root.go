// Package cli implements the relgraph command-line interface.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/relgraph/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
	verbose   bool
}

var flags rootFlags

// NewRootCmd creates the top-level "relgraph" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "relgraph",
		Short: "Inspect and edit a relation graph",
		Long: "relgraph keeps objects and their one-to-many relations in a local store.\n" +
			"Relations are declared in a mapping file; edits are tracked and saved together.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "project directory (default: $(CWD)/.relgraph)")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "store directory (default: <config-dir>/data)")
	root.PersistentFlags().BoolVar(&flags.jsonMode, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log end-point activity to stderr")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", errUsage, err)
	})

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newSeedCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newShowCmd())
	root.AddCommand(newCreateCmd())
	root.AddCommand(newAddCmd())
	root.AddCommand(newRemoveCmd())
	root.AddCommand(newDeleteCmd())

	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "relgraph:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to exitUserError when the input was at fault and
// exitSysError otherwise.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case errors.Is(err, types.ErrNotFound),
		errors.Is(err, types.ErrInvalidID),
		errors.Is(err, types.ErrUnknownProperty),
		errors.Is(err, types.ErrInvalidMapping),
		errors.Is(err, types.ErrSyncRequired),
		errors.Is(err, types.ErrDuplicateObject),
		errors.Is(err, types.ErrObjectNotInCollection),
		errors.Is(err, types.ErrItemClassMismatch),
		errors.Is(err, types.ErrBackendUnknown),
		errors.Is(err, errUsage):
		return exitUserError
	default:
		return exitSysError
	}
}

// errUsage marks malformed command input.
var errUsage = errors.New("invalid usage")

// newLogger returns the logger for a command run. Without --verbose only
// warnings reach stderr.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if flags.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
