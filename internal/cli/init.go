package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/relgraph/internal/paths"
	"github.com/mesh-intelligence/relgraph/pkg/types"
)

func newInitCmd() *cobra.Command {
	var backend string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a relgraph project",
		Long: "Create the project directory with config.yaml and mapping.yaml, then\n" +
			"initialize the store. Existing files are left untouched.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, backend)
		},
	}
	cmd.Flags().StringVar(&backend, "backend", defaultBackend, "store backend for a new config.yaml (sqlite or badger)")
	return cmd
}

func runInit(cmd *cobra.Command, backend string) error {
	if err := (types.Config{Backend: backend, MappingFile: paths.MappingFileName}).Validate(); err != nil {
		return fmt.Errorf("backend %q: %w", backend, err)
	}

	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := writeFileIfMissing(filepath.Join(configDir, paths.ConfigFileName), fmt.Sprintf(defaultConfigYAML, backend)); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	cfg, err := resolveConfig()
	if err != nil {
		return err
	}
	if _, err := writeFileIfMissing(cfg.MappingFile, defaultMappingYAML); err != nil {
		return fmt.Errorf("write mapping: %w", err)
	}

	g, err := openGraph(cmd)
	if err != nil {
		return err
	}
	if err := g.Close(); err != nil {
		return fmt.Errorf("finalize storage: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "relgraph initialized in %s (%s)\n", configDir, cfg.Backend)
	return nil
}
