package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"

	"github.com/mesh-intelligence/relgraph/internal/paths"
	"github.com/mesh-intelligence/relgraph/pkg/relgraph"
	"github.com/mesh-intelligence/relgraph/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"

	cfgKeyBackend     = "backend"
	cfgKeyDataDir     = "data_dir"
	cfgKeyMappingFile = "mapping_file"

	defaultBackend = types.BackendSQLite
)

// defaultConfigYAML is written by init when config.yaml is missing.
const defaultConfigYAML = `# relgraph project configuration

# Store backend: sqlite or badger
backend: %s

# Store directory, relative to this directory (default: data)
# data_dir: data

# Mapping file, relative to this directory (default: mapping.yaml)
# mapping_file: mapping.yaml
`

// defaultMappingYAML is written by init when mapping.yaml is missing.
const defaultMappingYAML = `# Classes and one-to-many relations.
#
# relations:
#   - name: customer_orders
#     class: Order              # holds the foreign key
#     property: Customer
#     opposite_class: Customer  # holds the collection
#     opposite_property: Orders
#     change_detection: set     # or ordered
#     sort_by: id               # optional load order
classes: []
relations: []
`

// loadConfig reads config.yaml from configDir. A missing file yields the
// defaults.
func loadConfig(configDir string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(cfgKeyBackend, defaultBackend)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// resolveConfig builds the store configuration from flags, config.yaml and
// the environment.
func resolveConfig() (types.Config, error) {
	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return types.Config{}, fmt.Errorf("resolve config dir: %w", err)
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return types.Config{}, err
	}
	dataDir, err := paths.ResolveDataDir(flags.dataDir, v.GetString(cfgKeyDataDir), configDir)
	if err != nil {
		return types.Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	mappingFile, err := paths.ResolveMappingFile(v.GetString(cfgKeyMappingFile), configDir)
	if err != nil {
		return types.Config{}, fmt.Errorf("resolve mapping file: %w", err)
	}
	return types.Config{
		Backend:     v.GetString(cfgKeyBackend),
		DataDir:     dataDir,
		MappingFile: mappingFile,
	}, nil
}

// openGraph resolves the configuration and opens the graph. The caller must
// Close it.
func openGraph(cmd *cobra.Command) (*relgraph.Graph, error) {
	cfg, err := resolveConfig()
	if err != nil {
		return nil, err
	}
	g, err := relgraph.Open(cfg,
		relgraph.WithLogger(newLogger(cmd.ErrOrStderr())),
		relgraph.WithMeterProvider(otel.GetMeterProvider()),
	)
	if err != nil {
		return nil, fmt.Errorf("open graph: %w", err)
	}
	return g, nil
}

// writeFileIfMissing creates path with content unless it exists. It
// reports whether it wrote the file.
func writeFileIfMissing(path, content string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return false, nil
	}
	if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, err
	}
	return true, nil
}
