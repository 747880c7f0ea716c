package types

import "errors"

// Config holds backend selection and file locations for a relgraph store.
type Config struct {
	Backend     string `json:"backend" yaml:"backend" mapstructure:"backend"`
	DataDir     string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`
	MappingFile string `json:"mapping_file" yaml:"mapping_file" mapstructure:"mapping_file"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Config validation errors.
var (
	ErrBackendEmpty     = errors.New("backend must not be empty")
	ErrBackendUnknown   = errors.New("unknown backend")
	ErrMappingFileEmpty = errors.New("mapping file must not be empty")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite: true,
	BackendBadger: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure. An empty DataDir is valid here; the badger
// backend treats it as an in-memory store.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if c.MappingFile == "" {
		return ErrMappingFileEmpty
	}
	return nil
}
