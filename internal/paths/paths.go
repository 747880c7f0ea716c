// Package paths resolves the relgraph project directory and the files in it.
//
// A project keeps everything under one directory (".relgraph" in the working
// directory by default): config.yaml, the mapping file, and the store data.
package paths

import (
	"os"
	"path/filepath"
)

// Default names inside the project.
const (
	DefaultConfigDirName = ".relgraph"
	DefaultDataDirName   = "data"
	ConfigFileName       = "config.yaml"
	MappingFileName      = "mapping.yaml"
)

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "RELGRAPH_CONFIG_DIR"
	EnvDataDir   = "RELGRAPH_DATA_DIR"
)

// getwd can be overridden in tests.
var getwd = os.Getwd

// ResolveConfigDir returns the project directory following the precedence
// chain: flag > RELGRAPH_CONFIG_DIR > $(CWD)/.relgraph.
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	cwd, err := getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultConfigDirName), nil
}

// ResolveDataDir returns the store directory following the precedence chain:
// flag > config value > RELGRAPH_DATA_DIR > configDir/data. A relative config
// value is taken relative to configDir.
func ResolveDataDir(flag, configValue, configDir string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if configValue != "" {
		return resolveIn(configDir, configValue)
	}
	if env := os.Getenv(EnvDataDir); env != "" {
		return filepath.Abs(env)
	}
	return filepath.Join(configDir, DefaultDataDirName), nil
}

// ResolveMappingFile returns the mapping file path. An empty value selects
// mapping.yaml in configDir; relative values are taken relative to configDir.
func ResolveMappingFile(configValue, configDir string) (string, error) {
	if configValue == "" {
		return filepath.Join(configDir, MappingFileName), nil
	}
	return resolveIn(configDir, configValue)
}

func resolveIn(dir, p string) (string, error) {
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	return filepath.Abs(filepath.Join(dir, p))
}
