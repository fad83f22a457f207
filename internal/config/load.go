package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/xdg/bastion/internal/clog"
	"github.com/xdg/bastion/internal/pathutil"
)

var log = clog.For("config")

// LoadGlobalConfig loads the global configuration from the default config path.
// If the config file doesn't exist, it writes the default file and returns
// DefaultGlobalConfig(). If the file exists but cannot be read, parsed or
// validated, it returns an error.
// All paths containing ~ are expanded to the actual home directory.
func LoadGlobalConfig() (*GlobalConfig, error) {
	path := GlobalConfigPath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.Debug("%s not found, creating defaults", path)
		if writeErr := WriteDefaultConfig(); writeErr != nil {
			log.Warn("failed to create default config: %v", writeErr)
		}
	}
	return LoadGlobalConfigFrom(path)
}

// LoadGlobalConfigFrom loads the global configuration from path. A missing
// file yields DefaultGlobalConfig().
func LoadGlobalConfigFrom(path string) (*GlobalConfig, error) {
	log.Debug("loading global config from %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := DefaultGlobalConfig()
			expandGlobalPaths(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read global config: %w", err)
	}

	cfg, err := ParseGlobalConfig(data)
	if err != nil {
		return nil, fmt.Errorf("load global config %s: %w", path, err)
	}
	if err := ValidateGlobalConfig(cfg); err != nil {
		return nil, fmt.Errorf("load global config %s: %w", path, err)
	}

	expandGlobalPaths(cfg)
	return cfg, nil
}

// LoadProjectConfig loads the project configuration under root.
// If the config file doesn't exist, it returns DefaultProjectConfig().
func LoadProjectConfig(root string) (*ProjectConfig, error) {
	path := ProjectConfigPath(root)
	log.Debug("loading project config from %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultProjectConfig(), nil
		}
		return nil, fmt.Errorf("read project config: %w", err)
	}

	cfg, err := ParseProjectConfig(data)
	if err != nil {
		return nil, fmt.Errorf("load project config %s: %w", path, err)
	}
	if err := ValidateProjectConfig(cfg); err != nil {
		return nil, fmt.Errorf("load project config %s: %w", path, err)
	}
	return cfg, nil
}

// expandGlobalPaths expands ~ to the home directory in all path fields
// of the global configuration.
func expandGlobalPaths(cfg *GlobalConfig) {
	cfg.Log.File = pathutil.ExpandHome(cfg.Log.File)
	cfg.Audit.File = pathutil.ExpandHome(cfg.Audit.File)
	cfg.History.Path = pathutil.ExpandHome(cfg.History.Path)
	cfg.Diagnostics.Dir = pathutil.ExpandHome(cfg.Diagnostics.Dir)
	cfg.Shell.Program = pathutil.ExpandHome(cfg.Shell.Program)
	for i, d := range cfg.Commands.Dirs {
		cfg.Commands.Dirs[i] = pathutil.ExpandHome(d)
	}
}
