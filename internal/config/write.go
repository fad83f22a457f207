package config

import (
	"errors"
	"fmt"
	"os"
)

// WriteDefaultConfig creates the default global configuration file with helpful comments.
// If the config file already exists, it returns nil without overwriting.
// The config directory is created if it doesn't exist.
// The file is written with 0600 permissions (user read/write only).
func WriteDefaultConfig() error {
	path := GlobalConfigPath()

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat config file: %w", err)
	}

	if err := EnsureDir(); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0o600); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

// ResetGlobalConfig replaces the global configuration file with the
// commented default.
func ResetGlobalConfig() error {
	if err := EnsureDir(); err != nil {
		return err
	}
	if err := os.WriteFile(GlobalConfigPath(), []byte(defaultConfigTemplate), 0o600); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

// WriteGlobalConfig writes a global configuration to GlobalConfigPath(),
// replacing any existing file. The config directory is created if it
// doesn't exist.
func WriteGlobalConfig(cfg *GlobalConfig) error {
	if err := EnsureDir(); err != nil {
		return err
	}
	data, err := MarshalGlobalConfig(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(GlobalConfigPath(), data, 0o600); err != nil {
		return fmt.Errorf("write global config: %w", err)
	}
	return nil
}

// InitProjectConfig creates an empty project configuration and command
// directory under root. An existing config file is left untouched.
// It returns the config path.
func InitProjectConfig(root string) (string, error) {
	path := ProjectConfigPath(root)
	if err := os.MkdirAll(ProjectCommandsDir(root), 0o755); err != nil {
		return "", fmt.Errorf("create project dir: %w", err)
	}

	_, err := os.Stat(path)
	if err == nil {
		return path, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("stat project config file: %w", err)
	}

	data, err := MarshalProjectConfig(DefaultProjectConfig())
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write project config: %w", err)
	}
	return path, nil
}
