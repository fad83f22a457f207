package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xdg/bastion/internal/pathutil"
)

// ProjectDirName is the per-project directory holding config.yaml and
// commands/.
const ProjectDirName = ".bastion"

// Dir returns the bastion configuration directory path.
// By default, this is ~/.config/bastion/. If the XDG_CONFIG_HOME
// environment variable is set, it uses $XDG_CONFIG_HOME/bastion/ instead.
// The returned path always has a trailing slash.
func Dir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = "~/.config"
	}
	return pathutil.ExpandHome(base) + "/bastion/"
}

// EnsureDir creates the bastion configuration directory if it
// doesn't exist. It uses 0700 permissions for security (user-only access).
// Returns nil if the directory already exists or was successfully created.
func EnsureDir() error {
	if err := os.MkdirAll(Dir(), 0o700); err != nil {
		return fmt.Errorf("ensure config dir: %w", err)
	}
	return nil
}

// GlobalConfigPath returns the full path to the global configuration file.
// This is Dir() + "config.yaml".
func GlobalConfigPath() string {
	return Dir() + "config.yaml"
}

// CommandsDir returns the user custom command directory, Dir() + "commands".
func CommandsDir() string {
	return Dir() + "commands"
}

// ProjectDir returns the project configuration directory under root.
func ProjectDir(root string) string {
	return filepath.Join(root, ProjectDirName)
}

// ProjectConfigPath returns the project configuration file under root.
func ProjectConfigPath(root string) string {
	return filepath.Join(ProjectDir(root), "config.yaml")
}

// ProjectCommandsDir returns the project custom command directory under root.
func ProjectCommandsDir(root string) string {
	return filepath.Join(ProjectDir(root), "commands")
}

// CommandDirs returns the custom command search path in precedence order,
// lowest first: the user directory, the configured extra directories and
// the project directory under root. Later directories win on name clashes.
func CommandDirs(cfg *GlobalConfig, root string) []string {
	dirs := []string{CommandsDir()}
	for _, d := range cfg.Commands.Dirs {
		dirs = append(dirs, pathutil.ExpandHome(d))
	}
	if root != "" {
		dirs = append(dirs, ProjectCommandsDir(root))
	}
	return dirs
}
