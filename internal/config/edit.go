package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// EditGlobalConfig opens the global configuration file in the user's editor.
// If the configuration file doesn't exist, it creates the default one first.
// After the editor exits, the configuration is loaded and validated. If
// validation fails, a warning is logged but the function returns nil: the
// user may want to fix the file later.
func EditGlobalConfig() error {
	path := GlobalConfigPath()

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := WriteDefaultConfig(); err != nil {
			return fmt.Errorf("create default config: %w", err)
		}
	}

	if err := openEditor(path); err != nil {
		return err
	}

	if _, err := LoadGlobalConfigFrom(path); err != nil {
		log.Warn("global config has errors after edit: %v", err)
	}
	return nil
}

// openEditor opens the specified file in the user's editor.
// The editor is determined by VISUAL, then EDITOR, falling back to "vi".
func openEditor(path string) error {
	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	cmd := exec.Command(editor, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("editor %q failed: %w", editor, err)
	}
	return nil
}
