package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xdg/bastion/internal/config"
	"github.com/xdg/bastion/internal/prompt"
	"github.com/xdg/bastion/internal/term"
)

var (
	configInitProject bool
	configInitForce   bool
)

// overwritePrompter asks before --force replaces a config file. Nil means
// stdin when it is a terminal.
var overwritePrompter prompt.YesNoPrompter

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage global configuration",
	Long: `Manage bastion's global configuration.

The global configuration file is stored at ~/.config/bastion/config.yaml
(or $XDG_CONFIG_HOME/bastion/config.yaml if XDG_CONFIG_HOME is set).
A project may add policy entries in .bastion/config.yaml.

Use the subcommands to view, edit, or initialize the configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective global config",
	Long: `Print the effective global configuration as YAML.

If no config file exists, shows the default configuration.`,
	RunE: runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit global config in $EDITOR",
	Long: `Open the global configuration file in your editor.

The editor is determined by the VISUAL or EDITOR environment variable,
falling back to vi. If the configuration file doesn't exist, a default one
is created first.`,
	RunE: runConfigEdit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print config file path",
	Long:  `Print the path to the global configuration file.`,
	Run:   runConfigPath,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default config file",
	Long: `Create the default global configuration file if it doesn't exist.

This creates a fully-commented configuration file with all default values.
If the file already exists, this command does nothing unless --force is
given, which asks before replacing it. With --project, the .bastion
directory of the current project is created instead.`,
	RunE: runConfigInit,
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitProject, "project", false, "initialize .bastion/ in the current project")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "replace an existing config file with the defaults")
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadGlobalConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	data, err := config.MarshalGlobalConfig(cfg)
	if err != nil {
		return err
	}

	term.Print(string(data))
	return nil
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	if err := config.EditGlobalConfig(); err != nil {
		return fmt.Errorf("failed to edit config: %w", err)
	}
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) {
	term.Println(config.GlobalConfigPath())
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if configInitProject {
		root, err := projectRoot(cmd.Context())
		if err != nil {
			return err
		}
		path, err := config.InitProjectConfig(root)
		if err != nil {
			return fmt.Errorf("failed to create project config: %w", err)
		}
		term.Printf("Project config at: %s\n", path)
		term.Printf("Project commands in: %s\n", config.ProjectCommandsDir(root))
		return nil
	}

	path := config.GlobalConfigPath()
	if configInitForce {
		_, err := os.Stat(path)
		if err == nil {
			return replaceConfig(path)
		}
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	if err := config.WriteDefaultConfig(); err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}
	term.Printf("Created default config at: %s\n", path)
	return nil
}

func replaceConfig(path string) error {
	p := overwritePrompter
	if p == nil && interactive() {
		p = prompt.NewStdinYesNoPrompter(os.Stdin, os.Stderr)
	}
	if p != nil {
		ok, err := p.PromptYesNo(fmt.Sprintf("Overwrite existing config at %s?", path), false)
		if err != nil {
			return err
		}
		if !ok {
			term.Println("Config left unchanged.")
			return nil
		}
	}
	if err := config.ResetGlobalConfig(); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	term.Printf("Replaced config at: %s\n", path)
	return nil
}
