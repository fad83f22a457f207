package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xdg/bastion/internal/commands"
	"github.com/xdg/bastion/internal/config"
	"github.com/xdg/bastion/internal/term"
)

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "Inspect custom commands",
	Long: `Inspect the custom commands available in the current directory.

Commands are loaded from ~/.config/bastion/commands, then the directories in
commands.dirs, then .bastion/commands. A later directory replaces a command
of the same name from an earlier one.`,
}

var commandsListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List custom commands",
	Aliases: []string{"ls"},
	Args:    cobra.NoArgs,
	RunE:    runCommandsList,
}

var commandsShowCmd = &cobra.Command{
	Use:   "show <command>",
	Short: "Print a custom command's prompt template",
	Args:  cobra.ExactArgs(1),
	RunE:  runCommandsShow,
}

func init() {
	rootCmd.AddCommand(commandsCmd)
	commandsCmd.AddCommand(commandsListCmd)
	commandsCmd.AddCommand(commandsShowCmd)
}

func commandLoader() (*commands.Loader, error) {
	cfg, err := config.LoadGlobalConfig()
	if err != nil {
		return nil, err
	}
	root, err := projectRoot(context.Background())
	if err != nil {
		return nil, err
	}
	return commands.NewLoader(config.CommandDirs(cfg, root)...), nil
}

func runCommandsList(cmd *cobra.Command, args []string) error {
	loader, err := commandLoader()
	if err != nil {
		return err
	}
	cmds, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load commands: %w", err)
	}
	printCommands(term.Stdout(), cmds)
	return nil
}

// printCommands writes cmds as a table.
func printCommands(w io.Writer, cmds []*commands.Command) {
	if len(cmds) == 0 {
		fmt.Fprintln(w, "No custom commands found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDESCRIPTION\tPATH")
	for _, c := range cmds {
		fmt.Fprintf(tw, "/%s\t%s\t%s\n", c.Name, c.Description, c.Path)
	}
	_ = tw.Flush()
}

func runCommandsShow(cmd *cobra.Command, args []string) error {
	loader, err := commandLoader()
	if err != nil {
		return err
	}
	c, err := loader.Find(args[0])
	if errors.Is(err, commands.ErrNotFound) {
		return fmt.Errorf("unknown command %q", args[0])
	}
	if err != nil {
		return err
	}
	term.Printf("# %s\n# %s\n\n%s\n", c.Path, c.Description, c.Prompt)
	return nil
}
