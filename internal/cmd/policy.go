package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xdg/bastion/internal/config"
	"github.com/xdg/bastion/internal/permission"
	"github.com/xdg/bastion/internal/term"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage saved shell command decisions",
	Long: `Manage shell command decisions saved outside the config file.

Saved entries are stored in ~/.config/bastion/decisions.yaml and added to
the allow and deny lists from config.yaml and .bastion/config.yaml. Entries
are command prefixes such as "git" or "npm test".`,
}

var policyAllowCmd = &cobra.Command{
	Use:   "allow <command prefix>",
	Short: "Always allow a command",
	Args:  cobra.MinimumNArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return updateDecision(strings.Join(args, " "), true) },
}

var policyDenyCmd = &cobra.Command{
	Use:   "deny <command prefix>",
	Short: "Always deny a command",
	Args:  cobra.MinimumNArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return updateDecision(strings.Join(args, " "), false) },
}

var policyRemoveCmd = &cobra.Command{
	Use:     "remove <command prefix>",
	Short:   "Remove a saved decision",
	Aliases: []string{"rm"},
	Args:    cobra.MinimumNArgs(1),
	RunE:    runPolicyRemove,
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective policy",
	Args:  cobra.NoArgs,
	RunE:  runPolicyShow,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyAllowCmd)
	policyCmd.AddCommand(policyDenyCmd)
	policyCmd.AddCommand(policyRemoveCmd)
	policyCmd.AddCommand(policyShowCmd)
}

func updateDecision(entry string, allow bool) error {
	if err := config.ValidateProjectConfig(&config.ProjectConfig{Tools: config.ProjectToolsConfig{Allow: []string{entry}}}); err != nil {
		return fmt.Errorf("invalid entry: %w", err)
	}
	d, err := config.LoadDecisions()
	if err != nil {
		return err
	}
	verb := "denied"
	if allow {
		verb = "allowed"
	}
	if !d.Add(entry, allow) {
		term.Printf("%q is already %s\n", entry, verb)
		return nil
	}
	if err := config.WriteDecisions(d); err != nil {
		return fmt.Errorf("failed to save decisions: %w", err)
	}
	term.Printf("%q is now %s\n", entry, verb)
	return nil
}

func runPolicyRemove(cmd *cobra.Command, args []string) error {
	entry := strings.Join(args, " ")
	d, err := config.LoadDecisions()
	if err != nil {
		return err
	}
	if !d.Remove(entry) {
		return fmt.Errorf("no saved decision for %q", entry)
	}
	if err := config.WriteDecisions(d); err != nil {
		return fmt.Errorf("failed to save decisions: %w", err)
	}
	term.Printf("Removed %q\n", entry)
	return nil
}

func runPolicyShow(cmd *cobra.Command, args []string) error {
	root, err := projectRoot(cmd.Context())
	if err != nil {
		return err
	}
	p, err := config.LoadPolicy(config.GlobalConfigPath(), root)
	if err != nil {
		return err
	}
	printPolicy(term.Stdout(), p)
	return nil
}

// printPolicy writes the effective policy.
func printPolicy(w io.Writer, p permission.Policy) {
	list := func(entries []string) string {
		if len(entries) == 0 {
			return "(none)"
		}
		return strings.Join(entries, ", ")
	}
	fmt.Fprintf(w, "allow:          %s\n", list(p.Allow))
	fmt.Fprintf(w, "deny:           %s\n", list(p.Deny))
	fmt.Fprintf(w, "strict:         %v\n", p.Strict)
	fmt.Fprintf(w, "shell_disabled: %v\n", p.ShellDisabled)
}
