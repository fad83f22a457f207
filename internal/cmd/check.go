package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xdg/bastion/internal/config"
	"github.com/xdg/bastion/internal/permission"
	"github.com/xdg/bastion/internal/shellparse"
	"github.com/xdg/bastion/internal/term"
)

var checkCmd = &cobra.Command{
	Use:   "check <command>",
	Short: "Show how the policy treats a shell command",
	Long: `Evaluate a shell command against the effective policy without running it.

Both modes are shown: default-deny applies to !{...} commands in custom
command templates, default-allow to commands the model asks to run.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadGlobalConfig()
	if err != nil {
		return err
	}
	root, err := projectRoot(cmd.Context())
	if err != nil {
		return err
	}
	project, err := config.LoadProjectConfig(root)
	if err != nil {
		return err
	}
	decisions, err := config.LoadDecisions()
	if err != nil {
		return err
	}

	printCheck(term.Stdout(), strings.Join(args, " "), config.Policy(cfg, project, decisions))
	return nil
}

// printCheck writes the command's sub-commands and roots followed by the
// decision in each mode.
func printCheck(w io.Writer, command string, policy permission.Policy) {
	inner := shellparse.StripShellWrapper(command)
	fmt.Fprintf(w, "Commands: %s\n", strings.Join(shellparse.SplitCommands(inner), " | "))
	fmt.Fprintf(w, "Roots:    %s\n", strings.Join(shellparse.CommandRoots(inner), ", "))
	for _, mode := range []permission.Mode{permission.ModeDefaultDeny, permission.ModeDefaultAllow} {
		d := permission.Check(command, policy, mode, nil)
		fmt.Fprintf(w, "%-14s %s\n", mode.String()+":", describeDecision(d))
	}
}

func describeDecision(d permission.Decision) string {
	switch {
	case d.AllAllowed:
		return "allowed"
	case d.IsHardDenial:
		return "blocked (" + d.BlockReason + ")"
	default:
		return "needs approval for " + strings.Join(d.DisallowedCommands, ", ")
	}
}
