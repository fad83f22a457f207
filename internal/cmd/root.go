// Package cmd implements the CLI commands for bastion.
package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/xdg/bastion/internal/clog"
	"github.com/xdg/bastion/internal/term"
	"github.com/xdg/bastion/internal/version"
)

var (
	debugFlag  bool
	silentFlag bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "bastion",
	Short: "Gemini agent runtime with guarded shell access",
	Long: `Bastion runs Gemini agent sessions that can execute shell commands on
your machine under a permission policy.

Custom commands are prompt templates stored as .toml files. Templates may
embed !{...} shell commands whose output is spliced into the prompt; these
need approval unless the policy allows them. Commands the model asks to run
are checked against the same policy, and destructive ones can be denied
outright.`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		term.SetSilent(silentFlag)
		level := clog.LevelWarn
		if debugFlag {
			level = clog.LevelDebug
		}
		clog.SetLevel(level)
		clog.RedirectStdLog(clog.LevelDebug)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "log debug output to stderr and the log file")
	rootCmd.PersistentFlags().BoolVar(&silentFlag, "silent", false, "suppress normal output; warnings and errors still print")
}

// Execute runs the root command and returns any error. Errors other than a
// bare *ExitCodeError are printed to stderr before returning.
func Execute() error {
	err := rootCmd.Execute()
	if err == nil {
		return nil
	}
	var exitErr *ExitCodeError
	if !errors.As(err, &exitErr) || exitErr.Err != nil {
		term.Error("%v", err)
	}
	return err
}
