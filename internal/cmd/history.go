package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xdg/bastion/internal/config"
	"github.com/xdg/bastion/internal/history"
	"github.com/xdg/bastion/internal/term"
)

var (
	historyLimit   int
	historySession string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show executed shell commands",
	Long: `Show shell commands run by bastion, most recent first.

Commands from custom command templates, the model's shell tool and
'bastion exec' are all recorded unless history.enabled is false.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of entries to show")
	historyCmd.Flags().StringVar(&historySession, "session", "", "only show commands from this session")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadGlobalConfig()
	if err != nil {
		return err
	}
	path := cfg.History.Path
	if path == "" {
		path = history.DefaultPath()
	}
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	var entries []history.Entry
	if historySession != "" {
		entries, err = store.Session(cmd.Context(), historySession)
	} else {
		entries, err = store.Recent(cmd.Context(), historyLimit)
	}
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	printHistory(term.Stdout(), entries)
	return nil
}

// printHistory writes entries as a table.
func printHistory(w io.Writer, entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No commands recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSOURCE\tSTATUS\tDURATION\tCOMMAND")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.StartedAt.Local().Format(time.DateTime),
			e.Source,
			entryStatus(e),
			e.Duration.Round(time.Millisecond),
			e.Command,
		)
	}
	_ = tw.Flush()
}

func entryStatus(e history.Entry) string {
	switch {
	case e.Error != "":
		return "error"
	case e.Aborted:
		return "aborted"
	case e.ExitCode == nil:
		return e.Signal
	default:
		return fmt.Sprintf("exit %d", *e.ExitCode)
	}
}
