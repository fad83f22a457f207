package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xdg/bastion/internal/history"
	"github.com/xdg/bastion/internal/pathutil"
	"github.com/xdg/bastion/internal/permission"
	"github.com/xdg/bastion/internal/shellexec"
	"github.com/xdg/bastion/internal/tools"
)

var execDir string

var execCmd = &cobra.Command{
	Use:   "exec [flags] -- <command>",
	Short: "Run a shell command under the policy",
	Long: `Run a shell command the way the model's shell tool would: the command is
checked against the policy in default-allow mode, commands that need
approval are confirmed on the terminal, and output is streamed as it
arrives.

The exit code is the command's own. A blocked command exits with 2 and a
declined confirmation with 3.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	execCmd.Flags().StringVarP(&execDir, "dir", "C", "", "directory to run in, relative to the current directory")
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := newEnvironment(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	command := strings.Join(args, " ")
	res, err := execCommand(ctx, env, newConfirmer(), command, execDir, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return withExitCode(err)
	}
	return exitStatus(res)
}

// execCommand checks command against the current policy, confirms it when
// needed and runs it in dir below the working directory, copying output
// to stdout and stderr as it streams.
func execCommand(ctx context.Context, env *environment, confirmer tools.Confirmer, command, dir string, stdout, stderr io.Writer) (*shellexec.Result, error) {
	cwd, ok := pathutil.ResolveWithin(env.workDir, dir)
	if !ok {
		return nil, fmt.Errorf("directory %q is outside %s", dir, env.workDir)
	}

	_ = env.audit.LogRequest(history.SourceExec, command)
	d := permission.Check(command, env.policy.Current(), permission.ModeDefaultAllow, env.session)
	switch {
	case d.IsHardDenial:
		_ = env.audit.LogDeny(history.SourceExec, command, d.BlockReason)
		return nil, &ExitCodeError{Code: ExitBlocked, Err: fmt.Errorf("blocked: %s", d.BlockReason)}
	case !d.AllAllowed:
		_ = env.audit.LogConfirm(history.SourceExec, command, d.DisallowedCommands)
		approval, err := confirmRoots(confirmer, env.session, command, d.DisallowedCommands)
		if err != nil {
			_ = env.audit.LogReject(history.SourceExec, command)
			return nil, err
		}
		_ = env.audit.LogApprove(history.SourceExec, d.DisallowedCommands, approval.String())
	default:
		_ = env.audit.LogAllow(history.SourceExec, command, permission.ModeDefaultAllow.String())
	}

	started := time.Now()
	h, err := env.shell.Execute(ctx, command, cwd, func(ev shellexec.OutputEvent) {
		switch e := ev.(type) {
		case shellexec.DataEvent:
			w := stdout
			if e.Stream == shellexec.StreamStderr {
				w = stderr
			}
			_, _ = io.WriteString(w, e.Chunk)
		case shellexec.BinaryDetectedEvent:
			fmt.Fprintln(stderr, "[binary output detected, halting stream]")
		}
	})
	if err != nil {
		return nil, err
	}
	res := h.Wait()

	elapsed := time.Since(started)
	if res.Aborted {
		_ = env.audit.LogAbort(history.SourceExec, command, res.Signal, elapsed)
	} else {
		_ = env.audit.LogComplete(history.SourceExec, command, res.ExitCode, res.Signal, elapsed)
	}
	if rec := env.recorder(""); rec != nil {
		if err := rec.Record(context.WithoutCancel(ctx), history.FromResult(history.SourceExec, command, cwd, started, res)); err != nil {
			log.Warn("record history: %v", err)
		}
	}
	return res, nil
}

// exitStatus maps a finished command to the process exit status.
func exitStatus(res *shellexec.Result) error {
	switch {
	case res.Err != nil:
		return fmt.Errorf("run command: %w", res.Err)
	case res.Aborted:
		return &ExitCodeError{Code: 130, Err: errors.New("command aborted")}
	case res.ExitCode == nil:
		return &ExitCodeError{Code: 128, Err: fmt.Errorf("command terminated by %s", res.Signal)}
	case *res.ExitCode != 0:
		return NewExitCodeError(*res.ExitCode)
	}
	return nil
}
