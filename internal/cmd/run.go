package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"google.golang.org/genai"

	"github.com/xdg/bastion/internal/agent"
	"github.com/xdg/bastion/internal/commands"
	"github.com/xdg/bastion/internal/config"
	"github.com/xdg/bastion/internal/diag"
	"github.com/xdg/bastion/internal/gemini"
	"github.com/xdg/bastion/internal/history"
	"github.com/xdg/bastion/internal/permission"
	"github.com/xdg/bastion/internal/processor"
	"github.com/xdg/bastion/internal/prompt"
	"github.com/xdg/bastion/internal/term"
	"github.com/xdg/bastion/internal/tools"
	"github.com/xdg/bastion/internal/version"
)

const systemInstruction = `You are a software engineering assistant running in a terminal.
The user is working on the project %q; the working directory is %s. Use the run_shell_command tool to inspect
and change files; commands may be refused by the user's policy, in which case
explain what you wanted to do instead of retrying the same command.`

var (
	runModel    string
	runMaxTurns int
	runDryRun   bool
)

var runCmd = &cobra.Command{
	Use:   "run <command> [args...]",
	Short: "Run a custom command",
	Long: `Expand a custom command and send it to the model.

Custom commands are .toml files with a prompt field, found in
~/.config/bastion/commands, the directories listed under commands.dirs in
the config, and .bastion/commands in the current directory. A file at
git/commit.toml is invoked as "git:commit".

Arguments replace {{args}} in the prompt, or are appended after it when the
prompt has no placeholder. !{...} shell commands in the prompt are checked
against the policy; commands that are not allowed must be approved before
anything runs. Use --dry-run to print the expanded prompt without calling
the model.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

var askCmd = &cobra.Command{
	Use:   "ask <prompt...>",
	Short: "Send a prompt to the model",
	Long: `Start a session with the given prompt. The model may call the shell tool;
its commands are checked against the policy and may need approval.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	for _, c := range []*cobra.Command{runCmd, askCmd} {
		c.Flags().StringVar(&runModel, "model", "", "model name (overrides model.name)")
		c.Flags().IntVar(&runMaxTurns, "max-turns", 0, "maximum model turns, -1 for unlimited (overrides session.max_turns)")
		rootCmd.AddCommand(c)
	}
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "print the expanded prompt and exit")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := newEnvironment(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	loader := commands.NewLoader(config.CommandDirs(env.cfg, env.project.Root)...)
	custom, err := loader.Find(args[0])
	if errors.Is(err, commands.ErrNotFound) {
		return fmt.Errorf("unknown command %q; see 'bastion commands list'", args[0])
	}
	if err != nil {
		return err
	}

	sessionID := uuid.NewString()
	env.audit.SetSession(sessionID)

	pc := &processor.Context{
		Invocation: commands.ParseInvocation("/" + strings.Join(args, " ")),
		Policy:     env.policy.Current(),
		Session:    env.session,
		WorkDir:    env.workDir,
		Executor:   env.shell,
		Recorder:   env.recorder(sessionID),
		Audit:      env.audit,
	}
	text, err := expandCommand(ctx, custom, pc, newConfirmer(), env)
	if err != nil {
		return withExitCode(err)
	}

	if runDryRun {
		term.Println(text)
		return nil
	}
	return withExitCode(runSession(ctx, env, sessionID, text))
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := newEnvironment(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	sessionID := uuid.NewString()
	env.audit.SetSession(sessionID)
	return withExitCode(runSession(ctx, env, sessionID, strings.Join(args, " ")))
}

// expandCommand runs the command's processors, asking for approval each
// time template commands need it. A session approval is kept in env's
// allowlist; a one-time approval only covers this expansion.
func expandCommand(ctx context.Context, c *commands.Command, pc *processor.Context, confirmer tools.Confirmer, env *environment) (string, error) {
	for {
		text, err := c.Expand(ctx, pc)
		var confirm *processor.ConfirmationRequiredError
		if !errors.As(err, &confirm) {
			return text, err
		}

		roots := confirm.CommandsToConfirm
		approval, err := confirmRoots(confirmer, env.session, "", roots)
		if err != nil {
			_ = env.audit.LogReject(history.SourceTemplate, strings.Join(roots, ", "))
			return "", fmt.Errorf("%s: %w", c.Name, err)
		}
		_ = env.audit.LogApprove(history.SourceTemplate, roots, approval.String())

		switch approval {
		case prompt.ApprovalSession:
			if pc.Session != env.session {
				_ = pc.Session.AddAll(roots)
			}
		case prompt.ApprovalOnce:
			if pc.Session == env.session {
				pc.Session = cloneAllowlist(env.session)
			}
			_ = pc.Session.AddAll(roots)
		}
		pc.Policy = env.policy.Current()
	}
}

func cloneAllowlist(s *permission.SessionAllowlist) *permission.SessionAllowlist {
	c := permission.NewSessionAllowlist()
	_ = c.AddAll(s.List())
	return c
}

// runSession sends text to the model and streams the session's events to
// the terminal until the model stops calling tools.
func runSession(ctx context.Context, env *environment, sessionID, text string) error {
	key, err := apiKey(env.cfg.Model.APIKeyEnv)
	if err != nil {
		return err
	}
	client, err := gemini.NewClient(ctx, key, version.UserAgent())
	if err != nil {
		return err
	}

	shell := &tools.ShellTool{
		Executor:  env.shell,
		Policy:    env.policy.Current,
		Session:   env.session,
		Confirmer: newConfirmer(),
		WorkDir:   env.workDir,
		Output:    term.Stdout(),
		Recorder:  env.recorder(sessionID),
		Audit:     env.audit,
	}
	registry := tools.NewRegistry(shell)

	model := env.cfg.Model.Name
	if runModel != "" {
		model = runModel
	}
	chat := gemini.NewChat(client.Models, gemini.Options{
		Model:             model,
		SystemInstruction: fmt.Sprintf(systemInstruction, env.project.Name, env.workDir),
		Tools:             registry.Declarations(),
		IncludeThoughts:   env.cfg.Model.IncludeThoughts,
	})

	maxTurns := env.cfg.Session.MaxTurns
	if runMaxTurns != 0 {
		maxTurns = runMaxTurns
	}
	reportDir := env.cfg.Diagnostics.Dir
	if reportDir == "" {
		reportDir = os.TempDir()
	}
	session := agent.NewSession(chat, registry, agent.Options{
		ID:            sessionID,
		MaxTurns:      maxTurns,
		LoopThreshold: env.cfg.Session.LoopThreshold,
		Reporter:      diag.NewFileReporter(reportDir),
	})
	log.Info("session %s started with model %s", sessionID, chat.Model())

	p := &printer{con: term.Default(), thoughts: env.cfg.Model.IncludeThoughts}
	for ev, err := range session.Run(ctx, []*genai.Part{{Text: text}}) {
		if err != nil {
			return err
		}
		p.handle(ev)
	}
	log.Info("session %s ended after %d turns", sessionID, session.Turns())
	if p.failed {
		return NewExitCodeError(1)
	}
	return nil
}

// apiKey reads the API key from keyEnv, asking for it on the terminal when
// the variable is unset.
func apiKey(keyEnv string) (string, error) {
	key, err := gemini.APIKey(keyEnv)
	if err == nil || !interactive() {
		return key, err
	}
	if keyEnv == "" {
		keyEnv = gemini.DefaultAPIKeyEnv
	}
	key, readErr := prompt.ReadAPIKey(prompt.NewTerminalSecretReader(os.Stdin, os.Stderr), keyEnv)
	if readErr != nil {
		log.Debug("API key prompt: %v", readErr)
		return "", err
	}
	return key, nil
}
