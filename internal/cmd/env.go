package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/xdg/bastion/internal/audit"
	"github.com/xdg/bastion/internal/clog"
	"github.com/xdg/bastion/internal/config"
	"github.com/xdg/bastion/internal/history"
	"github.com/xdg/bastion/internal/permission"
	"github.com/xdg/bastion/internal/project"
	"github.com/xdg/bastion/internal/prompt"
	"github.com/xdg/bastion/internal/shellexec"
	"github.com/xdg/bastion/internal/tools"
)

var log = clog.For("cmd")

// environment is what run and exec share: configuration, the live policy,
// the shell service and the audit and history sinks.
type environment struct {
	cfg     *config.GlobalConfig
	workDir string
	project *project.Info
	policy  *permission.PolicyWatcher
	session *permission.SessionAllowlist
	shell   *shellexec.Service
	audit   *audit.Logger
	history *history.Store

	closers []io.Closer
}

// newEnvironment loads configuration for the current directory and its
// project, and opens the logs and the history database. The policy is
// watched for changes until ctx is done or Close is called.
func newEnvironment(ctx context.Context) (*environment, error) {
	cfg, err := config.LoadGlobalConfig()
	if err != nil {
		return nil, err
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}

	info, err := project.Detect(ctx, wd)
	if err != nil {
		return nil, err
	}

	env := &environment{
		cfg:     cfg,
		workDir: wd,
		project: info,
		session: permission.NewSessionAllowlist(),
	}
	if err := env.openLogs(); err != nil {
		env.Close()
		return nil, err
	}

	opts, err := config.ShellOptions(cfg.Shell)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.shell = shellexec.NewService(opts)

	globalPath := config.GlobalConfigPath()
	env.policy, err = permission.NewPolicyWatcher(globalPath, func() (permission.Policy, error) {
		return config.LoadPolicy(globalPath, info.Root)
	})
	if err != nil {
		env.Close()
		return nil, err
	}
	if err := env.policy.Start(ctx); err != nil {
		log.Warn("policy changes will not be picked up: %v", err)
	}

	if cfg.History.IsEnabled() {
		path := cfg.History.Path
		if path == "" {
			path = history.DefaultPath()
		}
		store, err := history.Open(path)
		if err != nil {
			log.Warn("history disabled: %v", err)
		} else {
			env.history = store
			env.closers = append(env.closers, store)
		}
	}
	return env, nil
}

// openLogs configures file logging and the audit log from the config.
func (e *environment) openLogs() error {
	if e.cfg.Log.File != "" {
		f, err := clog.OpenLogFile(e.cfg.Log.File)
		if err != nil {
			return err
		}
		clog.SetFileOutput(f)
		e.closers = append(e.closers, f)
	}
	if e.cfg.Log.Level != "" && !debugFlag {
		// The file gets the configured level; stderr only shows warnings
		// regardless.
		clog.SetLevel(clog.ParseLevel(e.cfg.Log.Level))
	}
	if e.cfg.Audit.File != "" {
		f, err := clog.OpenLogFile(e.cfg.Audit.File)
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		e.audit = audit.NewLogger(f)
		e.closers = append(e.closers, f)
	}
	return nil
}

// recorder returns the history sink for sessionID, or nil when history is
// disabled.
func (e *environment) recorder(sessionID string) history.Recorder {
	if e.history == nil {
		return nil
	}
	return history.SessionRecorder{Recorder: e.history, SessionID: sessionID}
}

// Close stops the policy watcher and closes every opened file.
func (e *environment) Close() {
	if e.policy != nil {
		e.policy.Stop()
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			log.Warn("close: %v", err)
		}
	}
	e.closers = nil
}

// projectRoot returns the root of the project around the working directory.
func projectRoot(ctx context.Context) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	info, err := project.Detect(ctx, wd)
	if err != nil {
		return "", err
	}
	return info.Root, nil
}

// interactive reports whether stdin is a terminal, so prompts can be shown.
func interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// newConfirmer returns a confirmer reading from the terminal, or nil when
// stdin is not interactive.
func newConfirmer() tools.Confirmer {
	if !interactive() {
		return nil
	}
	return prompt.NewCommandConfirmer(prompt.NewStdinPrompter(os.Stdin, os.Stderr))
}

// confirmRoots asks whether roots may run and records a session approval.
// It returns errDeclined when the user says no or cannot be asked.
func confirmRoots(confirmer tools.Confirmer, session *permission.SessionAllowlist, command string, roots []string) (prompt.Approval, error) {
	if confirmer == nil {
		return prompt.ApprovalDeny, fmt.Errorf("%w: confirmation needed for %v but stdin is not a terminal", errDeclined, roots)
	}
	approval, err := confirmer.Confirm(command, roots)
	if err != nil {
		return prompt.ApprovalDeny, fmt.Errorf("%w: %v", errDeclined, err)
	}
	switch approval {
	case prompt.ApprovalSession:
		if err := session.AddAll(roots); err != nil {
			return approval, err
		}
	case prompt.ApprovalOnce:
	default:
		return approval, errDeclined
	}
	return approval, nil
}

