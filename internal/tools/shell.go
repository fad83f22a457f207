package tools

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/xdg/bastion/internal/audit"
	"github.com/xdg/bastion/internal/history"
	"github.com/xdg/bastion/internal/pathutil"
	"github.com/xdg/bastion/internal/permission"
	"github.com/xdg/bastion/internal/prompt"
	"github.com/xdg/bastion/internal/shellexec"
	"github.com/xdg/bastion/internal/shellparse"
	"github.com/xdg/bastion/internal/turn"
)

// Executor starts shell commands. *shellexec.Service implements it.
type Executor interface {
	Execute(ctx context.Context, command, cwd string, onEvent func(shellexec.OutputEvent)) (*shellexec.Handle, error)
}

// Confirmer asks the user to approve commands that are not allowlisted.
type Confirmer interface {
	Confirm(command string, roots []string) (prompt.Approval, error)
}

// ConfirmationHook is told about a confirmation before the user is asked.
type ConfirmationHook func(req turn.ToolCallRequestInfo, commands []string)

type hookKey struct{}

// WithConfirmationHook returns a context carrying hook. ShellTool calls it
// just before asking its Confirmer.
func WithConfirmationHook(ctx context.Context, hook ConfirmationHook) context.Context {
	return context.WithValue(ctx, hookKey{}, hook)
}

// ConfirmationHookFrom returns the hook carried by ctx, or nil.
func ConfirmationHookFrom(ctx context.Context) ConfirmationHook {
	h, _ := ctx.Value(hookKey{}).(ConfirmationHook)
	return h
}

// ShellTool runs shell commands for the model as run_shell_command.
//
// Commands are checked in default-allow mode. Hard denials fail the call;
// soft denials go to the Confirmer, and without one they fail too.
// Commands run in WorkDir or a directory below it.
type ShellTool struct {
	Executor Executor
	// Policy returns the policy to check against. It is called per call so
	// a hot reloaded policy takes effect immediately.
	Policy    func() permission.Policy
	Session   *permission.SessionAllowlist
	Confirmer Confirmer
	WorkDir   string
	// Output, if set, receives command output as it streams.
	Output   io.Writer
	Recorder history.Recorder
	Audit    *audit.Logger
}

// Name implements Tool.
func (t *ShellTool) Name() string { return permission.ShellToolName }

// Declaration implements Tool.
func (t *ShellTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name: permission.ShellToolName,
		Description: "Executes a shell command as `bash -c <command>` and returns its stdout, stderr, " +
			"exit code and terminating signal. Commands may be compound (&&, ||, ;, |). " +
			"Command and process substitution are not allowed.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"command": {
					Type:        genai.TypeString,
					Description: "Exact shell command to execute.",
				},
				"description": {
					Type:        genai.TypeString,
					Description: "Brief description of the command for the user.",
				},
				"directory": {
					Type:        genai.TypeString,
					Description: "Directory to run the command in, relative to the project root. Defaults to the project root.",
				},
			},
			Required: []string{"command"},
		},
	}
}

type shellArgs struct {
	command     string
	description string
	directory   string
}

func parseShellArgs(args map[string]any) (shellArgs, error) {
	var a shellArgs
	fields := []struct {
		key string
		dst *string
	}{{"command", &a.command}, {"description", &a.description}, {"directory", &a.directory}}
	for _, f := range fields {
		key, dst := f.key, f.dst
		v, ok := args[key]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return a, newError(ErrorInvalidParams, "parameter %q must be a string", key)
		}
		*dst = s
	}
	a.command = strings.TrimSpace(a.command)
	if a.command == "" {
		return a, newError(ErrorInvalidParams, "command cannot be empty")
	}
	if _, ok := shellparse.CommandRoot(a.command); !ok {
		return a, newError(ErrorInvalidParams, "could not identify command root to obtain permission from user")
	}
	return a, nil
}

// Call implements Tool.
func (t *ShellTool) Call(ctx context.Context, req turn.ToolCallRequestInfo) (map[string]any, string, error) {
	args, err := parseShellArgs(req.Args)
	if err != nil {
		return nil, "", err
	}
	cwd, ok := pathutil.ResolveWithin(t.WorkDir, args.directory)
	if !ok {
		return nil, "", newError(ErrorInvalidParams, "directory %q must be relative to and inside the project root", args.directory)
	}

	if err := t.authorize(ctx, req, args.command); err != nil {
		return nil, "", err
	}
	if t.Executor == nil {
		return nil, "", newError(ErrorExecution, "no shell executor configured")
	}

	started := time.Now()
	h, err := t.Executor.Execute(ctx, args.command, cwd, t.stream)
	if err != nil {
		return nil, "", &Error{Type: ErrorExecution, Err: err}
	}
	res := h.Wait()
	elapsed := time.Since(started)

	if res.Aborted {
		_ = t.Audit.LogAbort(history.SourceTool, args.command, res.Signal, elapsed)
	} else {
		_ = t.Audit.LogComplete(history.SourceTool, args.command, res.ExitCode, res.Signal, elapsed)
	}
	if t.Recorder != nil {
		entry := history.FromResult(history.SourceTool, args.command, cwd, started, res)
		if err := t.Recorder.Record(context.WithoutCancel(ctx), entry); err != nil {
			log.Warn("record history for %q: %v", args.command, err)
		}
	}
	return shellResponse(args, res), shellDisplay(res), nil
}

// authorize applies the policy and, for soft denials, the Confirmer.
func (t *ShellTool) authorize(ctx context.Context, req turn.ToolCallRequestInfo, command string) error {
	var policy permission.Policy
	if t.Policy != nil {
		policy = t.Policy()
	}
	_ = t.Audit.LogRequest(history.SourceTool, command)

	d := permission.Check(command, policy, permission.ModeDefaultAllow, t.Session)
	switch {
	case d.AllAllowed:
		_ = t.Audit.LogAllow(history.SourceTool, command, permission.ModeDefaultAllow.String())
		return nil
	case d.IsHardDenial:
		_ = t.Audit.LogDeny(history.SourceTool, command, d.BlockReason)
		return newError(ErrorShellBlocked, "Command is not allowed: %s. Reason: %s", command, d.BlockReason)
	}

	_ = t.Audit.LogConfirm(history.SourceTool, command, d.DisallowedCommands)
	if t.Confirmer == nil {
		_ = t.Audit.LogReject(history.SourceTool, command)
		return newError(ErrorShellNotApproved, "%s", d.BlockReason)
	}
	if hook := ConfirmationHookFrom(ctx); hook != nil {
		hook(req, d.DisallowedCommands)
	}

	approval, err := t.Confirmer.Confirm(command, d.DisallowedCommands)
	if err != nil {
		log.Warn("confirmation for %q failed: %v", command, err)
		approval = prompt.ApprovalDeny
	}
	switch approval {
	case prompt.ApprovalSession:
		if t.Session == nil {
			log.Warn("no session allowlist; approving %q once", command)
		} else if err := t.Session.AddAll(d.DisallowedCommands); err != nil {
			return &Error{Type: ErrorExecution, Err: err}
		}
		fallthrough
	case prompt.ApprovalOnce:
		_ = t.Audit.LogApprove(history.SourceTool, d.DisallowedCommands, approval.String())
		return nil
	default:
		_ = t.Audit.LogReject(history.SourceTool, command)
		return newError(ErrorShellNotApproved, "user did not allow execution of: %s", strings.Join(d.DisallowedCommands, ", "))
	}
}

func (t *ShellTool) stream(ev shellexec.OutputEvent) {
	if t.Output == nil {
		return
	}
	switch e := ev.(type) {
	case shellexec.DataEvent:
		_, _ = io.WriteString(t.Output, e.Chunk)
	case shellexec.BinaryDetectedEvent:
		_, _ = io.WriteString(t.Output, "[binary output detected, halting stream]\n")
	}
}

func shellResponse(args shellArgs, res *shellexec.Result) map[string]any {
	resp := map[string]any{
		"command":   args.command,
		"directory": orDefault(args.directory, "(root)"),
		"stdout":    res.Stdout,
		"stderr":    res.Stderr,
		"output":    orDefault(res.Output, "(empty)"),
		"exit_code": nil,
		"signal":    orDefault(res.Signal, "(none)"),
		"error":     "(none)",
	}
	if res.ExitCode != nil {
		resp["exit_code"] = *res.ExitCode
	}
	if res.Err != nil {
		resp["error"] = res.Err.Error()
	}
	if res.Aborted {
		resp["aborted"] = true
	}
	return resp
}

func shellDisplay(res *shellexec.Result) string {
	switch {
	case res.Aborted:
		return "Command cancelled by user."
	case res.Err != nil:
		return "Command failed: " + res.Err.Error()
	case res.ExitCode == nil:
		return "Command terminated by signal: " + res.Signal
	case res.Output == "":
		return fmt.Sprintf("Command exited with code %d and no output.", *res.ExitCode)
	}
	return res.Output
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
