package processor

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/xdg/bastion/internal/clog"
	"github.com/xdg/bastion/internal/history"
	"github.com/xdg/bastion/internal/permission"
	"github.com/xdg/bastion/internal/shellexec"
)

var log = clog.For("processor")

// shellInjectionRe matches !{command}. Braces do not nest.
var shellInjectionRe = regexp.MustCompile(`!\{([^}]*)\}`)

// ShellProcessor runs the !{...} commands of a prompt and replaces each with
// the command's output.
//
// Every command is checked in default-deny mode before anything runs. A
// hard denial fails with *BlockedError; commands needing approval fail
// together with one *ConfirmationRequiredError. Only when every command is
// allowed are they executed, one at a time in prompt order.
type ShellProcessor struct {
	// CommandName is the custom command being expanded, used in errors.
	CommandName string
	// ExpandArgs replaces {{args}} in the template text around the
	// injections. Command output is inserted as-is and never expanded.
	ExpandArgs bool
}

type injection struct {
	start, end int
	command    string
}

func (p *ShellProcessor) Process(ctx context.Context, prompt string, pc *Context) (string, error) {
	matches := shellInjectionRe.FindAllStringSubmatchIndex(prompt, -1)
	if len(matches) == 0 {
		return p.literal(prompt, pc), nil
	}

	injections := make([]injection, len(matches))
	for i, m := range matches {
		injections[i] = injection{
			start:   m[0],
			end:     m[1],
			command: strings.TrimSpace(prompt[m[2]:m[3]]),
		}
	}

	var toConfirm []string
	seen := make(map[string]bool)
	for _, inj := range injections {
		if inj.command == "" {
			continue
		}
		_ = pc.Audit.LogRequest(history.SourceTemplate, inj.command)
		d := permission.CheckDefaultDeny(inj.command, pc.Policy, pc.Session)
		switch {
		case d.IsHardDenial:
			_ = pc.Audit.LogDeny(history.SourceTemplate, inj.command, d.BlockReason)
			return "", &BlockedError{CommandName: p.CommandName, Command: inj.command, Reason: d.BlockReason}
		case !d.AllAllowed:
			_ = pc.Audit.LogConfirm(history.SourceTemplate, inj.command, d.DisallowedCommands)
			for _, c := range d.DisallowedCommands {
				if !seen[c] {
					seen[c] = true
					toConfirm = append(toConfirm, c)
				}
			}
		default:
			_ = pc.Audit.LogAllow(history.SourceTemplate, inj.command, permission.ModeDefaultDeny.String())
		}
	}
	if len(toConfirm) > 0 {
		return "", &ConfirmationRequiredError{CommandsToConfirm: toConfirm}
	}
	if pc.Executor == nil {
		return "", ErrNoExecutor
	}

	var b strings.Builder
	last := 0
	for _, inj := range injections {
		b.WriteString(p.literal(prompt[last:inj.start], pc))
		last = inj.end
		if inj.command == "" {
			continue
		}
		out, err := p.run(ctx, inj.command, pc)
		if err != nil {
			return "", err
		}
		b.WriteString(out)
	}
	b.WriteString(p.literal(prompt[last:], pc))
	return b.String(), nil
}

// literal prepares template text that lies outside any injection.
func (p *ShellProcessor) literal(text string, pc *Context) string {
	if !p.ExpandArgs {
		return text
	}
	return strings.ReplaceAll(text, ShorthandArgsInjection, pc.Invocation.Args)
}

// run executes one injected command to completion. The command gets its own
// cancellation scope: cancelling the caller does not abandon it.
func (p *ShellProcessor) run(ctx context.Context, command string, pc *Context) (string, error) {
	runCtx := context.WithoutCancel(ctx)
	started := time.Now()

	h, err := pc.Executor.Execute(runCtx, command, pc.WorkDir, nil)
	if err != nil {
		return "", fmt.Errorf("run %q: %w", command, err)
	}
	res := h.Wait()
	log.Info("%s: !{%s} exit=%s", p.CommandName, command, exitString(res))

	_ = pc.Audit.LogComplete(history.SourceTemplate, command, res.ExitCode, res.Signal, time.Since(started))
	if pc.Recorder != nil {
		if err := pc.Recorder.Record(runCtx, history.FromResult(history.SourceTemplate, command, pc.WorkDir, started, res)); err != nil {
			log.Warn("record history for %q: %v", command, err)
		}
	}
	return res.Output, nil
}

func exitString(res *shellexec.Result) string {
	switch {
	case res.Err != nil:
		return "error: " + res.Err.Error()
	case res.ExitCode == nil:
		return res.Signal
	default:
		return fmt.Sprint(*res.ExitCode)
	}
}
