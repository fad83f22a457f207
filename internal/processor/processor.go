// Package processor expands custom command prompt templates before they
// are sent to the model.
//
// A template passes through a Pipeline of processors. Argument processors
// insert what the user typed after the command name; the shell processor
// runs !{...} commands and splices their output into the prompt, subject to
// the permission policy.
package processor

import (
	"context"
	"strings"

	"github.com/xdg/bastion/internal/audit"
	"github.com/xdg/bastion/internal/history"
	"github.com/xdg/bastion/internal/permission"
	"github.com/xdg/bastion/internal/shellexec"
)

// Template markers.
const (
	ShorthandArgsInjection = "{{args}}"
	ShellInjectionTrigger  = "!{"
)

// Invocation describes how a custom command was called.
type Invocation struct {
	// Raw is the full input, e.g. "/git:commit fix the tests".
	Raw string
	// Name is the command name, e.g. "git:commit".
	Name string
	// Args is everything after the name, e.g. "fix the tests".
	Args string
}

// Executor starts shell commands. *shellexec.Service implements it.
type Executor interface {
	Execute(ctx context.Context, command, cwd string, onEvent func(shellexec.OutputEvent)) (*shellexec.Handle, error)
}

// Context carries what processors need besides the prompt.
type Context struct {
	Invocation Invocation
	Policy     permission.Policy
	Session    *permission.SessionAllowlist
	WorkDir    string
	Executor   Executor
	// Recorder, if set, receives an entry for each executed command.
	Recorder history.Recorder
	// Audit, if set, receives permission and execution events.
	Audit *audit.Logger
}

// Processor transforms a prompt.
type Processor interface {
	Process(ctx context.Context, prompt string, pc *Context) (string, error)
}

// Pipeline runs processors in order, each seeing the previous output.
// The first error stops the pipeline.
type Pipeline []Processor

// Process implements Processor.
func (p Pipeline) Process(ctx context.Context, prompt string, pc *Context) (string, error) {
	out := prompt
	for _, proc := range p {
		var err error
		out, err = proc.Process(ctx, out, pc)
		if err != nil {
			return "", err
		}
	}
	return out, nil
}

// ShorthandArgumentProcessor replaces every {{args}} with the raw arguments.
type ShorthandArgumentProcessor struct{}

func (ShorthandArgumentProcessor) Process(_ context.Context, prompt string, pc *Context) (string, error) {
	return strings.ReplaceAll(prompt, ShorthandArgsInjection, pc.Invocation.Args), nil
}

// DefaultArgumentProcessor appends the full invocation to prompts that do
// not place the arguments themselves, so the model still sees them.
type DefaultArgumentProcessor struct{}

func (DefaultArgumentProcessor) Process(_ context.Context, prompt string, pc *Context) (string, error) {
	if strings.TrimSpace(pc.Invocation.Args) == "" {
		return prompt, nil
	}
	return prompt + "\n\n" + pc.Invocation.Raw, nil
}
