package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xdg/bastion/internal/permission"
	"github.com/xdg/bastion/internal/term"
	"github.com/xdg/bastion/internal/turn"
)

// printer renders session events on a console. Model text goes to stdout
// with escape sequences removed; tool activity and problems go to stderr.
type printer struct {
	con      *term.Console
	thoughts bool

	// failed is set once an error event was shown.
	failed bool
	// midLine is set while the last model text did not end a line.
	midLine bool
}

func (p *printer) handle(ev turn.Event) {
	switch e := ev.(type) {
	case turn.ContentEvent:
		text := term.Sanitize(e.Text)
		if text == "" {
			return
		}
		_, _ = io.WriteString(p.con.Out(), text)
		p.midLine = !strings.HasSuffix(text, "\n")
	case turn.ThoughtEvent:
		if p.thoughts && e.Subject != "" {
			p.endLine()
			p.con.Status("Thinking: %s", term.Sanitize(e.Subject))
		}
	case turn.ToolCallRequestEvent:
		p.endLine()
		p.con.Status("> %s", describeCall(e.Info))
	case turn.ToolCallConfirmationEvent:
		p.endLine()
		p.con.Notice("Approval needed for: %s", strings.Join(e.Commands, ", "))
	case turn.ToolCallResponseEvent:
		if e.Info.Err != nil {
			p.con.Warn("tool call failed (%s): %v", e.Info.ErrorType, e.Info.Err)
		}
	case turn.ErrorEvent:
		p.endLine()
		p.failed = true
		if e.Status != nil {
			p.con.Error("%s (status %d)", e.Message, *e.Status)
		} else {
			p.con.Error("%s", e.Message)
		}
	case turn.UserCancelledEvent:
		p.endLine()
		p.con.Notice("Request cancelled.")
	case turn.MaxSessionTurnsEvent:
		p.endLine()
		p.con.Notice("Stopped: the session reached its maximum number of turns.")
	case turn.LoopDetectedEvent:
		p.endLine()
		p.con.Notice("Stopped: the model kept repeating the same tool call.")
	case turn.ChatCompressedEvent:
		if e.Info != nil {
			p.con.Status("Chat history compressed from %d to %d tokens.", e.Info.OriginalTokenCount, e.Info.NewTokenCount)
		}
	case turn.FinishedEvent:
		p.endLine()
	}
}

func (p *printer) endLine() {
	if p.midLine {
		_, _ = io.WriteString(p.con.Out(), "\n")
		p.midLine = false
	}
}

// describeCall renders a tool call on one line. Shell calls show the
// command; other tools show their JSON arguments.
func describeCall(req turn.ToolCallRequestInfo) string {
	if req.Name == permission.ShellToolName {
		if cmd, ok := req.Args["command"].(string); ok {
			if dir, ok := req.Args["directory"].(string); ok && dir != "" {
				return fmt.Sprintf("%s (in %s)", cmd, dir)
			}
			return cmd
		}
	}
	args, err := json.Marshal(req.Args)
	if err != nil {
		return req.Name
	}
	return fmt.Sprintf("%s %s", req.Name, args)
}
