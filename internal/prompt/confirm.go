package prompt

import (
	"fmt"
	"strings"
)

// Approval is the user's answer to a command confirmation.
type Approval int

const (
	// ApprovalDeny refuses the commands.
	ApprovalDeny Approval = iota
	// ApprovalOnce allows the commands for this request only.
	ApprovalOnce
	// ApprovalSession allows the commands for the rest of the session.
	ApprovalSession
)

func (a Approval) String() string {
	switch a {
	case ApprovalDeny:
		return "deny"
	case ApprovalOnce:
		return "once"
	case ApprovalSession:
		return "session"
	default:
		return fmt.Sprintf("Approval(%d)", int(a))
	}
}

// Options shown by CommandConfirmer, indexed by Approval.
var approvalOptions = []Option{
	{Key: "n", Label: "No, do not run"},
	{Key: "y", Label: "Yes, allow once"},
	{Key: "a", Label: "Yes, allow always for this session"},
}

// CommandConfirmer asks the user whether shell commands may run.
type CommandConfirmer struct {
	Prompter Prompter
}

// NewCommandConfirmer creates a CommandConfirmer presenting choices with p.
func NewCommandConfirmer(p Prompter) *CommandConfirmer {
	return &CommandConfirmer{Prompter: p}
}

// Confirm describes command and the roots that need approval and returns
// the user's choice. Denying is the default. A prompt error is returned
// together with ApprovalDeny.
func (c *CommandConfirmer) Confirm(command string, roots []string) (Approval, error) {
	var b strings.Builder
	if command != "" {
		fmt.Fprintf(&b, "Shell command: %s\n", command)
	}
	fmt.Fprintf(&b, "Allow execution of: %s?", strings.Join(roots, ", "))

	idx, err := c.Prompter.Prompt(b.String(), approvalOptions, int(ApprovalDeny))
	if err != nil {
		return ApprovalDeny, err
	}
	return Approval(idx), nil
}
