// Package permission decides whether shell commands may run.
//
// A command line is split into sub-commands and every sub-command is
// evaluated against a Policy. The outcome is a Decision that is either an
// approval, a soft denial (the user may confirm the listed commands) or a
// hard denial that no confirmation can override.
//
// Two evaluation modes exist. ModeDefaultDeny is used for commands embedded
// in prompt templates: anything not explicitly allowed needs confirmation.
// ModeDefaultAllow is used for commands the model asks to run: everything is
// allowed unless the policy carries an allow list or is strict.
//
// Evaluation is pure. The same command, policy and session contents always
// produce the same Decision.
package permission

import (
	"fmt"
	"strings"

	"github.com/xdg/bastion/internal/shellparse"
)

// ShellToolName is the tool name used in "run_shell_command(git)" style
// policy entries.
const ShellToolName = "run_shell_command"

// Block reasons reported in Decision.BlockReason.
const (
	ReasonSubstitution   = "Command substitution using $(), <(), or >() is not allowed for security reasons"
	ReasonShellDisabled  = "Shell tool is globally disabled in configuration"
	reasonDeniedFmt      = "Command '%s' is blocked by configuration"
	reasonNotAllowlisted = "Command(s) not on the global or session allowlist."
	reasonNotInAllowList = "Command(s) not in the allowed commands list."
)

// Mode selects how commands that match no policy entry are treated.
type Mode int

const (
	// ModeDefaultDeny requires confirmation for anything not allowed.
	ModeDefaultDeny Mode = iota
	// ModeDefaultAllow permits anything not denied, unless the allow list is
	// non-empty or the policy is strict.
	ModeDefaultAllow
)

// String returns the mode name used in logs and CLI output.
func (m Mode) String() string {
	switch m {
	case ModeDefaultDeny:
		return "default-deny"
	case ModeDefaultAllow:
		return "default-allow"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Policy is the static shell command policy.
//
// Allow and Deny entries are command prefixes matched on word boundaries:
// "git" matches "git status" but not "gitk", and "git push" matches
// "git push origin" but not "git pull". An entry may also be written as
// "run_shell_command(git push)".
type Policy struct {
	Allow         []string
	Deny          []string
	Strict        bool
	ShellDisabled bool
}

// Decision is the outcome of evaluating one command line.
type Decision struct {
	// AllAllowed is true when every sub-command may run without asking.
	AllAllowed bool
	// DisallowedCommands lists the offending roots, de-duplicated and in
	// order of appearance.
	DisallowedCommands []string
	// BlockReason is a human readable explanation for a denial.
	BlockReason string
	// IsHardDenial is true when confirmation cannot override the denial.
	IsHardDenial bool
}

// Check evaluates cmd under the given mode. session may be nil.
func Check(cmd string, policy Policy, mode Mode, session *SessionAllowlist) Decision {
	if mode == ModeDefaultAllow {
		return checkDefaultAllow(cmd, policy, session)
	}
	return CheckDefaultDeny(cmd, policy, session)
}

// CheckDefaultDeny evaluates cmd for template shell injection. Sub-commands
// must match policy.Allow or the session allowlist to run without
// confirmation.
func CheckDefaultDeny(cmd string, policy Policy, session *SessionAllowlist) Decision {
	subs, d, done := precheck(cmd, policy)
	if done {
		return d
	}

	var offending []string
	for _, sub := range subs {
		if !matchesAny(sub, policy.Allow) && !session.Matches(sub) {
			offending = append(offending, sub)
		}
	}
	if len(offending) == 0 {
		return Decision{AllAllowed: true}
	}
	return softDenial(reasonNotAllowlisted, offending)
}

// CheckDefaultAllow evaluates cmd for a model requested shell call. With an
// empty allow list and no strict flag everything that is not denied runs.
func CheckDefaultAllow(cmd string, policy Policy) Decision {
	return checkDefaultAllow(cmd, policy, nil)
}

func checkDefaultAllow(cmd string, policy Policy, session *SessionAllowlist) Decision {
	subs, d, done := precheck(cmd, policy)
	if done {
		return d
	}
	if len(policy.Allow) == 0 && !policy.Strict {
		return Decision{AllAllowed: true}
	}

	var offending []string
	for _, sub := range subs {
		if !matchesAny(sub, policy.Allow) && !session.Matches(sub) {
			offending = append(offending, sub)
		}
	}
	if len(offending) == 0 {
		return Decision{AllAllowed: true}
	}
	return softDenial(reasonNotInAllowList, offending)
}

// IsCommandAllowed reports whether cmd may run under default-allow
// evaluation, with the block reason when it may not.
func IsCommandAllowed(cmd string, policy Policy) (bool, string) {
	d := CheckDefaultAllow(cmd, policy)
	if d.AllAllowed {
		return true, ""
	}
	return false, d.BlockReason
}

// precheck applies the rules shared by both modes: empty input,
// substitution, the global shell switch and the deny list. When done is true
// d is final; otherwise subs holds the normalized sub-commands.
func precheck(cmd string, policy Policy) (subs []string, d Decision, done bool) {
	inner := shellparse.StripShellWrapper(cmd)
	if shellparse.Normalize(inner) == "" {
		return nil, Decision{AllAllowed: true}, true
	}

	if shellparse.DetectCommandSubstitution(inner) {
		return nil, Decision{
			DisallowedCommands: []string{shellparse.Normalize(cmd)},
			BlockReason:        ReasonSubstitution,
			IsHardDenial:       true,
		}, true
	}

	for _, s := range shellparse.SplitCommands(inner) {
		subs = append(subs, shellparse.Normalize(s))
	}

	if policy.ShellDisabled {
		return nil, Decision{
			DisallowedCommands: roots(subs),
			BlockReason:        ReasonShellDisabled,
			IsHardDenial:       true,
		}, true
	}

	for _, sub := range subs {
		if matchesAny(sub, policy.Deny) {
			return nil, Decision{
				DisallowedCommands: roots([]string{sub}),
				BlockReason:        fmt.Sprintf(reasonDeniedFmt, sub),
				IsHardDenial:       true,
			}, true
		}
	}
	return subs, Decision{}, false
}

func softDenial(reason string, offending []string) Decision {
	disallowed := roots(offending)
	return Decision{
		DisallowedCommands: disallowed,
		BlockReason:        fmt.Sprintf("%s Disallowed commands: %s", reason, quoteList(disallowed)),
	}
}

// roots maps sub-commands to their roots, de-duplicated in order. A
// sub-command without a root contributes its own text.
func roots(subs []string) []string {
	seen := make(map[string]bool, len(subs))
	var out []string
	for _, sub := range subs {
		r, ok := shellparse.CommandRoot(sub)
		if !ok {
			r = sub
		}
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, ", ")
}

// normalizeEntry strips the optional "run_shell_command(...)" wrapper and
// collapses whitespace.
func normalizeEntry(entry string) string {
	e := strings.TrimSpace(entry)
	if strings.HasPrefix(e, ShellToolName+"(") && strings.HasSuffix(e, ")") {
		e = e[len(ShellToolName)+1 : len(e)-1]
	}
	return shellparse.Normalize(e)
}

// matchesEntry reports whether the normalized sub-command sub is covered by
// entry. The entry is compared against the sub-command as written and with
// wrappers removed, and against its root.
func matchesEntry(sub, entry string) bool {
	e := normalizeEntry(entry)
	if e == "" {
		return false
	}
	if root, ok := shellparse.CommandRoot(sub); ok && root == e {
		return true
	}
	return hasWordPrefix(sub, e) || hasWordPrefix(shellparse.Unwrap(sub), e)
}

func matchesAny(sub string, entries []string) bool {
	for _, e := range entries {
		if matchesEntry(sub, e) {
			return true
		}
	}
	return false
}

func hasWordPrefix(s, prefix string) bool {
	return s == prefix || strings.HasPrefix(s, prefix+" ")
}
