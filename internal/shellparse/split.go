// Package shellparse splits POSIX shell command lines into their component
// commands and extracts the root command of each, following the quoting
// rules of bash closely enough for permission checks.
//
// Quoting rules:
//   - Single quotes: everything up to the next single quote is literal
//   - ANSI-C quotes ($'...'): backslash escapes the next byte, including a quote
//   - Double quotes: backslash escapes the next byte; $() and backticks still expand
//   - Unquoted: backslash escapes the next byte; $(), <(), >() and backticks expand
//
// Nothing in this package returns an error. Malformed input (for example an
// unterminated quote) is treated as extending to the end of the line.
package shellparse

import "strings"

// frame is one level of the quoting/substitution context stack.
type frame int

const (
	frameTop frame = iota
	frameSubst
	frameDouble
	frameSingle
	frameBacktick
	frameANSIC
)

// scanResult holds the outcome of a single pass over a command line.
type scanResult struct {
	segments     []string
	substitution bool
}

// scan walks cmd once, tracking quoting and substitution depth. It splits on
// separators that appear at the top level and records whether any command,
// process or backtick substitution would be performed by the shell.
func scan(cmd string) scanResult {
	var res scanResult
	var cur strings.Builder
	stack := []frame{frameTop}

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			res.segments = append(res.segments, s)
		}
		cur.Reset()
	}
	push := func(f frame) {
		stack = append(stack, f)
	}
	pop := func() {
		if len(stack) > 1 {
			stack = stack[:len(stack)-1]
		}
	}

	for i := 0; i < len(cmd); i++ {
		c := cmd[i]
		var next byte
		if i+1 < len(cmd) {
			next = cmd[i+1]
		}
		top := stack[len(stack)-1]

		switch top {
		case frameSingle:
			cur.WriteByte(c)
			if c == '\'' {
				pop()
			}
			continue

		case frameANSIC:
			cur.WriteByte(c)
			if c == '\\' && i+1 < len(cmd) {
				cur.WriteByte(next)
				i++
				continue
			}
			if c == '\'' {
				pop()
			}
			continue

		case frameBacktick:
			cur.WriteByte(c)
			if c == '\\' && i+1 < len(cmd) {
				cur.WriteByte(next)
				i++
				continue
			}
			if c == '`' {
				pop()
			}
			continue

		case frameDouble:
			cur.WriteByte(c)
			switch {
			case c == '\\' && i+1 < len(cmd):
				cur.WriteByte(next)
				i++
			case c == '"':
				pop()
			case c == '$' && next == '(':
				cur.WriteByte(next)
				i++
				push(frameSubst)
				res.substitution = true
			case c == '`':
				push(frameBacktick)
				res.substitution = true
			}
			continue
		}

		// Unquoted context: either the top level or inside a substitution.
		if top == frameTop {
			if n := separatorLen(cmd, i); n > 0 {
				flush()
				i += n - 1
				continue
			}
		}

		switch {
		case c == '\\' && i+1 < len(cmd):
			cur.WriteByte(c)
			cur.WriteByte(next)
			i++
			continue
		case c == '$' && next == '\'':
			cur.WriteByte(c)
			cur.WriteByte(next)
			i++
			push(frameANSIC)
			continue
		case c == '\'':
			push(frameSingle)
		case c == '"':
			push(frameDouble)
		case c == '`':
			push(frameBacktick)
			res.substitution = true
		case (c == '$' || c == '<' || c == '>') && next == '(':
			cur.WriteByte(c)
			cur.WriteByte(next)
			i++
			push(frameSubst)
			res.substitution = true
			continue
		case top == frameSubst && c == '(':
			push(frameSubst)
		case top == frameSubst && c == ')':
			pop()
		}
		cur.WriteByte(c)
	}
	flush()
	return res
}

// separatorLen returns the length of the command separator starting at
// cmd[i], or 0 if cmd[i] does not start one. Redirections that contain & or
// | (2>&1, &>file, >|file) are not separators.
func separatorLen(cmd string, i int) int {
	c := cmd[i]
	var prev, next byte
	if i > 0 {
		prev = cmd[i-1]
	}
	if i+1 < len(cmd) {
		next = cmd[i+1]
	}

	switch c {
	case '\n', ';':
		if c == ';' && next == ';' {
			return 2
		}
		return 1
	case '&':
		if next == '&' {
			return 2
		}
		if next == '>' || prev == '>' || prev == '<' {
			return 0
		}
		return 1
	case '|':
		if prev == '>' {
			return 0
		}
		if next == '|' || next == '&' {
			return 2
		}
		return 1
	}
	return 0
}

// SplitCommands splits a command line into its individual commands on the
// unquoted operators &&, ||, ;, |, |&, & and newline. Operators inside
// quotes or inside $(...), <(...), >(...) and backtick substitutions do not
// split. Each returned command is trimmed; empty commands are dropped.
func SplitCommands(cmd string) []string {
	return scan(cmd).segments
}

// DetectCommandSubstitution reports whether running cmd through a POSIX
// shell would perform command substitution ($(...) or backticks) or process
// substitution (<(...) or >(...)). Substitutions inside single quotes or
// escaped with a backslash are not counted; process substitution inside
// double quotes is not counted.
func DetectCommandSubstitution(cmd string) bool {
	return scan(cmd).substitution
}

// Normalize trims cmd and collapses internal whitespace runs to single spaces.
func Normalize(cmd string) string {
	return strings.Join(strings.Fields(cmd), " ")
}
