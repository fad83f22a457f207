package shellparse

import (
	"regexp"
	"strings"
)

// wrappers are commands that run their arguments as another command.
// The root of "env FOO=1 git status" is git, not env.
var wrappers = map[string]bool{
	"env":     true,
	"exec":    true,
	"command": true,
	"builtin": true,
	"nohup":   true,
	"time":    true,
}

// envFlagsWithArg are env(1) flags that consume the following word.
var envFlagsWithArg = map[string]bool{
	"-u":             true,
	"--unset":        true,
	"-C":             true,
	"--chdir":        true,
	"-S":             true,
	"--split-string": true,
}

var assignmentRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*=`)

// shellWrapperRe matches "bash -c", "sh -c", "zsh -c" and "cmd.exe /c" prefixes.
var shellWrapperRe = regexp.MustCompile(`^\s*(?:sh|bash|zsh|cmd\.exe)\s+(?:/c|-c)\s+`)

// words splits cmd into shell words on unquoted whitespace, removing the
// quotes themselves. Backslash escapes are honoured outside single quotes,
// and $'...' words are decoded the way bash expands them. An unterminated
// quote extends to the end of the input.
func words(cmd string) []string {
	var out []string
	var cur strings.Builder
	inWord := false
	var quote byte

	for i := 0; i < len(cmd); i++ {
		c := cmd[i]
		switch {
		case quote == '\'':
			if c == '\'' {
				quote = 0
				continue
			}
			cur.WriteByte(c)
		case quote == '$':
			if c == '\'' {
				quote = 0
				continue
			}
			if c == '\\' {
				var dec string
				dec, i = ansiCEscape(cmd, i)
				cur.WriteString(dec)
				continue
			}
			cur.WriteByte(c)
		case quote == '"':
			if c == '"' {
				quote = 0
				continue
			}
			if c == '\\' && i+1 < len(cmd) {
				i++
				c = cmd[i]
			}
			cur.WriteByte(c)
		case c == '$' && i+1 < len(cmd) && (cmd[i+1] == '\'' || cmd[i+1] == '"'):
			i++
			quote = cmd[i]
			if quote == '\'' {
				quote = '$'
			}
			inWord = true
		case c == '\'' || c == '"':
			quote = c
			inWord = true
		case c == '\\' && i+1 < len(cmd):
			i++
			cur.WriteByte(cmd[i])
			inWord = true
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			if inWord {
				out = append(out, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteByte(c)
			inWord = true
		}
	}
	if inWord {
		out = append(out, cur.String())
	}
	return out
}

var ansiCSimple = map[byte]string{
	'a': "\a", 'b': "\b", 'e': "\x1b", 'E': "\x1b", 'f': "\f", 'n': "\n",
	'r': "\r", 't': "\t", 'v': "\v", '\\': "\\", '\'': "'", '"': "\"", '?': "?",
}

// ansiCEscape decodes the backslash escape starting at cmd[i] inside a
// $'...' word. It returns the decoded text and the index of the last byte
// consumed. Unknown escapes are kept verbatim, backslash included.
func ansiCEscape(cmd string, i int) (string, int) {
	if i+1 >= len(cmd) {
		return "\\", i
	}
	c := cmd[i+1]
	if s, ok := ansiCSimple[c]; ok {
		return s, i + 1
	}
	switch c {
	case 'c':
		if i+2 < len(cmd) {
			return string(rune(cmd[i+2] & 0x1f)), i + 2
		}
	case 'x', 'u', 'U':
		limit := map[byte]int{'x': 2, 'u': 4, 'U': 8}[c]
		v, n := scanDigits(cmd[i+2:], limit, 16)
		if n > 0 {
			if c == 'x' {
				return string([]byte{byte(v)}), i + 1 + n
			}
			return string(rune(v)), i + 1 + n
		}
	default:
		if c >= '0' && c <= '7' {
			v, n := scanDigits(cmd[i+1:], 3, 8)
			return string([]byte{byte(v)}), i + n
		}
	}
	return cmd[i : i+2], i + 1
}

// expandANSIC decodes every backslash escape in the body of a $'...' word.
func expandANSIC(body string) string {
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		if body[i] != '\\' {
			b.WriteByte(body[i])
			continue
		}
		dec, last := ansiCEscape(body, i)
		b.WriteString(dec)
		i = last
	}
	return b.String()
}

// scanDigits parses up to limit leading digits of s in the given base and
// returns the value and the number of bytes used.
func scanDigits(s string, limit, base int) (int, int) {
	v, n := 0, 0
	for n < limit && n < len(s) {
		d := digitValue(s[n])
		if d < 0 || d >= base {
			break
		}
		v = v*base + d
		n++
	}
	return v, n
}

func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

// rootIndex returns the index into w of the word that names the command
// actually executed, skipping subshell/group openers, variable assignments
// and wrapper commands with their flags. If only wrappers are present the
// last wrapper is the root. Returns -1 when w contains no command word.
func rootIndex(w []string) int {
	lastWrapper := -1
	i := 0
	for i < len(w) {
		word := strings.TrimLeft(w[i], "({")
		if word == "" || assignmentRe.MatchString(word) {
			i++
			continue
		}
		if !wrappers[word] {
			return i
		}
		lastWrapper = i
		i++
		for i < len(w) && strings.HasPrefix(w[i], "-") {
			flag := w[i]
			i++
			if word == "env" && envFlagsWithArg[flag] {
				i++
			}
		}
	}
	return lastWrapper
}

// baseName reduces a command path to its final component, accepting either
// slash as a separator.
func baseName(s string) string {
	if i := strings.LastIndexAny(s, `/\`); i >= 0 {
		return s[i+1:]
	}
	return s
}

// CommandRoot returns the name of the command cmd runs, used as the key for
// allow and deny matching. For "ls -la /tmp" it is "ls"; for
// "FOO=1 env -i /usr/bin/git status" it is "git". Only the first command of
// a compound line is considered; use CommandRoots for all of them.
// The boolean is false for empty or unparseable input.
func CommandRoot(cmd string) (string, bool) {
	w := words(strings.TrimSpace(cmd))
	idx := rootIndex(w)
	if idx < 0 {
		return "", false
	}
	root := baseName(strings.TrimLeft(w[idx], "({"))
	if root == "" {
		return "", false
	}
	return root, true
}

// Unwrap returns cmd rewritten to start at its root command: leading
// assignments and wrappers are dropped and the root is reduced to its base
// name. Words are re-joined with single spaces and lose their quoting, so
// the result is for matching only and must not be executed.
func Unwrap(cmd string) string {
	w := words(strings.TrimSpace(cmd))
	idx := rootIndex(w)
	if idx < 0 {
		return ""
	}
	rest := append([]string{baseName(strings.TrimLeft(w[idx], "({"))}, w[idx+1:]...)
	return strings.Join(rest, " ")
}

// CommandRoots returns the root of every command in a compound line, in
// order. Commands without a determinable root are skipped.
func CommandRoots(cmd string) []string {
	var roots []string
	for _, c := range SplitCommands(cmd) {
		if root, ok := CommandRoot(c); ok {
			roots = append(roots, root)
		}
	}
	return roots
}

// StripShellWrapper removes a leading "bash -c", "sh -c", "zsh -c" or
// "cmd.exe /c" and the quotes around its argument, returning the inner
// command. A $'...' argument is returned with its escapes expanded. Other
// commands are returned trimmed.
func StripShellWrapper(cmd string) string {
	loc := shellWrapperRe.FindStringIndex(cmd)
	if loc == nil {
		return strings.TrimSpace(cmd)
	}
	inner := strings.TrimSpace(cmd[loc[1]:])
	if len(inner) >= 3 && strings.HasPrefix(inner, "$'") && strings.HasSuffix(inner, "'") {
		return expandANSIC(inner[2 : len(inner)-1])
	}
	if len(inner) >= 3 && strings.HasPrefix(inner, `$"`) && strings.HasSuffix(inner, `"`) {
		inner = inner[1:]
	}
	if len(inner) >= 2 {
		first, last := inner[0], inner[len(inner)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			inner = inner[1 : len(inner)-1]
		}
	}
	return inner
}
