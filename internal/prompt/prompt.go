// Package prompt asks the user questions on the terminal: which approval to
// grant a shell command, whether to replace an existing file, and for an API
// key the environment did not provide.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// maxAttempts is how many unrecognised answers a prompt accepts before
// giving up.
const maxAttempts = 3

// ErrInvalidAnswer is returned when the user never gives a recognised
// answer.
var ErrInvalidAnswer = errors.New("invalid answer")

// Option is one choice offered by a Prompter. Key is an optional shortcut
// accepted in place of the option's number.
type Option struct {
	Key   string
	Label string
}

// Prompter presents a question with numbered options and returns the
// zero-based index of the chosen one.
type Prompter interface {
	Prompt(question string, options []Option, defaultIdx int) (int, error)
}

// lineReader reads trimmed lines from a stream. Its buffer lives as long as
// the prompter, so answers typed ahead are kept for the next question.
type lineReader struct {
	src io.Reader
	buf *bufio.Reader
}

// next returns the next line. eof is set when the stream ended, in which
// case line holds whatever preceded the end.
func (l *lineReader) next() (line string, eof bool, err error) {
	if l.buf == nil {
		l.buf = bufio.NewReader(l.src)
	}
	s, err := l.buf.ReadString('\n')
	switch {
	case errors.Is(err, io.EOF):
		return strings.TrimSpace(s), true, nil
	case err != nil:
		return "", false, fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(s), false, nil
}

// ask writes question, reads answers until parse accepts one, and returns
// the parsed value. An empty answer or end of input yields def. Unrecognised
// answers are reported and asked again up to maxAttempts times.
func ask[T any](out io.Writer, lines *lineReader, question string, def T, parse func(string) (T, bool)) (T, error) {
	for attempt := 1; ; attempt++ {
		_, _ = fmt.Fprint(out, question)
		line, eof, err := lines.next()
		if err != nil {
			return def, err
		}
		if line == "" {
			if eof {
				_, _ = fmt.Fprintln(out)
			}
			return def, nil
		}
		if v, ok := parse(line); ok {
			return v, nil
		}
		if eof || attempt == maxAttempts {
			return def, fmt.Errorf("%w: %q", ErrInvalidAnswer, line)
		}
		_, _ = fmt.Fprintf(out, "%q is not a valid answer.\n", line)
	}
}

// StdinPrompter implements Prompter on a line-oriented reader and writer,
// normally the terminal.
type StdinPrompter struct {
	Out   io.Writer
	lines lineReader
}

// NewStdinPrompter creates a StdinPrompter that reads from r and writes to w.
func NewStdinPrompter(r io.Reader, w io.Writer) *StdinPrompter {
	return &StdinPrompter{Out: w, lines: lineReader{src: r}}
}

// Prompt lists the options numbered from 1, marking the default, and
// accepts either a number or an option key (case-insensitive).
func (p *StdinPrompter) Prompt(question string, options []Option, defaultIdx int) (int, error) {
	if len(options) == 0 {
		return 0, errors.New("no options provided")
	}
	if defaultIdx < 0 || defaultIdx >= len(options) {
		return 0, fmt.Errorf("default index %d out of range [0, %d)", defaultIdx, len(options))
	}

	_, _ = fmt.Fprintln(p.Out, question)
	for i, opt := range options {
		var b strings.Builder
		fmt.Fprintf(&b, "  %d. ", i+1)
		if opt.Key != "" {
			fmt.Fprintf(&b, "[%s] ", opt.Key)
		}
		b.WriteString(opt.Label)
		if i == defaultIdx {
			b.WriteString(" (default)")
		}
		_, _ = fmt.Fprintln(p.Out, b.String())
	}

	return ask(p.Out, &p.lines, fmt.Sprintf("Enter selection [%d]: ", defaultIdx+1), defaultIdx, func(s string) (int, bool) {
		return selectOption(s, options)
	})
}

func selectOption(answer string, options []Option) (int, bool) {
	if n, err := strconv.Atoi(answer); err == nil {
		return n - 1, n >= 1 && n <= len(options)
	}
	for i, opt := range options {
		if opt.Key != "" && strings.EqualFold(answer, opt.Key) {
			return i, true
		}
	}
	return 0, false
}

// YesNoPrompter asks a yes/no question.
type YesNoPrompter interface {
	// PromptYesNo asks question and returns the answer. An empty answer
	// returns defaultYes.
	PromptYesNo(question string, defaultYes bool) (bool, error)
}

// StdinYesNoPrompter implements YesNoPrompter on a line-oriented reader and
// writer.
type StdinYesNoPrompter struct {
	Out   io.Writer
	lines lineReader
}

// NewStdinYesNoPrompter creates a StdinYesNoPrompter that reads from r and
// writes to w.
func NewStdinYesNoPrompter(r io.Reader, w io.Writer) *StdinYesNoPrompter {
	return &StdinYesNoPrompter{Out: w, lines: lineReader{src: r}}
}

// PromptYesNo writes question followed by "[Y/n]" or "[y/N]" to show the
// default. It accepts y, yes, n and no in any case.
func (p *StdinYesNoPrompter) PromptYesNo(question string, defaultYes bool) (bool, error) {
	hint := "[y/N]"
	if defaultYes {
		hint = "[Y/n]"
	}
	return ask(p.Out, &p.lines, fmt.Sprintf("%s %s: ", question, hint), defaultYes, parseYesNo)
}

func parseYesNo(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "y", "yes":
		return true, true
	case "n", "no":
		return false, true
	}
	return false, false
}
