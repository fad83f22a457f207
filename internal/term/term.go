// Package term writes bastion's user-facing output. It is separate from
// operational logging (see internal/clog).
//
// A Console has two streams. Model replies and command output go to stdout;
// tool activity, notices and problems go to stderr. In silent mode stdout
// and status lines are dropped, while notices, warnings and errors still
// print.
//
// The package-level functions write to a default Console bound to
// os.Stdout and os.Stderr.
package term

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/x/ansi"
)

// Console is a pair of output streams with a silent switch. It is safe for
// concurrent use.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
	silent bool
}

// New creates a Console writing to out and errOut.
func New(out, errOut io.Writer) *Console {
	return &Console{out: out, errOut: errOut}
}

// SetSilent enables or disables silent mode.
func (c *Console) SetSilent(s bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.silent = s
}

// Out returns the stdout writer, or io.Discard in silent mode.
func (c *Console) Out() io.Writer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.silent {
		return io.Discard
	}
	return c.out
}

// Err returns the stderr writer. It is never silenced.
func (c *Console) Err() io.Writer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errOut
}

func (c *Console) write(toErr, quiet bool, s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if quiet && c.silent {
		return
	}
	w := c.out
	if toErr {
		w = c.errOut
	}
	_, _ = io.WriteString(w, s)
}

// Print writes to stdout.
func (c *Console) Print(a ...any) { c.write(false, true, fmt.Sprint(a...)) }

// Printf writes to stdout.
func (c *Console) Printf(format string, a ...any) { c.write(false, true, fmt.Sprintf(format, a...)) }

// Println writes to stdout with a trailing newline.
func (c *Console) Println(a ...any) { c.write(false, true, fmt.Sprintln(a...)) }

// Status writes one line of tool or session activity to stderr, such as the
// command the model is about to run.
func (c *Console) Status(format string, a ...any) {
	c.write(true, true, fmt.Sprintf(format, a...)+"\n")
}

// Notice writes one unprefixed line to stderr, for outcomes the user must
// see even in silent mode, such as a session stopping early.
func (c *Console) Notice(format string, a ...any) {
	c.write(true, false, fmt.Sprintf(format, a...)+"\n")
}

// Warn writes a line prefixed with "Warning: " to stderr.
func (c *Console) Warn(format string, a ...any) {
	c.write(true, false, "Warning: "+fmt.Sprintf(format, a...)+"\n")
}

// Error writes a line prefixed with "Error: " to stderr.
func (c *Console) Error(format string, a ...any) {
	c.write(true, false, "Error: "+fmt.Sprintf(format, a...)+"\n")
}

// Sanitize removes terminal escape sequences from text the model or a
// command produced before it reaches the user's terminal.
func Sanitize(s string) string {
	return ansi.Strip(s)
}

var std = New(os.Stdout, os.Stderr)

// Default returns the Console used by the package-level functions.
func Default() *Console { return std }

// SetSilent sets silent mode on the default Console.
func SetSilent(s bool) { std.SetSilent(s) }

// SetOutput redirects the default Console's stdout. Nil restores os.Stdout.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	std.mu.Lock()
	defer std.mu.Unlock()
	std.out = w
}

// Reset restores the default Console to os.Stdout, os.Stderr and
// non-silent mode.
func Reset() {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.out = os.Stdout
	std.errOut = os.Stderr
	std.silent = false
}

// Print writes to the default Console's stdout.
func Print(a ...any) { std.Print(a...) }

// Printf writes to the default Console's stdout.
func Printf(format string, a ...any) { std.Printf(format, a...) }

// Println writes to the default Console's stdout.
func Println(a ...any) { std.Println(a...) }

// Error writes an error line to the default Console.
func Error(format string, a ...any) { std.Error(format, a...) }

// Stdout returns the default Console's stdout writer.
func Stdout() io.Writer { return std.Out() }
