package term

import (
	"bytes"
	"io"
	"testing"
)

func newTestConsole() (*Console, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return New(&out, &errOut), &out, &errOut
}

// TestConsole_Streams verifies each writer lands on its stream with its
// prefix.
func TestConsole_Streams(t *testing.T) {
	c, out, errOut := newTestConsole()

	c.Print("reply ")
	c.Printf("%d files\n", 3)
	c.Println("done")
	c.Status("> %s", "git status")
	c.Notice("Request cancelled.")
	c.Warn("policy %s ignored", "entry")
	c.Error("quota exceeded (status %d)", 429)

	if got, want := out.String(), "reply 3 files\ndone\n"; got != want {
		t.Errorf("stdout = %q, want %q", got, want)
	}
	want := "> git status\nRequest cancelled.\nWarning: policy entry ignored\nError: quota exceeded (status 429)\n"
	if got := errOut.String(); got != want {
		t.Errorf("stderr = %q, want %q", got, want)
	}
}

// TestConsole_Silent verifies silent mode drops stdout and status lines but
// keeps notices, warnings and errors.
func TestConsole_Silent(t *testing.T) {
	c, out, errOut := newTestConsole()
	c.SetSilent(true)

	c.Println("model text")
	c.Status("> ls")
	_, _ = io.WriteString(c.Out(), "streamed")
	c.Notice("Stopped.")
	c.Warn("careful")
	c.Error("failed")

	if out.Len() != 0 {
		t.Errorf("stdout = %q, want empty in silent mode", out.String())
	}
	if got, want := errOut.String(), "Stopped.\nWarning: careful\nError: failed\n"; got != want {
		t.Errorf("stderr = %q, want %q", got, want)
	}
	if c.Err() != errOut {
		t.Error("Err() should not be silenced")
	}

	c.SetSilent(false)
	if c.Out() != out {
		t.Error("Out() should return stdout once silent mode is off")
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain\n", "plain\n"},
		{"\x1b[31mred\x1b[0m text", "red text"},
		{"\x1b[2J\x1b[Hcleared", "cleared"},
		{"tab\tkept", "tab\tkept"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestDefaultConsole verifies the package-level functions and their reset.
func TestDefaultConsole(t *testing.T) {
	defer Reset()

	var out bytes.Buffer
	SetOutput(&out)
	Print("a")
	Printf("%s", "b")
	Println("c")
	if got := out.String(); got != "abc\n" {
		t.Errorf("stdout = %q, want %q", got, "abc\n")
	}
	if Stdout() != &out || Default().Out() != &out {
		t.Error("Stdout() should return the redirected writer")
	}

	SetSilent(true)
	if Stdout() != io.Discard {
		t.Error("Stdout() should discard in silent mode")
	}

	Reset()
	if Default().Out() == &out {
		t.Error("Reset should restore os.Stdout")
	}
}
