package processor

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xdg/bastion/internal/audit"
	"github.com/xdg/bastion/internal/clog"
	"github.com/xdg/bastion/internal/history"
	"github.com/xdg/bastion/internal/permission"
	"github.com/xdg/bastion/internal/shellexec"
)

func TestMain(m *testing.M) {
	clog.Discard()
	m.Run()
}

// fakeExecutor returns canned output per command and records calls.
type fakeExecutor struct {
	mu      sync.Mutex
	outputs map[string]string
	calls   []string
	ctxs    []context.Context
}

func (f *fakeExecutor) Execute(ctx context.Context, command, cwd string, _ func(shellexec.OutputEvent)) (*shellexec.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, command)
	f.ctxs = append(f.ctxs, ctx)
	code := 0
	out, ok := f.outputs[command]
	if !ok {
		out = "<" + command + ">"
	}
	return shellexec.Completed(&shellexec.Result{ExitCode: &code, Stdout: out, Output: out}), nil
}

type fakeRecorder struct {
	entries []history.Entry
}

func (r *fakeRecorder) Record(_ context.Context, e history.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

func newContext(exec Executor, allow ...string) *Context {
	return &Context{
		Invocation: Invocation{Raw: "/review please", Name: "review", Args: "please"},
		Policy:     permission.Policy{Allow: allow},
		Session:    permission.NewSessionAllowlist(),
		WorkDir:    "/work",
		Executor:   exec,
	}
}

func TestShorthandArgumentProcessor(t *testing.T) {
	pc := newContext(nil)
	pc.Invocation.Args = "fix {{args}} loop"

	got, err := ShorthandArgumentProcessor{}.Process(context.Background(), "A {{args}} B {{args}}", pc)
	if err != nil {
		t.Fatal(err)
	}
	// Args are inserted verbatim and never re-expanded.
	if want := "A fix {{args}} loop B fix {{args}} loop"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDefaultArgumentProcessor(t *testing.T) {
	pc := newContext(nil)
	got, _ := DefaultArgumentProcessor{}.Process(context.Background(), "Review the code.", pc)
	if want := "Review the code.\n\n/review please"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	pc.Invocation.Args = "  "
	got, _ = DefaultArgumentProcessor{}.Process(context.Background(), "Review the code.", pc)
	if got != "Review the code." {
		t.Errorf("got %q, want prompt unchanged without args", got)
	}
}

// TestShellProcessor_NoInjections verifies a prompt without !{...} is
// returned unchanged and nothing runs.
func TestShellProcessor_NoInjections(t *testing.T) {
	exec := &fakeExecutor{}
	prompt := "Plain prompt with {braces} and ! marks"

	got, err := (&ShellProcessor{CommandName: "plain"}).Process(context.Background(), prompt, newContext(exec))
	if err != nil {
		t.Fatal(err)
	}
	if got != prompt {
		t.Errorf("got %q, want unchanged", got)
	}
	if len(exec.calls) != 0 {
		t.Errorf("executed %v, want nothing", exec.calls)
	}
}

// TestShellProcessor_SingleDisallowed verifies one unapproved command
// yields a confirmation request naming exactly it and executes nothing.
func TestShellProcessor_SingleDisallowed(t *testing.T) {
	exec := &fakeExecutor{}

	_, err := (&ShellProcessor{CommandName: "diff"}).Process(context.Background(), "Diff: !{git diff}", newContext(exec))

	var confirm *ConfirmationRequiredError
	if !errors.As(err, &confirm) {
		t.Fatalf("error = %v, want *ConfirmationRequiredError", err)
	}
	if diff := cmp.Diff([]string{"git"}, confirm.CommandsToConfirm); diff != "" {
		t.Errorf("CommandsToConfirm mismatch (-want +got):\n%s", diff)
	}
	if len(exec.calls) != 0 {
		t.Errorf("executed %v, want nothing", exec.calls)
	}
}

func TestShellProcessor_ConfirmationsUnioned(t *testing.T) {
	exec := &fakeExecutor{}
	prompt := "!{ls} !{git log | head} !{curl x && git status} !{wc -l f}"

	_, err := (&ShellProcessor{}).Process(context.Background(), prompt, newContext(exec, "ls"))

	var confirm *ConfirmationRequiredError
	if !errors.As(err, &confirm) {
		t.Fatalf("error = %v, want *ConfirmationRequiredError", err)
	}
	if diff := cmp.Diff([]string{"git", "head", "curl", "wc"}, confirm.CommandsToConfirm); diff != "" {
		t.Errorf("CommandsToConfirm mismatch (-want +got):\n%s", diff)
	}
	if len(exec.calls) != 0 {
		t.Errorf("executed %v, want nothing", exec.calls)
	}
}

// TestShellProcessor_HardDenialWins verifies a blocked command fails the
// whole prompt even when other commands only need confirmation.
func TestShellProcessor_HardDenialWins(t *testing.T) {
	exec := &fakeExecutor{}
	pc := newContext(exec, "ls")
	pc.Policy.Deny = []string{"rm"}

	_, err := (&ShellProcessor{CommandName: "cleanup"}).Process(context.Background(), "!{curl x} then !{rm -rf build}", pc)

	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("error = %v, want *BlockedError", err)
	}
	if blocked.CommandName != "cleanup" || blocked.Command != "rm -rf build" {
		t.Errorf("blocked = %+v", blocked)
	}
	want := `cleanup cannot be run. Blocked command: "rm -rf build". Reason: Command 'rm -rf build' is blocked by configuration`
	if blocked.Error() != want {
		t.Errorf("Error() = %q, want %q", blocked.Error(), want)
	}
	if len(exec.calls) != 0 {
		t.Errorf("executed %v, want nothing", exec.calls)
	}
}

func TestShellProcessor_SubstitutionBlocked(t *testing.T) {
	_, err := (&ShellProcessor{CommandName: "x"}).Process(context.Background(), "!{echo $(whoami)}", newContext(&fakeExecutor{}, "echo"))
	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("error = %v, want *BlockedError", err)
	}
	if blocked.Reason != permission.ReasonSubstitution {
		t.Errorf("Reason = %q", blocked.Reason)
	}
}

// TestShellProcessor_ExecutesInOrder verifies allowed commands run
// sequentially and their output replaces each injection positionally.
func TestShellProcessor_ExecutesInOrder(t *testing.T) {
	exec := &fakeExecutor{outputs: map[string]string{
		"git status": "clean !{ls}",
		"ls":         "a b",
	}}
	rec := &fakeRecorder{}
	var auditBuf bytes.Buffer
	pc := newContext(exec, "git", "ls")
	pc.Recorder = rec
	pc.Audit = audit.NewLogger(&auditBuf)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := (&ShellProcessor{CommandName: "st"}).Process(ctx, "S: !{ git status } L: !{ls} E: !{  }", pc)
	if err != nil {
		t.Fatal(err)
	}
	if want := "S: clean !{ls} L: a b E: "; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if diff := cmp.Diff([]string{"git status", "ls"}, exec.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	for i, c := range exec.ctxs {
		if c.Err() != nil {
			t.Errorf("call %d ran with a cancelled context", i)
		}
	}
	if len(rec.entries) != 2 || rec.entries[0].Source != history.SourceTemplate || rec.entries[1].Cwd != "/work" {
		t.Errorf("recorded %+v", rec.entries)
	}
	if n := strings.Count(auditBuf.String(), " COMPLETE "); n != 2 {
		t.Errorf("audit COMPLETE lines = %d, want 2:\n%s", n, auditBuf.String())
	}
}

// TestShellProcessor_ExpandArgs verifies {{args}} is replaced only in the
// template text, never inside command output.
func TestShellProcessor_ExpandArgs(t *testing.T) {
	exec := &fakeExecutor{outputs: map[string]string{"cat notes": "see {{args}}"}}
	pc := newContext(exec, "cat")

	got, err := (&ShellProcessor{CommandName: "n", ExpandArgs: true}).Process(context.Background(), "{{args}}: !{cat notes} ({{args}})", pc)
	if err != nil {
		t.Fatal(err)
	}
	if want := "please: see {{args}} (please)"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	got, err = (&ShellProcessor{ExpandArgs: true}).Process(context.Background(), "no injections {{args}}", pc)
	if err != nil {
		t.Fatal(err)
	}
	if want := "no injections please"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// TestShellProcessor_SessionApprovalRetry verifies approving the requested
// commands into the session lets a second pass run.
func TestShellProcessor_SessionApprovalRetry(t *testing.T) {
	exec := &fakeExecutor{outputs: map[string]string{"date": "today"}}
	pc := newContext(exec)
	proc := &ShellProcessor{CommandName: "when"}

	_, err := proc.Process(context.Background(), "It is !{date}", pc)
	var confirm *ConfirmationRequiredError
	if !errors.As(err, &confirm) {
		t.Fatalf("first pass error = %v", err)
	}
	if err := pc.Session.AddAll(confirm.CommandsToConfirm); err != nil {
		t.Fatal(err)
	}

	got, err := proc.Process(context.Background(), "It is !{date}", pc)
	if err != nil {
		t.Fatalf("second pass error = %v", err)
	}
	if got != "It is today" {
		t.Errorf("got %q", got)
	}
}

func TestShellProcessor_NoExecutor(t *testing.T) {
	_, err := (&ShellProcessor{}).Process(context.Background(), "!{ls}", newContext(nil, "ls"))
	if !errors.Is(err, ErrNoExecutor) {
		t.Errorf("error = %v, want ErrNoExecutor", err)
	}
}

type failingProcessor struct{}

func (failingProcessor) Process(context.Context, string, *Context) (string, error) {
	return "", errors.New("boom")
}

type upperProcessor struct{}

func (upperProcessor) Process(_ context.Context, prompt string, _ *Context) (string, error) {
	return strings.ToUpper(prompt), nil
}

// TestPipeline verifies ordering and that the first error stops processing.
func TestPipeline(t *testing.T) {
	pc := newContext(nil)
	pc.Invocation.Args = "x"

	got, err := Pipeline{ShorthandArgumentProcessor{}, upperProcessor{}}.Process(context.Background(), "a {{args}}", pc)
	if err != nil || got != "A X" {
		t.Errorf("got (%q, %v), want (\"A X\", nil)", got, err)
	}

	got, err = Pipeline{failingProcessor{}, upperProcessor{}}.Process(context.Background(), "a", pc)
	if err == nil || got != "" {
		t.Errorf("got (%q, %v), want error", got, err)
	}
}
