package tools

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xdg/bastion/internal/audit"
	"github.com/xdg/bastion/internal/history"
	"github.com/xdg/bastion/internal/permission"
	"github.com/xdg/bastion/internal/prompt"
	"github.com/xdg/bastion/internal/shellexec"
	"github.com/xdg/bastion/internal/turn"
)

type execCall struct {
	command string
	cwd     string
}

type fakeExecutor struct {
	calls  []execCall
	result *shellexec.Result
	events []shellexec.OutputEvent
}

func (f *fakeExecutor) Execute(_ context.Context, command, cwd string, onEvent func(shellexec.OutputEvent)) (*shellexec.Handle, error) {
	f.calls = append(f.calls, execCall{command, cwd})
	for _, ev := range f.events {
		if onEvent != nil {
			onEvent(ev)
		}
	}
	res := f.result
	if res == nil {
		code := 0
		res = &shellexec.Result{ExitCode: &code, Stdout: "out", Output: "out"}
	}
	return shellexec.Completed(res), nil
}

type fakeConfirmer struct {
	approval prompt.Approval
	err      error
	calls    [][]string
}

func (c *fakeConfirmer) Confirm(_ string, roots []string) (prompt.Approval, error) {
	c.calls = append(c.calls, roots)
	return c.approval, c.err
}

type memRecorder struct{ entries []history.Entry }

func (r *memRecorder) Record(_ context.Context, e history.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

func newShellTool(policy permission.Policy) (*ShellTool, *fakeExecutor) {
	exec := &fakeExecutor{}
	return &ShellTool{
		Executor: exec,
		Policy:   func() permission.Policy { return policy },
		Session:  permission.NewSessionAllowlist(),
		WorkDir:  filepath.Join(string(filepath.Separator), "work"),
	}, exec
}

func call(command string) turn.ToolCallRequestInfo {
	return turn.ToolCallRequestInfo{CallID: "c", Name: permission.ShellToolName, Args: map[string]any{"command": command}}
}

func errorType(err error) string {
	var te *Error
	if errors.As(err, &te) {
		return te.Type
	}
	return ""
}

// TestShellTool_AllowedRuns verifies an allowed command runs in the work
// directory and its result is returned.
func TestShellTool_AllowedRuns(t *testing.T) {
	tool, exec := newShellTool(permission.Policy{})
	rec := &memRecorder{}
	tool.Recorder = rec

	resp, display, err := tool.Call(context.Background(), call("ls -la"))
	if err != nil {
		t.Fatal(err)
	}
	if len(exec.calls) != 1 || exec.calls[0].command != "ls -la" || exec.calls[0].cwd != tool.WorkDir {
		t.Errorf("calls = %+v", exec.calls)
	}
	if resp["stdout"] != "out" || resp["exit_code"] != 0 || resp["directory"] != "(root)" || resp["error"] != "(none)" {
		t.Errorf("response = %v", resp)
	}
	if display != "out" {
		t.Errorf("display = %q", display)
	}
	if len(rec.entries) != 1 || rec.entries[0].Source != history.SourceTool {
		t.Errorf("recorded %+v", rec.entries)
	}
}

func TestShellTool_Directory(t *testing.T) {
	tool, exec := newShellTool(permission.Policy{})

	req := call("make")
	req.Args["directory"] = "sub/dir"
	if _, _, err := tool.Call(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(tool.WorkDir, "sub", "dir"); exec.calls[0].cwd != want {
		t.Errorf("cwd = %q, want %q", exec.calls[0].cwd, want)
	}

	req.Args["directory"] = "../escape"
	_, _, err := tool.Call(context.Background(), req)
	if errorType(err) != ErrorInvalidParams {
		t.Errorf("error = %v, want invalid params", err)
	}
}

func TestShellTool_InvalidParams(t *testing.T) {
	tool, exec := newShellTool(permission.Policy{})
	for _, args := range []map[string]any{
		{},
		{"command": "   "},
		{"command": 42},
		{"command": "ls", "directory": true},
	} {
		_, _, err := tool.Call(context.Background(), turn.ToolCallRequestInfo{Args: args})
		if errorType(err) != ErrorInvalidParams {
			t.Errorf("args %v: error = %v, want invalid params", args, err)
		}
	}
	if len(exec.calls) != 0 {
		t.Errorf("executed %+v", exec.calls)
	}
}

// TestShellTool_HardDenial verifies blocked commands never reach the
// confirmer or the executor.
func TestShellTool_HardDenial(t *testing.T) {
	tool, exec := newShellTool(permission.Policy{Deny: []string{"rm"}})
	conf := &fakeConfirmer{approval: prompt.ApprovalSession}
	tool.Confirmer = conf

	for _, cmd := range []string{"rm -rf /", "ls && rm x", "echo $(id)"} {
		_, _, err := tool.Call(context.Background(), call(cmd))
		if errorType(err) != ErrorShellBlocked {
			t.Errorf("%q: error = %v, want shell_blocked", cmd, err)
		}
	}
	if len(exec.calls) != 0 || len(conf.calls) != 0 {
		t.Errorf("exec=%v confirm=%v, want none", exec.calls, conf.calls)
	}
}

// TestShellTool_SoftDenial verifies the confirmation outcomes.
func TestShellTool_SoftDenial(t *testing.T) {
	policy := permission.Policy{Allow: []string{"ls"}, Strict: true}

	t.Run("no confirmer", func(t *testing.T) {
		tool, exec := newShellTool(policy)
		_, _, err := tool.Call(context.Background(), call("git status"))
		if errorType(err) != ErrorShellNotApproved || len(exec.calls) != 0 {
			t.Errorf("error = %v, calls = %v", err, exec.calls)
		}
	})

	t.Run("denied", func(t *testing.T) {
		tool, exec := newShellTool(policy)
		tool.Confirmer = &fakeConfirmer{approval: prompt.ApprovalDeny}
		_, _, err := tool.Call(context.Background(), call("git status"))
		if errorType(err) != ErrorShellNotApproved || len(exec.calls) != 0 {
			t.Errorf("error = %v, calls = %v", err, exec.calls)
		}
	})

	t.Run("confirmer error denies", func(t *testing.T) {
		tool, exec := newShellTool(policy)
		tool.Confirmer = &fakeConfirmer{approval: prompt.ApprovalSession, err: errors.New("eof")}
		_, _, err := tool.Call(context.Background(), call("git status"))
		if errorType(err) != ErrorShellNotApproved || len(exec.calls) != 0 {
			t.Errorf("error = %v, calls = %v", err, exec.calls)
		}
	})

	t.Run("once", func(t *testing.T) {
		tool, exec := newShellTool(policy)
		conf := &fakeConfirmer{approval: prompt.ApprovalOnce}
		tool.Confirmer = conf
		for range 2 {
			if _, _, err := tool.Call(context.Background(), call("git status | wc -l")); err != nil {
				t.Fatal(err)
			}
		}
		if len(conf.calls) != 2 || len(exec.calls) != 2 {
			t.Errorf("confirm calls = %v, exec calls = %d", conf.calls, len(exec.calls))
		}
		if tool.Session.Len() != 0 {
			t.Errorf("session = %v, want empty", tool.Session.List())
		}
	})

	t.Run("session", func(t *testing.T) {
		tool, exec := newShellTool(policy)
		conf := &fakeConfirmer{approval: prompt.ApprovalSession}
		tool.Confirmer = conf

		var hooked [][]string
		ctx := WithConfirmationHook(context.Background(), func(_ turn.ToolCallRequestInfo, commands []string) {
			hooked = append(hooked, commands)
		})
		for range 2 {
			if _, _, err := tool.Call(ctx, call("git status | wc -l")); err != nil {
				t.Fatal(err)
			}
		}
		if len(conf.calls) != 1 || len(hooked) != 1 || len(exec.calls) != 2 {
			t.Errorf("confirm=%v hooked=%v exec=%d", conf.calls, hooked, len(exec.calls))
		}
		if strings.Join(conf.calls[0], ",") != "git,wc" {
			t.Errorf("confirmed roots = %v", conf.calls[0])
		}
	})
}

// TestShellTool_StreamsOutput verifies output events reach the sink.
func TestShellTool_StreamsOutput(t *testing.T) {
	tool, exec := newShellTool(permission.Policy{})
	exec.events = []shellexec.OutputEvent{
		shellexec.DataEvent{Stream: shellexec.StreamStdout, Chunk: "hello "},
		shellexec.DataEvent{Stream: shellexec.StreamStderr, Chunk: "world\n"},
		shellexec.BinaryDetectedEvent{},
		shellexec.BinaryProgressEvent{BytesReceived: 10},
	}
	var out bytes.Buffer
	tool.Output = &out

	if _, _, err := tool.Call(context.Background(), call("cat")); err != nil {
		t.Fatal(err)
	}
	if want := "hello world\n[binary output detected, halting stream]\n"; out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

// TestShellTool_ResultShapes verifies signals, aborts and errors appear in
// the response.
func TestShellTool_ResultShapes(t *testing.T) {
	tool, exec := newShellTool(permission.Policy{})
	var auditBuf bytes.Buffer
	tool.Audit = audit.NewLogger(&auditBuf)

	exec.result = &shellexec.Result{Signal: "SIGTERM", Aborted: true}
	resp, display, err := tool.Call(context.Background(), call("sleep 10"))
	if err != nil {
		t.Fatal(err)
	}
	if resp["exit_code"] != nil || resp["signal"] != "SIGTERM" || resp["aborted"] != true {
		t.Errorf("response = %v", resp)
	}
	if display != "Command cancelled by user." {
		t.Errorf("display = %q", display)
	}
	if !strings.Contains(auditBuf.String(), " ABORT ") {
		t.Errorf("audit = %q", auditBuf.String())
	}

	exec.result = &shellexec.Result{Err: errors.New("spawn failed")}
	resp, _, _ = tool.Call(context.Background(), call("ls"))
	if resp["error"] != "spawn failed" {
		t.Errorf("response = %v", resp)
	}
}
