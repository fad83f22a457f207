package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/genai"

	"github.com/xdg/bastion/internal/clog"
	"github.com/xdg/bastion/internal/turn"
)

func TestMain(m *testing.M) {
	clog.Discard()
	m.Run()
}

type echoTool struct{ err error }

func (echoTool) Name() string { return "echo" }
func (echoTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{Name: "echo"}
}
func (e echoTool) Call(_ context.Context, req turn.ToolCallRequestInfo) (map[string]any, string, error) {
	if e.err != nil {
		return nil, "", e.err
	}
	return map[string]any{"echo": req.Args["text"]}, "echoed", nil
}

// TestDispatch_Unknown verifies unregistered tools produce an error
// response rather than a failure.
func TestDispatch_Unknown(t *testing.T) {
	r := NewRegistry()
	got := r.Dispatch(context.Background(), turn.ToolCallRequestInfo{CallID: "c1", Name: "nope"})

	if got.ErrorType != ErrorToolNotRegistered || got.Err == nil {
		t.Fatalf("response = %+v", got)
	}
	fr := got.ResponseParts[0].FunctionResponse
	if fr.ID != "c1" || fr.Name != "nope" || fr.Response["error"] != `tool "nope" not found in registry` {
		t.Errorf("function response = %+v", fr)
	}
}

func TestDispatch_Success(t *testing.T) {
	r := NewRegistry(echoTool{})
	got := r.Dispatch(context.Background(), turn.ToolCallRequestInfo{CallID: "c2", Name: "echo", Args: map[string]any{"text": "hi"}})

	if got.Err != nil || got.ErrorType != "" {
		t.Fatalf("unexpected error: %+v", got)
	}
	want := &genai.FunctionResponse{ID: "c2", Name: "echo", Response: map[string]any{"echo": "hi"}}
	if diff := cmp.Diff(want, got.ResponseParts[0].FunctionResponse); diff != "" {
		t.Errorf("function response mismatch (-want +got):\n%s", diff)
	}
	if got.ResultDisplay != "echoed" || got.CallID != "c2" {
		t.Errorf("response = %+v", got)
	}
}

// TestDispatch_ErrorTypes verifies typed errors keep their type and plain
// errors are execution failures.
func TestDispatch_ErrorTypes(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{errors.New("plain"), ErrorExecution},
		{newError(ErrorShellBlocked, "blocked"), ErrorShellBlocked},
	}
	for _, tt := range tests {
		got := NewRegistry(echoTool{err: tt.err}).Dispatch(context.Background(), turn.ToolCallRequestInfo{Name: "echo"})
		if got.ErrorType != tt.want {
			t.Errorf("ErrorType = %q, want %q", got.ErrorType, tt.want)
		}
	}
}

func TestRegistry_Declarations(t *testing.T) {
	r := NewRegistry(&ShellTool{}, echoTool{})
	var names []string
	for _, d := range r.Declarations() {
		names = append(names, d.Name)
	}
	if diff := cmp.Diff([]string{"echo", "run_shell_command"}, names); diff != "" {
		t.Errorf("declarations mismatch (-want +got):\n%s", diff)
	}
}
