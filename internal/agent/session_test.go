package agent

import (
	"context"
	"iter"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
	"google.golang.org/genai"

	"github.com/xdg/bastion/internal/clog"
	"github.com/xdg/bastion/internal/tools"
	"github.com/xdg/bastion/internal/turn"
)

func TestMain(m *testing.M) {
	clog.Discard()
	goleak.VerifyTestMain(m)
}

// scriptedChat answers each message with the next scripted response.
type scriptedChat struct {
	replies [][]*genai.Part
	sent    [][]*genai.Part
	ids     []string
}

func (c *scriptedChat) SendMessageStream(_ context.Context, parts []*genai.Part, promptID string) (iter.Seq2[*genai.GenerateContentResponse, error], error) {
	c.sent = append(c.sent, parts)
	c.ids = append(c.ids, promptID)
	var reply []*genai.Part
	if len(c.replies) > 0 {
		reply, c.replies = c.replies[0], c.replies[1:]
	} else {
		reply = []*genai.Part{{Text: "done"}}
	}
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		yield(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Role: string(genai.RoleModel), Parts: reply},
			FinishReason: genai.FinishReasonStop,
		}}}, nil)
	}, nil
}

func (c *scriptedChat) History(bool) []*genai.Content { return nil }

type fakeDispatcher struct {
	calls   []turn.ToolCallRequestInfo
	confirm bool
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, req turn.ToolCallRequestInfo) turn.ToolCallResponseInfo {
	d.calls = append(d.calls, req)
	if d.confirm {
		// Exercise the hook the way ShellTool does.
		if hook := tools.ConfirmationHookFrom(ctx); hook != nil {
			hook(req, []string{"git"})
		}
	}
	return turn.ToolCallResponseInfo{
		CallID: req.CallID,
		ResponseParts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
			ID: req.CallID, Name: req.Name, Response: map[string]any{"output": "ok"},
		}}},
	}
}

func fnCall(id, command string) *genai.Part {
	return &genai.Part{FunctionCall: &genai.FunctionCall{ID: id, Name: "run_shell_command", Args: map[string]any{"command": command}}}
}

func eventTypes(t *testing.T, seq iter.Seq2[turn.Event, error]) []turn.EventType {
	t.Helper()
	var types []turn.EventType
	for ev, err := range seq {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		types = append(types, ev.Type())
	}
	return types
}

// TestSession_ToolRoundTrip verifies tool responses are sent back as the
// next message and the session ends when the model stops calling tools.
func TestSession_ToolRoundTrip(t *testing.T) {
	chat := &scriptedChat{replies: [][]*genai.Part{
		{{Text: "Let me look."}, fnCall("c1", "ls"), fnCall("c2", "pwd")},
		{{Text: "Found it."}},
	}}
	disp := &fakeDispatcher{}
	s := NewSession(chat, disp, Options{ID: "s1"})

	got := eventTypes(t, s.Run(context.Background(), []*genai.Part{{Text: "go"}}))
	want := []turn.EventType{
		turn.EventTypeContent, turn.EventTypeToolCallRequest, turn.EventTypeToolCallRequest, turn.EventTypeFinished,
		turn.EventTypeToolCallResponse, turn.EventTypeToolCallResponse,
		turn.EventTypeContent, turn.EventTypeFinished,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if len(disp.calls) != 2 || disp.calls[0].CallID != "c1" || disp.calls[1].CallID != "c2" {
		t.Errorf("dispatched %+v", disp.calls)
	}
	if len(chat.sent) != 2 || len(chat.sent[1]) != 2 || chat.sent[1][0].FunctionResponse.ID != "c1" {
		t.Errorf("second message = %+v", chat.sent)
	}
	if diff := cmp.Diff([]string{"s1########1", "s1########2"}, chat.ids); diff != "" {
		t.Errorf("prompt ids mismatch (-want +got):\n%s", diff)
	}
	if s.Turns() != 2 {
		t.Errorf("Turns() = %d, want 2", s.Turns())
	}
}

// TestSession_MaxTurns verifies the session stops at its turn limit.
func TestSession_MaxTurns(t *testing.T) {
	chat := &scriptedChat{replies: [][]*genai.Part{
		{fnCall("a", "ls")}, {fnCall("b", "pwd")}, {fnCall("c", "date")},
	}}
	s := NewSession(chat, &fakeDispatcher{}, Options{MaxTurns: 2})

	got := eventTypes(t, s.Run(context.Background(), []*genai.Part{{Text: "go"}}))
	if got[len(got)-1] != turn.EventTypeMaxSessionTurns {
		t.Errorf("last event = %v, want max_session_turns", got[len(got)-1])
	}
	if len(chat.sent) != 2 {
		t.Errorf("sent %d messages, want 2", len(chat.sent))
	}

	zero := NewSession(&scriptedChat{}, &fakeDispatcher{}, Options{MaxTurns: Unlimited})
	if zero.maxTurns != Unlimited {
		t.Errorf("maxTurns = %d, want unlimited", zero.maxTurns)
	}
}

// TestSession_LoopDetected verifies repeated identical tool calls stop the
// session before they are dispatched.
func TestSession_LoopDetected(t *testing.T) {
	var replies [][]*genai.Part
	for range 5 {
		replies = append(replies, []*genai.Part{fnCall("", "ls -la")})
	}
	chat := &scriptedChat{replies: replies}
	disp := &fakeDispatcher{}
	s := NewSession(chat, disp, Options{LoopThreshold: 3, MaxTurns: Unlimited})

	got := eventTypes(t, s.Run(context.Background(), []*genai.Part{{Text: "go"}}))
	if got[len(got)-1] != turn.EventTypeLoopDetected {
		t.Errorf("last event = %v, want loop_detected", got[len(got)-1])
	}
	if len(disp.calls) != 2 {
		t.Errorf("dispatched %d calls, want 2", len(disp.calls))
	}
}

func TestSession_DifferentArgsNoLoop(t *testing.T) {
	s := NewSession(&scriptedChat{}, &fakeDispatcher{}, Options{LoopThreshold: 2})
	for _, cmd := range []string{"ls", "pwd", "ls", "pwd"} {
		if s.loopDetected(turn.ToolCallRequestInfo{Name: "run_shell_command", Args: map[string]any{"command": cmd}}) {
			t.Fatalf("loop detected at %q", cmd)
		}
	}
	if !s.loopDetected(turn.ToolCallRequestInfo{Name: "run_shell_command", Args: map[string]any{"command": "pwd"}}) {
		t.Error("second identical call should be a loop at threshold 2")
	}
}

// TestSession_ConfirmationEvent verifies confirmation requests from tools
// surface as events before the response.
func TestSession_ConfirmationEvent(t *testing.T) {
	chat := &scriptedChat{replies: [][]*genai.Part{{fnCall("c1", "git push")}}}
	disp := &fakeDispatcher{confirm: true}
	s := NewSession(chat, disp, Options{})

	var confirms []turn.ToolCallConfirmationEvent
	var types []turn.EventType
	for ev, err := range s.Run(context.Background(), []*genai.Part{{Text: "go"}}) {
		if err != nil {
			t.Fatal(err)
		}
		types = append(types, ev.Type())
		if c, ok := ev.(turn.ToolCallConfirmationEvent); ok {
			confirms = append(confirms, c)
		}
	}
	if len(confirms) != 1 || confirms[0].Request.CallID != "c1" || confirms[0].Commands[0] != "git" {
		t.Errorf("confirmations = %+v", confirms)
	}
	want := []turn.EventType{
		turn.EventTypeToolCallRequest, turn.EventTypeFinished,
		turn.EventTypeToolCallConfirmation, turn.EventTypeToolCallResponse,
		turn.EventTypeContent, turn.EventTypeFinished,
	}
	if diff := cmp.Diff(want, types); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

// TestSession_Cancelled verifies cancellation before tools run stops the
// session.
func TestSession_Cancelled(t *testing.T) {
	chat := &scriptedChat{replies: [][]*genai.Part{{fnCall("c1", "ls")}}}
	disp := &fakeDispatcher{}
	s := NewSession(chat, disp, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var types []turn.EventType
	for ev, err := range s.Run(ctx, []*genai.Part{{Text: "go"}}) {
		if err != nil {
			t.Fatal(err)
		}
		types = append(types, ev.Type())
		if ev.Type() == turn.EventTypeFinished {
			cancel()
		}
	}
	if types[len(types)-1] != turn.EventTypeUserCancelled || len(disp.calls) != 0 {
		t.Errorf("events = %v, dispatched = %d", types, len(disp.calls))
	}
}

// TestSession_ConsumerStops verifies breaking out of Run stops the session.
func TestSession_ConsumerStops(t *testing.T) {
	chat := &scriptedChat{replies: [][]*genai.Part{{fnCall("c1", "ls")}}}
	disp := &fakeDispatcher{}
	for range NewSession(chat, disp, Options{}).Run(context.Background(), []*genai.Part{{Text: "go"}}) {
		break
	}
	if len(disp.calls) != 0 || len(chat.sent) != 1 {
		t.Errorf("dispatched=%d sent=%d", len(disp.calls), len(chat.sent))
	}
}
