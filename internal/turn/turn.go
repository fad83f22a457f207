// Package turn runs one exchange with the model: it sends the request,
// reads the streamed response and turns it into a sequence of typed events
// for the session loop and the UI.
package turn

import (
	"context"
	"fmt"
	"iter"
	"math/rand/v2"
	"regexp"
	"slices"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/xdg/bastion/internal/clog"
)

var log = clog.For("turn")

// Report label and site used when the model stream fails.
const (
	ReportLabel = "Error when talking to Gemini API"
	ReportSite  = "Turn.Run-sendMessageStream"
)

// UndefinedToolName names function calls that arrived without a name.
const UndefinedToolName = "undefined_tool_name"

// Chat is the model conversation a turn talks to.
type Chat interface {
	// SendMessageStream sends parts as the next user message and returns
	// the streamed response.
	SendMessageStream(ctx context.Context, parts []*genai.Part, promptID string) (iter.Seq2[*genai.GenerateContentResponse, error], error)
	// History returns the conversation so far. Curated history omits
	// invalid or empty model turns.
	History(curated bool) []*genai.Content
}

// Reporter records failures for later diagnosis. Report must not block
// for long and never fails the caller.
type Reporter interface {
	Report(ctx context.Context, err error, label string, contents []*genai.Content, site string)
}

// subjectRe matches the bold subject of a thought, across newlines.
var subjectRe = regexp.MustCompile(`(?s)\*\*(.*?)\*\*`)

// Turn is one request/response exchange. Its state is owned by the
// goroutine ranging over Run.
type Turn struct {
	chat     Chat
	promptID string
	reporter Reporter
	now      func() time.Time

	pendingToolCalls []ToolCallRequestInfo
	debugResponses   []*genai.GenerateContentResponse
	finishReason     genai.FinishReason
}

// New creates a Turn for chat. reporter may be nil.
func New(chat Chat, promptID string, reporter Reporter) *Turn {
	return &Turn{
		chat:     chat,
		promptID: promptID,
		reporter: reporter,
		now:      time.Now,
	}
}

// PromptID returns the id the turn was created with.
func (t *Turn) PromptID() string { return t.promptID }

// PendingToolCalls returns every tool call the model requested during the
// turn, in order. The list is never drained.
func (t *Turn) PendingToolCalls() []ToolCallRequestInfo { return t.pendingToolCalls }

// FinishReason returns the last finish reason seen, or "" if none.
func (t *Turn) FinishReason() genai.FinishReason { return t.finishReason }

// DebugResponses returns the raw stream increments processed so far.
func (t *Turn) DebugResponses() []*genai.GenerateContentResponse { return t.debugResponses }

// Run sends parts and yields the resulting events. An UnauthorizedError is
// yielded as (nil, err) and ends the sequence; every other failure becomes
// an ErrorEvent or, if ctx is done, a UserCancelledEvent.
func (t *Turn) Run(ctx context.Context, parts []*genai.Part) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		stream, err := t.chat.SendMessageStream(ctx, parts, t.promptID)
		if err != nil {
			t.fail(ctx, parts, err, yield)
			return
		}

		for resp, err := range stream {
			if err != nil {
				t.fail(ctx, parts, err, yield)
				return
			}
			if ctx.Err() != nil {
				yield(UserCancelledEvent{}, nil)
				return
			}
			if !t.handle(resp, yield) {
				return
			}
		}
	}
}

// handle processes one increment. It returns false when the consumer
// stopped iterating.
func (t *Turn) handle(resp *genai.GenerateContentResponse, yield func(Event, error) bool) bool {
	t.debugResponses = append(t.debugResponses, resp)

	cand := firstCandidate(resp)
	if cand != nil && cand.Content != nil && len(cand.Content.Parts) > 0 {
		if p := cand.Content.Parts[0]; p != nil && p.Thought {
			return yield(parseThought(p.Text), nil)
		}
	}

	if text := responseText(cand); text != "" {
		if !yield(ContentEvent{Text: text}, nil) {
			return false
		}
	}

	for _, fc := range functionCalls(cand) {
		info := t.toolCallRequest(fc)
		t.pendingToolCalls = append(t.pendingToolCalls, info)
		if !yield(ToolCallRequestEvent{Info: info}, nil) {
			return false
		}
	}

	if cand != nil && cand.FinishReason != "" {
		t.finishReason = cand.FinishReason
		return yield(FinishedEvent{Reason: cand.FinishReason}, nil)
	}
	return true
}

func (t *Turn) toolCallRequest(fc *genai.FunctionCall) ToolCallRequestInfo {
	callID := fc.ID
	if callID == "" {
		callID = fmt.Sprintf("%s-%d-%x", fc.Name, t.now().UnixMilli(), rand.Uint64())
	}
	name := fc.Name
	if name == "" {
		name = UndefinedToolName
	}
	args := fc.Args
	if args == nil {
		args = map[string]any{}
	}
	return ToolCallRequestInfo{
		CallID:   callID,
		Name:     name,
		Args:     args,
		PromptID: t.promptID,
	}
}

// fail handles an error from the stream or from starting it.
func (t *Turn) fail(ctx context.Context, parts []*genai.Part, err error, yield func(Event, error) bool) {
	err = Classify(err)
	if _, ok := err.(*UnauthorizedError); ok {
		yield(nil, err)
		return
	}
	if ctx.Err() != nil {
		yield(UserCancelledEvent{}, nil)
		return
	}

	log.Warn("model stream failed (prompt %s): %v", t.promptID, err)
	if t.reporter != nil {
		contents := append(slices.Clone(t.chat.History(true)), genai.NewContentFromParts(parts, genai.RoleUser))
		t.reporter.Report(ctx, err, ReportLabel, contents, ReportSite)
	}
	yield(ErrorEvent{Message: err.Error(), Status: statusOf(err)}, nil)
}

// parseThought splits a thought into its **subject** and the remaining text.
func parseThought(raw string) ThoughtEvent {
	loc := subjectRe.FindStringSubmatchIndex(raw)
	if loc == nil {
		return ThoughtEvent{Description: strings.TrimSpace(raw)}
	}
	return ThoughtEvent{
		Subject:     strings.TrimSpace(raw[loc[2]:loc[3]]),
		Description: strings.TrimSpace(raw[:loc[0]] + raw[loc[1]:]),
	}
}

func firstCandidate(resp *genai.GenerateContentResponse) *genai.Candidate {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	return resp.Candidates[0]
}

// responseText concatenates the non-thought text parts of cand.
func responseText(cand *genai.Candidate) string {
	if cand == nil || cand.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range cand.Content.Parts {
		if p != nil && !p.Thought {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func functionCalls(cand *genai.Candidate) []*genai.FunctionCall {
	if cand == nil || cand.Content == nil {
		return nil
	}
	var calls []*genai.FunctionCall
	for _, p := range cand.Content.Parts {
		if p != nil && p.FunctionCall != nil {
			calls = append(calls, p.FunctionCall)
		}
	}
	return calls
}
