package turn

import "google.golang.org/genai"

// EventType discriminates between event kinds.
type EventType string

const (
	// EventTypeContent fires for model text.
	EventTypeContent EventType = "content"
	// EventTypeThought fires for a model thought summary.
	EventTypeThought EventType = "thought"
	// EventTypeToolCallRequest fires when the model asks for a tool call.
	EventTypeToolCallRequest EventType = "tool_call_request"
	// EventTypeToolCallResponse fires when a tool call has been answered.
	EventTypeToolCallResponse EventType = "tool_call_response"
	// EventTypeToolCallConfirmation fires when a tool call awaits approval.
	EventTypeToolCallConfirmation EventType = "tool_call_confirmation"
	// EventTypeUserCancelled fires when the turn's context is cancelled.
	EventTypeUserCancelled EventType = "user_cancelled"
	// EventTypeError fires when talking to the model fails.
	EventTypeError EventType = "error"
	// EventTypeChatCompressed fires when history has been compressed.
	EventTypeChatCompressed EventType = "chat_compressed"
	// EventTypeMaxSessionTurns fires when a session hits its turn limit.
	EventTypeMaxSessionTurns EventType = "max_session_turns"
	// EventTypeFinished fires when the model reports a finish reason.
	EventTypeFinished EventType = "finished"
	// EventTypeLoopDetected fires when a session repeats itself.
	EventTypeLoopDetected EventType = "loop_detected"
)

// Event is the interface for all events.
type Event interface {
	Type() EventType
}

// ToolCallRequestInfo describes one tool call requested by the model.
type ToolCallRequestInfo struct {
	CallID            string
	Name              string
	Args              map[string]any
	IsClientInitiated bool
	PromptID          string
}

// ToolCallResponseInfo is the outcome of a tool call.
type ToolCallResponseInfo struct {
	CallID        string
	ResponseParts []*genai.Part
	ResultDisplay string
	Err           error
	// ErrorType is a stable identifier for Err, empty on success.
	ErrorType string
}

// CompressionInfo reports token counts around a history compression.
type CompressionInfo struct {
	OriginalTokenCount int
	NewTokenCount      int
}

// ContentEvent carries model text.
type ContentEvent struct {
	Text string
}

// Type returns the event type.
func (e ContentEvent) Type() EventType { return EventTypeContent }

// ThoughtEvent carries a thought summary. Subject is the bold heading of
// the thought, Description the rest of its text.
type ThoughtEvent struct {
	Subject     string
	Description string
}

// Type returns the event type.
func (e ThoughtEvent) Type() EventType { return EventTypeThought }

// ToolCallRequestEvent carries a requested tool call.
type ToolCallRequestEvent struct {
	Info ToolCallRequestInfo
}

// Type returns the event type.
func (e ToolCallRequestEvent) Type() EventType { return EventTypeToolCallRequest }

// ToolCallResponseEvent carries a tool call outcome.
type ToolCallResponseEvent struct {
	Info ToolCallResponseInfo
}

// Type returns the event type.
func (e ToolCallResponseEvent) Type() EventType { return EventTypeToolCallResponse }

// ToolCallConfirmationEvent reports a tool call waiting on the user to
// approve the listed commands.
type ToolCallConfirmationEvent struct {
	Request  ToolCallRequestInfo
	Commands []string
}

// Type returns the event type.
func (e ToolCallConfirmationEvent) Type() EventType { return EventTypeToolCallConfirmation }

// UserCancelledEvent fires when the turn stops because its context ended.
type UserCancelledEvent struct{}

// Type returns the event type.
func (e UserCancelledEvent) Type() EventType { return EventTypeUserCancelled }

// ErrorEvent carries a model failure. Status is the HTTP status when known.
type ErrorEvent struct {
	Message string
	Status  *int
}

// Type returns the event type.
func (e ErrorEvent) Type() EventType { return EventTypeError }

// ChatCompressedEvent reports a history compression.
type ChatCompressedEvent struct {
	Info *CompressionInfo
}

// Type returns the event type.
func (e ChatCompressedEvent) Type() EventType { return EventTypeChatCompressed }

// MaxSessionTurnsEvent fires when a session stops at its turn limit.
type MaxSessionTurnsEvent struct{}

// Type returns the event type.
func (e MaxSessionTurnsEvent) Type() EventType { return EventTypeMaxSessionTurns }

// FinishedEvent carries the model's finish reason.
type FinishedEvent struct {
	Reason genai.FinishReason
}

// Type returns the event type.
func (e FinishedEvent) Type() EventType { return EventTypeFinished }

// LoopDetectedEvent fires when a session stops because the model keeps
// repeating the same tool call.
type LoopDetectedEvent struct{}

// Type returns the event type.
func (e LoopDetectedEvent) Type() EventType { return EventTypeLoopDetected }
