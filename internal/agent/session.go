// Package agent runs a conversation with the model across turns. A Session
// sends the user's message, executes the tool calls the model asks for and
// feeds their responses back until the model stops calling tools.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/xdg/bastion/internal/clog"
	"github.com/xdg/bastion/internal/tools"
	"github.com/xdg/bastion/internal/turn"
)

var log = clog.For("agent")

// Defaults for Options.
const (
	DefaultMaxTurns      = 100
	DefaultLoopThreshold = 5
)

// Unlimited disables the session turn limit.
const Unlimited = -1

// Dispatcher executes tool calls. *tools.Registry implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req turn.ToolCallRequestInfo) turn.ToolCallResponseInfo
}

// Options configure a Session.
type Options struct {
	// ID identifies the session. A random id is used when empty.
	ID string
	// MaxTurns bounds the model turns in the session; Unlimited disables
	// the bound. Zero means DefaultMaxTurns.
	MaxTurns int
	// LoopThreshold is how many identical consecutive tool calls count as
	// a loop. Zero means DefaultLoopThreshold.
	LoopThreshold int
	// Reporter receives model failures. May be nil.
	Reporter turn.Reporter
}

// Session is a multi-turn conversation. It is not safe for concurrent use.
type Session struct {
	id            string
	chat          turn.Chat
	dispatcher    Dispatcher
	reporter      turn.Reporter
	maxTurns      int
	loopThreshold int

	turns    int
	lastCall string
	repeats  int
}

// NewSession creates a session talking to chat and running tools through
// dispatcher.
func NewSession(chat turn.Chat, dispatcher Dispatcher, opts Options) *Session {
	s := &Session{
		id:            opts.ID,
		chat:          chat,
		dispatcher:    dispatcher,
		reporter:      opts.Reporter,
		maxTurns:      opts.MaxTurns,
		loopThreshold: opts.LoopThreshold,
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.maxTurns == 0 {
		s.maxTurns = DefaultMaxTurns
	}
	if s.loopThreshold <= 0 {
		s.loopThreshold = DefaultLoopThreshold
	}
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Turns returns the number of model turns started so far.
func (s *Session) Turns() int { return s.turns }

// Run sends parts and keeps the conversation going while the model calls
// tools. Besides the events of each turn it yields ToolCallConfirmation and
// ToolCallResponse events for tool calls, MaxSessionTurns when the turn
// limit is reached and LoopDetected when the model repeats one tool call.
// An error is yielded only for failures that end the session, such as
// *turn.UnauthorizedError.
func (s *Session) Run(ctx context.Context, parts []*genai.Part) iter.Seq2[turn.Event, error] {
	return func(yield func(turn.Event, error) bool) {
		stopped := false
		emit := func(ev turn.Event) bool {
			if stopped {
				return false
			}
			if !yield(ev, nil) {
				stopped = true
			}
			return !stopped
		}

		for {
			if s.maxTurns != Unlimited && s.turns >= s.maxTurns {
				log.Info("session %s reached %d turns", s.id, s.maxTurns)
				emit(turn.MaxSessionTurnsEvent{})
				return
			}
			s.turns++
			t := turn.New(s.chat, s.promptID(), s.reporter)

			for ev, err := range t.Run(ctx, parts) {
				if err != nil {
					yield(nil, err)
					return
				}
				if !emit(ev) {
					return
				}
				switch e := ev.(type) {
				case turn.ErrorEvent, turn.UserCancelledEvent:
					return
				case turn.ToolCallRequestEvent:
					if s.loopDetected(e.Info) {
						log.Warn("session %s: %s called %d times in a row", s.id, e.Info.Name, s.repeats)
						emit(turn.LoopDetectedEvent{})
						return
					}
				}
			}

			calls := t.PendingToolCalls()
			if len(calls) == 0 {
				return
			}

			hookCtx := tools.WithConfirmationHook(ctx, func(req turn.ToolCallRequestInfo, commands []string) {
				emit(turn.ToolCallConfirmationEvent{Request: req, Commands: commands})
			})
			parts = nil
			for _, req := range calls {
				if ctx.Err() != nil {
					emit(turn.UserCancelledEvent{})
					return
				}
				resp := s.dispatcher.Dispatch(hookCtx, req)
				parts = append(parts, resp.ResponseParts...)
				if !emit(turn.ToolCallResponseEvent{Info: resp}) {
					return
				}
			}
		}
	}
}

func (s *Session) promptID() string {
	return fmt.Sprintf("%s########%d", s.id, s.turns)
}

// loopDetected tracks consecutive identical tool calls and reports whether
// the threshold has been reached.
func (s *Session) loopDetected(req turn.ToolCallRequestInfo) bool {
	args, err := json.Marshal(req.Args)
	if err != nil {
		args = []byte(fmt.Sprint(req.Args))
	}
	key := req.Name + ":" + string(args)
	if key == s.lastCall {
		s.repeats++
	} else {
		s.lastCall = key
		s.repeats = 1
	}
	return s.repeats >= s.loopThreshold
}
