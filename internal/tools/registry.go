// Package tools executes the tool calls a model requests. A Registry maps
// tool names to implementations and turns each outcome into the function
// response sent back to the model.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"google.golang.org/genai"

	"github.com/xdg/bastion/internal/clog"
	"github.com/xdg/bastion/internal/turn"
)

var log = clog.For("tools")

// Error types reported in turn.ToolCallResponseInfo.ErrorType.
const (
	ErrorToolNotRegistered = "tool_not_registered"
	ErrorInvalidParams     = "invalid_tool_params"
	ErrorShellBlocked      = "shell_blocked"
	ErrorShellNotApproved  = "shell_not_approved"
	ErrorExecution         = "execution_failed"
)

// Tool is one callable tool.
type Tool interface {
	Name() string
	Declaration() *genai.FunctionDeclaration
	// Call runs the tool. The returned map becomes the function response;
	// display is a short human readable summary. Errors should be
	// *Error so the response carries a stable type.
	Call(ctx context.Context, req turn.ToolCallRequestInfo) (response map[string]any, display string, err error)
}

// Error is a tool failure with a stable type.
type Error struct {
	Type string
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func newError(typ, format string, args ...any) *Error {
	return &Error{Type: typ, Err: fmt.Errorf(format, args...)}
}

// Registry holds the available tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds t, replacing any tool with the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Declarations returns the function declarations of every tool, sorted by
// name, for the model configuration.
func (r *Registry) Declarations() []*genai.FunctionDeclaration {
	var decls []*genai.FunctionDeclaration
	for _, n := range r.Names() {
		t, _ := r.Get(n)
		decls = append(decls, t.Declaration())
	}
	return decls
}

// Dispatch runs the requested tool and builds its response. It never
// fails: errors are reported in the response.
func (r *Registry) Dispatch(ctx context.Context, req turn.ToolCallRequestInfo) turn.ToolCallResponseInfo {
	t, ok := r.Get(req.Name)
	if !ok {
		err := newError(ErrorToolNotRegistered, "tool %q not found in registry", req.Name)
		return errorResponse(req, err)
	}

	resp, display, err := t.Call(ctx, req)
	if err != nil {
		log.Info("tool %s (%s) failed: %v", req.Name, req.CallID, err)
		return errorResponse(req, err)
	}
	return turn.ToolCallResponseInfo{
		CallID:        req.CallID,
		ResponseParts: []*genai.Part{functionResponse(req, resp)},
		ResultDisplay: display,
	}
}

func errorResponse(req turn.ToolCallRequestInfo, err error) turn.ToolCallResponseInfo {
	typ := ErrorExecution
	var te *Error
	if errors.As(err, &te) {
		typ = te.Type
	}
	return turn.ToolCallResponseInfo{
		CallID:        req.CallID,
		ResponseParts: []*genai.Part{functionResponse(req, map[string]any{"error": err.Error()})},
		ResultDisplay: err.Error(),
		Err:           err,
		ErrorType:     typ,
	}
}

func functionResponse(req turn.ToolCallRequestInfo, resp map[string]any) *genai.Part {
	return &genai.Part{FunctionResponse: &genai.FunctionResponse{
		ID:       req.CallID,
		Name:     req.Name,
		Response: resp,
	}}
}
