// Package gemini connects sessions to the Gemini API. Chat keeps the
// conversation history and streams each new message through
// google.golang.org/genai.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/xdg/bastion/internal/clog"
)

var log = clog.For("gemini")

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// DefaultAPIKeyEnv names the environment variable holding the API key.
const DefaultAPIKeyEnv = "GEMINI_API_KEY"

// Content roles as stored in genai.Content.Role.
const (
	roleUser  = string(genai.RoleUser)
	roleModel = string(genai.RoleModel)
)

// ErrNoAPIKey is returned when the API key variable is unset or empty.
var ErrNoAPIKey = errors.New("no Gemini API key")

// Generator streams model responses. *genai.Models implements it.
type Generator interface {
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Options configure a Chat.
type Options struct {
	Model             string
	SystemInstruction string
	Tools             []*genai.FunctionDeclaration
	IncludeThoughts   bool
}

// Chat is a conversation with the model. It is safe for concurrent use,
// but only one message may be in flight at a time.
type Chat struct {
	gen    Generator
	model  string
	config *genai.GenerateContentConfig

	mu      sync.Mutex
	history []*genai.Content
}

// APIKey returns the API key held in the environment variable keyEnv
// (DefaultAPIKeyEnv if empty). The error wraps ErrNoAPIKey and names the
// variable when it is unset.
func APIKey(keyEnv string) (string, error) {
	if keyEnv == "" {
		keyEnv = DefaultAPIKeyEnv
	}
	key := strings.TrimSpace(os.Getenv(keyEnv))
	if key == "" {
		return "", fmt.Errorf("%w: set %s", ErrNoAPIKey, keyEnv)
	}
	return key, nil
}

// NewClient creates a genai client for the Gemini API authenticated with
// apiKey. userAgent, if set, is sent with every request.
func NewClient(ctx context.Context, apiKey, userAgent string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if userAgent != "" {
		cfg.HTTPOptions.Headers = http.Header{"User-Agent": []string{userAgent}}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	log.Debug("created Gemini API client")
	return client, nil
}

// NewChat creates a Chat generating through gen, usually client.Models.
func NewChat(gen Generator, opts Options) *Chat {
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	cfg := &genai.GenerateContentConfig{}
	if opts.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(opts.SystemInstruction, genai.RoleUser)
	}
	if len(opts.Tools) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: opts.Tools}}
	}
	if opts.IncludeThoughts {
		cfg.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
	}
	return &Chat{gen: gen, model: model, config: cfg}
}

// Model returns the model name in use.
func (c *Chat) Model() string { return c.model }

// SendMessageStream sends parts as a user message. The returned sequence
// yields the model's increments; once it has been fully consumed without
// error the exchange is added to the history. An abandoned or failed
// stream leaves the history unchanged.
func (c *Chat) SendMessageStream(ctx context.Context, parts []*genai.Part, promptID string) (iter.Seq2[*genai.GenerateContentResponse, error], error) {
	if len(parts) == 0 {
		return nil, errors.New("empty message")
	}
	user := genai.NewContentFromParts(parts, genai.RoleUser)
	contents := append(c.History(true), user)
	log.Debug("send prompt %s: %d parts, %d history entries", promptID, len(parts), len(contents)-1)

	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		var output []*genai.Part
		for resp, err := range c.gen.GenerateContentStream(ctx, c.model, contents, c.config) {
			if err != nil {
				yield(nil, err)
				return
			}
			if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
				output = append(output, resp.Candidates[0].Content.Parts...)
			}
			if !yield(resp, nil) {
				return
			}
		}
		c.record(user, output)
	}, nil
}

// AddHistory appends content to the history, e.g. to seed a session.
func (c *Chat) AddHistory(content ...*genai.Content) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, content...)
}

// History returns a copy of the conversation. Curated history drops model
// turns that are empty or contain empty parts, together with the user
// turn that prompted them.
func (c *Chat) History(curated bool) []*genai.Content {
	c.mu.Lock()
	defer c.mu.Unlock()
	if curated {
		return curate(c.history)
	}
	return slices.Clone(c.history)
}

func (c *Chat) record(user *genai.Content, output []*genai.Part) {
	model := &genai.Content{Role: roleModel, Parts: consolidate(output)}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, user, model)
}

// consolidate drops thought parts and merges adjacent text parts.
func consolidate(parts []*genai.Part) []*genai.Part {
	var out []*genai.Part
	for _, p := range parts {
		if p == nil || p.Thought {
			continue
		}
		if p.Text != "" && p.FunctionCall == nil && len(out) > 0 {
			last := out[len(out)-1]
			if last.Text != "" && last.FunctionCall == nil && last.FunctionResponse == nil {
				out[len(out)-1] = &genai.Part{Text: last.Text + p.Text}
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

// curate keeps user turns and valid model turns. When a run of model turns
// contains an invalid one, the whole run and the user turn before it are
// dropped.
func curate(history []*genai.Content) []*genai.Content {
	var out []*genai.Content
	for i := 0; i < len(history); {
		if history[i].Role != roleModel {
			out = append(out, history[i])
			i++
			continue
		}
		j := i
		valid := true
		for j < len(history) && history[j].Role == roleModel {
			if !validContent(history[j]) {
				valid = false
			}
			j++
		}
		if valid {
			out = append(out, history[i:j]...)
		} else if n := len(out); n > 0 && out[n-1].Role == roleUser {
			out = out[:n-1]
		}
		i = j
	}
	return out
}

func validContent(c *genai.Content) bool {
	if c == nil || len(c.Parts) == 0 {
		return false
	}
	for _, p := range c.Parts {
		if p == nil {
			return false
		}
		if !p.Thought && p.Text == "" && p.FunctionCall == nil && p.FunctionResponse == nil &&
			p.InlineData == nil && p.FileData == nil && p.ExecutableCode == nil && p.CodeExecutionResult == nil {
			return false
		}
	}
	return true
}
