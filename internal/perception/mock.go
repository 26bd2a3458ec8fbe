package perception

import (
	"context"
	"errors"
	"strings"
	"sync"

	"termcoder/internal/types"
)

// ErrScriptExhausted is returned when a ScriptedClient runs out of steps.
var ErrScriptExhausted = errors.New("scripted client: no responses left")

// ScriptStep is one canned model reply.
type ScriptStep struct {
	Text       string
	ToolCalls  []ToolCall
	Structured string // returned by CompleteStructured
	Err        error
}

// ScriptedCall records a request the client received.
type ScriptedCall struct {
	Method   string // "invoke", "structured", "stream"
	Messages []types.Message
	Tools    []string
	Schema   string
}

// ScriptedClient is an LLMClient that replays a queue of steps in order.
// It is safe for concurrent use.
type ScriptedClient struct {
	mu    sync.Mutex
	steps []ScriptStep
	calls []ScriptedCall
	model string
}

// NewScriptedClient creates a client that replays steps.
func NewScriptedClient(steps ...ScriptStep) *ScriptedClient {
	return &ScriptedClient{steps: steps, model: "scripted"}
}

// Push appends steps to the queue.
func (c *ScriptedClient) Push(steps ...ScriptStep) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, steps...)
}

// Calls returns a copy of the recorded requests.
func (c *ScriptedClient) Calls() []ScriptedCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ScriptedCall, len(c.calls))
	copy(out, c.calls)
	return out
}

// Remaining returns how many steps are left.
func (c *ScriptedClient) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.steps)
}

func (c *ScriptedClient) next(call ScriptedCall) (ScriptStep, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	call.Messages = types.CloneMessages(call.Messages)
	c.calls = append(c.calls, call)
	if len(c.steps) == 0 {
		return ScriptStep{}, ErrScriptExhausted
	}
	step := c.steps[0]
	c.steps = c.steps[1:]
	return step, step.Err
}

// Invoke implements LLMClient.
func (c *ScriptedClient) Invoke(ctx context.Context, messages []types.Message, tools []ToolDefinition) (*LLMToolResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	step, err := c.next(ScriptedCall{Method: "invoke", Messages: messages, Tools: names})
	if err != nil {
		return nil, err
	}
	stop := "end_turn"
	if len(step.ToolCalls) > 0 {
		stop = "tool_use"
	}
	return &LLMToolResponse{Text: step.Text, ToolCalls: step.ToolCalls, StopReason: stop}, nil
}

// CompleteStructured implements LLMClient.
func (c *ScriptedClient) CompleteStructured(ctx context.Context, messages []types.Message, schema types.ResponseSchema) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	step, err := c.next(ScriptedCall{Method: "structured", Messages: messages, Schema: schema.Name})
	if err != nil {
		return "", err
	}
	if step.Structured != "" {
		return step.Structured, nil
	}
	return step.Text, nil
}

// Stream implements LLMClient, emitting the step text word by word.
func (c *ScriptedClient) Stream(ctx context.Context, messages []types.Message) (<-chan string, <-chan error) {
	content := make(chan string, 100)
	errs := make(chan error, 1)

	step, err := c.next(ScriptedCall{Method: "stream", Messages: messages})
	go func() {
		defer close(content)
		defer close(errs)
		if err != nil {
			errs <- err
			return
		}
		for _, word := range strings.SplitAfter(step.Text, " ") {
			if word == "" {
				continue
			}
			select {
			case content <- word:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()
	return content, errs
}

// GetModel implements LLMClient.
func (c *ScriptedClient) GetModel() string { return c.model }
