// Package session implements the tool-calling agent loop.
//
// The loop seeds a working buffer with a system prompt and the caller's
// history, then alternates model calls and capability executions until the
// model answers without requesting tools or the iteration cap is reached.
//
//	[system, seed...] → LLM → tool calls? → Registry.Invoke → observations → LLM ...
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"termcoder/internal/logging"
	"termcoder/internal/tools"
	"termcoder/internal/types"
)

var tracer = otel.Tracer("termcoder/session")

// IncompleteSuffix is appended to answers cut off by the iteration cap.
const IncompleteSuffix = "[incomplete: iteration limit reached]"

// DefaultMaxIterations bounds model calls per loop.
const DefaultMaxIterations = 10

// ErrAborted wraps a non-recoverable capability failure.
var ErrAborted = errors.New("agent loop aborted")

// AbortError reports which capability stopped the loop.
type AbortError struct {
	Tool string
	Err  error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("agent loop aborted by %s: %v", e.Tool, e.Err)
}

func (e *AbortError) Unwrap() []error { return []error{ErrAborted, e.Err} }

// EventKind distinguishes loop progress notifications.
type EventKind string

const (
	EventToolCall   EventKind = "tool_call"
	EventToolResult EventKind = "tool_result"
)

// Event is a progress notification for observers such as the TUI.
type Event struct {
	Kind   EventKind
	Call   types.ToolCall
	Output string
}

// ExecutorConfig holds configuration for the executor.
type ExecutorConfig struct {
	// MaxIterations limits model calls per loop to stop tool-call cycles.
	MaxIterations int
}

// DefaultExecutorConfig returns sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{MaxIterations: DefaultMaxIterations}
}

// Executor runs agent loops against one model client. It holds no
// per-loop state and may be shared.
type Executor struct {
	client   types.LLMClient
	config   ExecutorConfig
	observer func(Event)
}

// NewExecutor creates an executor.
func NewExecutor(client types.LLMClient, cfg ExecutorConfig) *Executor {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	return &Executor{client: client, config: cfg}
}

// SetObserver installs a callback for tool call progress.
func (e *Executor) SetObserver(fn func(Event)) {
	e.observer = fn
}

// MaxIterations returns the configured cap.
func (e *Executor) MaxIterations() int { return e.config.MaxIterations }

// Result is the outcome of one loop.
type Result struct {
	// Message is the final AI message.
	Message types.Message

	// Transcript is the working buffer after the system prompt: seed,
	// AI tool requests and tool observations, and the final answer.
	Transcript []types.Message

	Iterations int
	ToolCalls  int
	Incomplete bool
	Duration   time.Duration
}

// Run executes the loop. Capability errors become observations; a
// non-recoverable one aborts with an *AbortError and a partial result.
// Model failures are returned as errors.
func (e *Executor) Run(ctx context.Context, systemPrompt string, registry *tools.Registry, seed []types.Message) (*Result, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "agent.run")
	defer span.End()

	if registry == nil {
		registry = tools.NewRegistry()
	}
	defs := registry.Definitions()
	span.SetAttributes(attribute.Int("agent.tools", len(defs)), attribute.Int("agent.seed", len(seed)))

	buffer := make([]types.Message, 0, len(seed)+2*e.config.MaxIterations+1)
	buffer = append(buffer, types.SystemMessage(systemPrompt))
	buffer = append(buffer, types.CloneMessages(seed)...)

	res := &Result{}
	finish := func(msg types.Message) *Result {
		buffer = append(buffer, msg)
		res.Message = msg
		res.Transcript = buffer[1:]
		res.Duration = time.Since(start)
		span.SetAttributes(
			attribute.Int("agent.iterations", res.Iterations),
			attribute.Int("agent.tool_calls", res.ToolCalls),
			attribute.Bool("agent.incomplete", res.Incomplete),
		)
		return res
	}

	logging.Agent("Agent loop started: %d tools, %d seed messages, cap %d", len(defs), len(seed), e.config.MaxIterations)

	var lastText string
	for res.Iterations < e.config.MaxIterations {
		res.Iterations++
		resp, err := e.step(ctx, res.Iterations, buffer, defs)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logging.AgentWarn("Model call %d failed: %v", res.Iterations, err)
			return nil, fmt.Errorf("model call failed: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			logging.Agent("Agent loop finished after %d iterations, %d tool calls (%v)", res.Iterations, res.ToolCalls, time.Since(start))
			return finish(types.AIMessage(resp.Text)), nil
		}
		if resp.Text != "" {
			lastText = resp.Text
		}

		calls := make([]types.ToolCall, len(resp.ToolCalls))
		for i, call := range resp.ToolCalls {
			if call.ID == "" {
				call.ID = fmt.Sprintf("call_%d_%d", res.Iterations, i)
			}
			calls[i] = call
		}
		buffer = append(buffer, types.Message{Role: types.RoleAI, Content: resp.Text, ToolCalls: calls})

		// Sequential: each observation must be visible before the next decision.
		for _, call := range calls {
			res.ToolCalls++
			e.emit(Event{Kind: EventToolCall, Call: call})

			obs, err := registry.Invoke(ctx, call)
			buffer = append(buffer, types.ToolMessage(call.ID, call.Name, obs))
			e.emit(Event{Kind: EventToolResult, Call: call, Output: obs})

			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				abort := &AbortError{Tool: call.Name, Err: err}
				span.RecordError(abort)
				span.SetStatus(codes.Error, abort.Error())
				logging.AgentWarn("%v", abort)
				res.Message = types.AIMessage(obs)
				res.Transcript = buffer[1:]
				res.Duration = time.Since(start)
				return res, abort
			}
		}
	}

	res.Incomplete = true
	logging.AgentWarn("Agent loop hit the iteration cap (%d)", e.config.MaxIterations)
	text := lastText
	if text == "" {
		text = fmt.Sprintf("Stopped after %d steps without a final answer.", e.config.MaxIterations)
	}
	return finish(types.AIMessage(text + "\n\n" + IncompleteSuffix)), nil
}

func (e *Executor) step(ctx context.Context, n int, buffer []types.Message, defs []types.ToolDefinition) (*types.LLMToolResponse, error) {
	ctx, span := tracer.Start(ctx, "agent.iteration")
	defer span.End()
	span.SetAttributes(attribute.Int("agent.iteration", n), attribute.Int("agent.buffer", len(buffer)))

	resp, err := e.client.Invoke(ctx, buffer, defs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("agent.requested_tools", len(resp.ToolCalls)))
	logging.AgentDebug("Iteration %d: %d tool calls, %d chars text", n, len(resp.ToolCalls), len(resp.Text))
	return resp, nil
}

func (e *Executor) emit(ev Event) {
	if e.observer != nil {
		e.observer(ev)
	}
}
