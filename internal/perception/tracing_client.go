package perception

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"termcoder/internal/logging"
	"termcoder/internal/types"
)

var tracer = otel.Tracer("termcoder/perception")

// TracingLLMClient wraps any LLMClient, opening a span and writing an API
// log entry for every call.
type TracingLLMClient struct {
	underlying LLMClient
}

// NewTracingLLMClient creates a tracing wrapper around an existing LLM client.
func NewTracingLLMClient(underlying LLMClient) *TracingLLMClient {
	return &TracingLLMClient{underlying: underlying}
}

func (tc *TracingLLMClient) start(ctx context.Context, op string, messages []types.Message) (context.Context, trace.Span) {
	return tracer.Start(ctx, "llm."+op, trace.WithAttributes(
		attribute.String("llm.model", tc.underlying.GetModel()),
		attribute.Int("llm.messages", len(messages)),
	))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Invoke implements LLMClient with tracing.
func (tc *TracingLLMClient) Invoke(ctx context.Context, messages []types.Message, tools []ToolDefinition) (*LLMToolResponse, error) {
	ctx, span := tc.start(ctx, "invoke", messages)
	span.SetAttributes(attribute.Int("llm.tools", len(tools)))

	start := time.Now()
	logging.API("LLM call started: model=%s messages=%d tools=%d", tc.underlying.GetModel(), len(messages), len(tools))

	resp, err := tc.underlying.Invoke(ctx, messages, tools)
	duration := time.Since(start)
	if err != nil {
		logging.API("LLM call failed: duration=%v error=%s", duration, err.Error())
	} else {
		span.SetAttributes(
			attribute.Int("llm.tool_calls", len(resp.ToolCalls)),
			attribute.Int("llm.tokens", resp.Usage.TotalTokens),
		)
		logging.API("LLM call completed: duration=%v response_len=%d tool_calls=%d", duration, len(resp.Text), len(resp.ToolCalls))
	}
	finish(span, err)
	return resp, err
}

// CompleteStructured implements LLMClient with tracing.
func (tc *TracingLLMClient) CompleteStructured(ctx context.Context, messages []types.Message, schema types.ResponseSchema) (string, error) {
	ctx, span := tc.start(ctx, "structured", messages)
	span.SetAttributes(attribute.String("llm.schema", schema.Name))

	start := time.Now()
	out, err := tc.underlying.CompleteStructured(ctx, messages, schema)
	if err != nil {
		logging.API("LLM structured call failed: schema=%s duration=%v error=%s", schema.Name, time.Since(start), err.Error())
	} else {
		logging.API("LLM structured call completed: schema=%s duration=%v", schema.Name, time.Since(start))
	}
	finish(span, err)
	return out, err
}

// Stream implements LLMClient with tracing. The span ends when the stream does.
func (tc *TracingLLMClient) Stream(ctx context.Context, messages []types.Message) (<-chan string, <-chan error) {
	ctx, span := tc.start(ctx, "stream", messages)
	start := time.Now()
	logging.API("LLM streaming call started: model=%s messages=%d", tc.underlying.GetModel(), len(messages))

	underContent, underErr := tc.underlying.Stream(ctx, messages)

	outContent := make(chan string, 100)
	outErr := make(chan error, 1)

	go func() {
		defer close(outContent)
		defer close(outErr)

		var total int
		var firstErr error
		for underContent != nil || underErr != nil {
			select {
			case delta, ok := <-underContent:
				if !ok {
					underContent = nil
					continue
				}
				total += len(delta)
				outContent <- delta
			case err, ok := <-underErr:
				if !ok {
					underErr = nil
					continue
				}
				if err != nil && firstErr == nil {
					firstErr = err
				}
			}
		}

		if firstErr != nil {
			logging.API("LLM streaming call failed: duration=%v error=%s", time.Since(start), firstErr.Error())
			outErr <- firstErr
		} else {
			logging.API("LLM streaming call completed: duration=%v response_len=%d", time.Since(start), total)
		}
		span.SetAttributes(attribute.Int("llm.response_len", total))
		finish(span, firstErr)
	}()

	return outContent, outErr
}

// GetModel implements LLMClient.
func (tc *TracingLLMClient) GetModel() string {
	return tc.underlying.GetModel()
}
