package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"termcoder/internal/logging"
	"termcoder/internal/perception"
	"termcoder/internal/prompt"
	"termcoder/internal/session"
	"termcoder/internal/tools/scaffold"
	"termcoder/internal/types"
)

const classificationReason = "I could not tell whether this is a coding task or a new project. Please rephrase the request."

// classificationSchema constrains the understanding node to a single field.
var classificationSchema = types.ResponseSchema{
	Name: "query_type",
	Schema: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"type": map[string]interface{}{
				"type": "string",
				"enum": []interface{}{string(QueryExecution), string(QueryScaffolding)},
			},
		},
		"required":             []interface{}{"type"},
		"additionalProperties": false,
	},
}

// =============================================================================
// MEMORY
// =============================================================================

// memoryNode maintains long-term memory and injects relevant memories into
// the query. Every failure here degrades to a passthrough.
func (g *Graph) memoryNode(ctx context.Context, t *turn) error {
	if g.memoryTools.Count() == 0 {
		logging.GraphDebug("Memory node skipped: no memory capabilities")
		return nil
	}
	seed := []types.Message{types.HumanMessage(t.state.Query)}

	if sys, err := g.prompts.Memory(); err != nil {
		logging.GraphWarn("Memory prompt unavailable: %v", err)
	} else if res, err := g.executor.Run(ctx, sys, g.memoryTools, seed); err != nil {
		logging.GraphWarn("Memory update skipped (non-fatal): %v", err)
	} else {
		logging.Graph("Memory node: updated=%v (%d tool calls)", prompt.MemoryOutcome(res.Message.Content), res.ToolCalls)
	}

	if g.contextTools.Count() == 0 {
		return nil
	}
	sys, err := g.prompts.ContextInjection()
	if err != nil {
		logging.GraphWarn("Context prompt unavailable: %v", err)
		return nil
	}
	res, err := g.executor.Run(ctx, sys, g.contextTools, seed)
	if err != nil {
		logging.GraphWarn("Context injection skipped (non-fatal): %v", err)
		return nil
	}
	if res.Incomplete {
		logging.GraphWarn("Context injection hit the iteration cap; query left unchanged")
		return nil
	}
	injected := prompt.WithContext(t.state.Query, res.Message.Content)
	if injected != t.state.Query {
		logging.GraphDebug("Injected %d chars of user context", len(injected)-len(t.state.Query))
	}
	t.state.Query = injected
	return nil
}

// =============================================================================
// UNDERSTANDING
// =============================================================================

func (g *Graph) understandingNode(ctx context.Context, t *turn) error {
	sys, err := g.prompts.Understanding()
	if err != nil {
		return turnError(NodeUnderstanding, classificationReason, ErrClassification, err)
	}
	msgs := []types.Message{types.SystemMessage(sys), types.HumanMessage(t.state.Query)}

	raw, err := g.client.CompleteStructured(ctx, msgs, classificationSchema)
	if err != nil {
		if ctx.Err() != nil {
			return turnError(NodeUnderstanding, "The request was cancelled.", ctx.Err(), nil)
		}
		return turnError(NodeUnderstanding, modelReason(err), ErrModelUnavailable, err)
	}

	var out struct {
		Type string `json:"type"`
	}
	if err := perception.DecodeStructured(raw, &out); err != nil {
		logging.GraphWarn("Unparseable classification %q", raw)
		return turnError(NodeUnderstanding, classificationReason, ErrClassification, err)
	}
	qt, ok := ParseQueryType(out.Type)
	if !ok {
		logging.GraphWarn("Out-of-domain classification %q", out.Type)
		return turnError(NodeUnderstanding, classificationReason, ErrClassification, fmt.Errorf("unknown type %q", out.Type))
	}

	t.state.QueryType = qt
	logging.Graph("Query classified as %s", qt)
	return nil
}

// =============================================================================
// EXECUTION
// =============================================================================

func (g *Graph) executionNode(ctx context.Context, t *turn) error {
	sys, err := g.basePrompt(t.state)
	if err != nil {
		return &TurnError{Node: NodeExecution, Reason: "Internal error: " + err.Error(), Err: err}
	}

	res, err := g.executor.Run(ctx, sys, g.executionCaps, g.seed(t.state))
	if err != nil {
		return loopError(ctx, NodeExecution, err)
	}
	g.finish(t, res)
	return nil
}

// =============================================================================
// SCAFFOLDING
// =============================================================================

// scaffoldingNode plans with the clarify and template capabilities, then
// builds with file and shell capabilities and the plan in its instructions.
func (g *Graph) scaffoldingNode(ctx context.Context, t *turn) error {
	planSys, err := g.prompts.Planning(scaffold.Frameworks())
	if err != nil {
		return &TurnError{Node: NodeScaffolding, Reason: "Internal error: " + err.Error(), Err: err}
	}
	seed := g.seed(t.state)

	plan, err := g.executor.Run(ctx, planSys, g.planningCaps, seed)
	if err != nil {
		return loopError(ctx, NodeScaffolding, err)
	}
	logging.Graph("Scaffolding plan ready (%d chars, %d tool calls)", len(plan.Message.Content), plan.ToolCalls)

	base, err := g.basePrompt(t.state)
	if err != nil {
		return &TurnError{Node: NodeScaffolding, Reason: "Internal error: " + err.Error(), Err: err}
	}
	addendum, err := g.prompts.ExecutionPlan(plan.Message.Content)
	if err != nil {
		return &TurnError{Node: NodeScaffolding, Reason: "Internal error: " + err.Error(), Err: err}
	}

	res, err := g.executor.Run(ctx, base+"\n\n"+addendum, g.buildCaps, seed)
	if err != nil {
		return loopError(ctx, NodeScaffolding, err)
	}
	g.finish(t, res)
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (g *Graph) basePrompt(s State) (string, error) {
	if sys, ok := s.SystemPrompt(); ok {
		return sys, nil
	}
	return g.prompts.System(g.env)
}

// seed is the conversation after the base prompt plus this turn's query.
func (g *Graph) seed(s State) []types.Message {
	hist := s.History()
	seed := make([]types.Message, 0, len(hist)+1)
	seed = append(seed, hist...)
	return append(seed, types.HumanMessage(s.Query))
}

// finish appends exactly one human and one AI message.
func (g *Graph) finish(t *turn, res *session.Result) {
	t.result = res
	t.output = res.Message.Content
	t.state.Messages = append(t.state.Messages, types.HumanMessage(t.state.Query), types.AIMessage(t.output))
}

func loopError(ctx context.Context, node NodeID, err error) error {
	switch {
	case ctx.Err() != nil:
		return turnError(node, "The request was cancelled.", ctx.Err(), nil)
	case errors.Is(err, session.ErrAborted):
		var abort *session.AbortError
		reason := "An operation was refused or its capability is unavailable."
		if errors.As(err, &abort) {
			reason = fmt.Sprintf("Stopped: %s could not run (%s).", abort.Tool, firstLine(abort.Err.Error()))
		}
		return turnError(node, reason, ErrCapabilityAborted, err)
	default:
		return turnError(node, modelReason(err), ErrModelUnavailable, err)
	}
}

func modelReason(err error) string {
	return "Capability unavailable: the language model could not be reached (" + firstLine(err.Error()) + ")."
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
