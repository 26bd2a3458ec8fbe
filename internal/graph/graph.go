// Package graph is the orchestration graph: a small state machine that
// routes each user turn through memory maintenance, classification and one
// of two tool-calling handlers, then compacts the history when it grows.
//
//	memory → understanding ─┬─ execution ───┬─ summarization → end
//	                        └─ scaffolding ─┘
package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"termcoder/internal/logging"
	"termcoder/internal/prompt"
	"termcoder/internal/session"
	"termcoder/internal/tools"
	"termcoder/internal/tools/memtools"
	"termcoder/internal/tools/scaffold"
	"termcoder/internal/types"
)

var tracer = otel.Tracer("termcoder/graph")

// NodeID names a graph state.
type NodeID string

const (
	NodeMemory        NodeID = "memory"
	NodeUnderstanding NodeID = "understanding"
	NodeExecution     NodeID = "execution"
	NodeScaffolding   NodeID = "scaffolding"
	NodeSummarization NodeID = "summarization"
	NodeEnd           NodeID = "end"
)

// edges is the transition table. Understanding is the only branch point.
var edges = map[NodeID]func(*State) (NodeID, error){
	NodeMemory:        always(NodeUnderstanding),
	NodeUnderstanding: route,
	NodeExecution:     always(NodeSummarization),
	NodeScaffolding:   always(NodeSummarization),
	NodeSummarization: always(NodeEnd),
}

var routes = map[QueryType]NodeID{
	QueryExecution:   NodeExecution,
	QueryScaffolding: NodeScaffolding,
}

func always(next NodeID) func(*State) (NodeID, error) {
	return func(*State) (NodeID, error) { return next, nil }
}

func route(s *State) (NodeID, error) {
	next, ok := routes[s.QueryType]
	if !ok {
		return "", fmt.Errorf("%w: no route for %q", ErrClassification, s.QueryType)
	}
	return next, nil
}

// HistoryWriter persists turn messages. *store.ConversationStore satisfies it.
type HistoryWriter interface {
	AppendMessage(ctx context.Context, threadID, messageID string, role types.Role, content string) error
}

// Event reports graph progress to observers such as the TUI.
type Event struct {
	Node NodeID
	// Tool is set for capability calls made inside a node.
	Tool *session.Event
}

// Options configures a Graph.
type Options struct {
	Client   types.LLMClient
	Registry *tools.Registry

	// Prompts defaults to prompt.Default().
	Prompts     *prompt.Library
	Environment prompt.Environment

	MaxIterations    int
	SummaryThreshold int
	SummaryWindow    int
	SummaryWords     int

	History HistoryWriter
}

// Graph runs turns. Turns are serialized; one Graph may serve one
// conversation at a time.
type Graph struct {
	client   types.LLMClient
	executor *session.Executor
	prompts  *prompt.Library
	env      prompt.Environment
	history  HistoryWriter

	memoryTools   *tools.Registry
	contextTools  *tools.Registry
	executionCaps *tools.Registry
	planningCaps  *tools.Registry
	buildCaps     *tools.Registry

	summaryThreshold int
	summaryWindow    int
	summaryWords     int

	handlers map[NodeID]func(context.Context, *turn) error

	turnMu   sync.Mutex
	observer func(Event)
	current  NodeID
}

// New builds a graph over the capabilities in opts.Registry.
func New(opts Options) (*Graph, error) {
	if opts.Client == nil {
		return nil, errors.New("graph: a model client is required")
	}
	if opts.Registry == nil {
		opts.Registry = tools.NewRegistry()
	}
	if opts.Prompts == nil {
		opts.Prompts = prompt.Default()
	}
	if opts.SummaryThreshold <= 0 {
		opts.SummaryThreshold = 8
	}
	if opts.SummaryWindow <= 0 {
		opts.SummaryWindow = 9
	}
	if opts.SummaryWords <= 0 {
		opts.SummaryWords = 200
	}

	reg := opts.Registry
	g := &Graph{
		client:   opts.Client,
		executor: session.NewExecutor(opts.Client, session.ExecutorConfig{MaxIterations: opts.MaxIterations}),
		prompts:  opts.Prompts,
		env:      opts.Environment,
		history:  opts.History,

		memoryTools:   reg.Categories(tools.CategoryMemory),
		contextTools:  present(reg, memtools.ReadOnly...),
		executionCaps: present(reg, append(names(reg, tools.CategoryFile, tools.CategoryShell), memtools.ReadOnly...)...),
		planningCaps:  present(reg, scaffold.AskUser, scaffold.GetFrameworkTemplate),
		buildCaps:     reg.Categories(tools.CategoryFile, tools.CategoryShell),

		summaryThreshold: opts.SummaryThreshold,
		summaryWindow:    opts.SummaryWindow,
		summaryWords:     opts.SummaryWords,
	}
	g.handlers = map[NodeID]func(context.Context, *turn) error{
		NodeMemory:        g.memoryNode,
		NodeUnderstanding: g.understandingNode,
		NodeExecution:     g.executionNode,
		NodeScaffolding:   g.scaffoldingNode,
		NodeSummarization: g.summarizationNode,
	}
	g.executor.SetObserver(func(ev session.Event) {
		g.emit(Event{Node: g.current, Tool: &ev})
	})

	logging.Graph("Graph ready: model=%s, execution caps=%v, planning caps=%v",
		opts.Client.GetModel(), g.executionCaps.Names(), g.planningCaps.Names())
	return g, nil
}

func names(reg *tools.Registry, categories ...tools.ToolCategory) []string {
	return reg.Categories(categories...).Names()
}

// present returns the subset of names that reg actually holds.
func present(reg *tools.Registry, want ...string) *tools.Registry {
	have := make([]string, 0, len(want))
	for _, n := range want {
		if reg.Has(n) {
			have = append(have, n)
		}
	}
	sub, _ := reg.Subset(have...)
	return sub
}

// SetObserver installs a progress callback. Call before the first turn.
func (g *Graph) SetObserver(fn func(Event)) {
	g.observer = fn
}

func (g *Graph) emit(ev Event) {
	if g.observer != nil {
		g.observer(ev)
	}
}

// NewState renders the base system prompt into a fresh conversation.
func (g *Graph) NewState(threadID string) (State, error) {
	sys, err := g.prompts.System(g.env)
	if err != nil {
		return State{}, err
	}
	return NewState(threadID, sys), nil
}

// turn is the per-run scratch space threaded through the handlers.
type turn struct {
	input  string
	state  State
	output string
	result *session.Result
}

// Run executes one turn. On success it returns the new state and the
// answer. Turn-fatal failures return the prior state untouched, the
// failure's user-facing reason as output, and a *TurnError.
func (g *Graph) Run(ctx context.Context, query string, prior State) (State, string, error) {
	g.turnMu.Lock()
	defer g.turnMu.Unlock()

	start := time.Now()
	ctx, span := tracer.Start(ctx, "graph.turn")
	defer span.End()

	t := &turn{input: query, state: prior.Clone()}
	t.state.Query = query
	t.state.QueryType = QueryUnset
	if len(t.state.Messages) == 0 {
		sys, err := g.prompts.System(g.env)
		if err != nil {
			return prior, "Internal error: " + err.Error(), &TurnError{Node: NodeMemory, Reason: "could not render system prompt", Err: err}
		}
		t.state.Messages = []types.Message{types.SystemMessage(sys)}
	}

	logging.Graph("Turn started (%d messages in history)", len(t.state.Messages))

	node := NodeMemory
	for node != NodeEnd {
		if err := g.step(ctx, node, t); err != nil {
			var te *TurnError
			if !errors.As(err, &te) {
				te = &TurnError{Node: node, Reason: "unexpected failure", Err: err}
			}
			span.RecordError(te)
			span.SetStatus(codes.Error, te.Reason)
			logging.GraphError("Turn failed at %s: %v", node, te)
			return prior, te.Reason, te
		}

		next, err := edges[node](&t.state)
		if err != nil {
			te := &TurnError{Node: node, Reason: classificationReason, Err: err}
			logging.GraphError("No transition from %s: %v", node, err)
			return prior, te.Reason, te
		}
		node = next
	}

	g.persist(ctx, t)
	span.SetAttributes(
		attribute.String("graph.route", string(t.state.QueryType)),
		attribute.Int("graph.messages", len(t.state.Messages)),
	)
	logging.Graph("Turn finished via %s in %v", t.state.QueryType, time.Since(start))
	return t.state, t.output, nil
}

func (g *Graph) step(ctx context.Context, node NodeID, t *turn) error {
	ctx, span := tracer.Start(ctx, "graph.node."+string(node))
	defer span.End()

	g.current = node
	g.emit(Event{Node: node})
	logging.GraphDebug("Entering node %s", node)

	if err := g.handlers[node](ctx, t); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// persist appends the turn's human and AI messages to the history store.
// The stored human message is the user's own text, without injected context.
func (g *Graph) persist(ctx context.Context, t *turn) {
	if g.history == nil || t.state.ThreadID == "" {
		return
	}
	for _, m := range []types.Message{types.HumanMessage(t.input), types.AIMessage(t.output)} {
		if err := g.history.AppendMessage(ctx, t.state.ThreadID, uuid.NewString(), m.Role, m.Content); err != nil {
			logging.GraphWarn("Failed to persist %s message: %v", m.Role, err)
		}
	}
}
