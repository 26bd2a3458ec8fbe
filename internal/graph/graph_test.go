package graph

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termcoder/internal/embedding"
	"termcoder/internal/memory"
	"termcoder/internal/perception"
	"termcoder/internal/prompt"
	"termcoder/internal/store"
	"termcoder/internal/tools"
	"termcoder/internal/tools/core"
	"termcoder/internal/tools/memtools"
	"termcoder/internal/tools/scaffold"
	"termcoder/internal/types"
)

type fixture struct {
	graph  *Graph
	client *perception.ScriptedClient
	mem    *memory.Service
	root   string
	reg    *tools.Registry
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	root := t.TempDir()

	backend, err := memory.NewSQLiteBackend(store.MemoryPath)
	require.NoError(t, err)
	svc := memory.NewService(backend, embedding.NewHashEngine(256), memory.Options{DefaultK: 4, ScoreThreshold: 0.5})
	t.Cleanup(func() { svc.Close() })

	reg := opts.Registry
	if reg == nil {
		reg = tools.NewRegistry()
		require.NoError(t, core.RegisterAll(reg, core.NewWorkspace(root)))
		require.NoError(t, memtools.RegisterAll(reg, svc))
		require.NoError(t, scaffold.RegisterAll(reg, func(ctx context.Context, q string) (string, error) {
			return "react please", nil
		}))
	}

	client := perception.NewScriptedClient()
	opts.Client = client
	opts.Registry = reg
	opts.Environment = prompt.Environment{OS: "linux/amd64", Workspace: root, Shell: "/bin/bash"}

	g, err := New(opts)
	require.NoError(t, err)
	return &fixture{graph: g, client: client, mem: svc, root: root, reg: reg}
}

func (f *fixture) state(t *testing.T) State {
	t.Helper()
	s, err := f.graph.NewState("")
	require.NoError(t, err)
	return s
}

// memoryQuiet scripts a memory node that changes nothing and injects nothing.
func memoryQuiet() []perception.ScriptStep {
	return []perception.ScriptStep{
		{Text: prompt.MemoryNotUpdated},
		{Text: prompt.NoContext},
	}
}

func classify(kind string) perception.ScriptStep {
	return perception.ScriptStep{Structured: `{"type":"` + kind + `"}`}
}

func toolCall(id, name string, input map[string]any) perception.ScriptStep {
	return perception.ScriptStep{ToolCalls: []perception.ToolCall{{ID: id, Name: name, Input: input}}}
}

// =============================================================================
// EXECUTION ROUTE
// =============================================================================

func TestExecutionTurnAppendsHumanAndAI(t *testing.T) {
	f := newFixture(t, Options{})
	f.client.Push(memoryQuiet()...)
	f.client.Push(classify("execution"), perception.ScriptStep{Text: "Hi! How can I help?"})

	prior := f.state(t)
	next, out, err := f.graph.Run(context.Background(), "hello", prior)
	require.NoError(t, err)

	assert.Equal(t, "Hi! How can I help?", out)
	assert.Equal(t, QueryExecution, next.QueryType)
	require.Len(t, next.Messages, len(prior.Messages)+2)
	assert.Equal(t, types.HumanMessage("hello"), next.Messages[1])
	assert.Equal(t, types.AIMessage("Hi! How can I help?"), next.Messages[2])
	assert.Len(t, prior.Messages, 1, "prior state must not be mutated")
	assert.Zero(t, f.client.Remaining())
}

func TestDeleteMissingFileReportsNotFound(t *testing.T) {
	f := newFixture(t, Options{})
	f.client.Push(memoryQuiet()...)
	f.client.Push(
		classify("execution"),
		toolCall("c1", core.DeleteFile, map[string]any{"path": "foo.txt", "force": true}),
		perception.ScriptStep{Text: "The file `foo.txt` was not found, so there was nothing to delete."},
	)

	next, out, err := f.graph.Run(context.Background(), "delete the file foo.txt", f.state(t))
	require.NoError(t, err)
	assert.Contains(t, out, "not found")

	calls := f.client.Calls()
	last := calls[len(calls)-1]
	obs := last.Messages[len(last.Messages)-1]
	assert.Equal(t, types.RoleTool, obs.Role)
	assert.True(t, strings.HasPrefix(obs.Content, "[ERROR] (not_found) File not found: foo.txt"), obs.Content)

	ai, ok := types.LastAI(next.Messages)
	require.True(t, ok)
	assert.Equal(t, out, ai.Content)
}

func TestDeleteMissingFileWithoutForceSkipsConfirmation(t *testing.T) {
	root := t.TempDir()
	asked := 0
	reg := tools.NewRegistry()
	reg.SetConfirm(func(ctx context.Context, tool string, args map[string]any) (bool, error) {
		asked++
		return false, errors.New("no answer available: EOF")
	})
	require.NoError(t, core.RegisterAll(reg, core.NewWorkspace(root)))

	f := newFixture(t, Options{Registry: reg})
	f.client.Push(
		classify("execution"),
		toolCall("c1", core.DeleteFile, map[string]any{"path": "foo.txt"}),
		perception.ScriptStep{Text: "The file `foo.txt` was not found."},
	)

	_, out, err := f.graph.Run(context.Background(), "delete the file foo.txt", f.state(t))
	require.NoError(t, err)
	assert.Contains(t, out, "not found")
	assert.Zero(t, asked, "nothing to confirm for a missing file")

	calls := f.client.Calls()
	last := calls[len(calls)-1]
	obs := last.Messages[len(last.Messages)-1]
	assert.True(t, strings.HasPrefix(obs.Content, "[ERROR] (not_found)"), obs.Content)
}

func TestExecutionCapabilitySubset(t *testing.T) {
	f := newFixture(t, Options{})
	f.client.Push(memoryQuiet()...)
	f.client.Push(classify("execution"), perception.ScriptStep{Text: "ok"})

	_, _, err := f.graph.Run(context.Background(), "list files", f.state(t))
	require.NoError(t, err)

	calls := f.client.Calls()
	require.Len(t, calls, 4)
	assert.ElementsMatch(t, []string{
		memtools.AddMemory, memtools.SearchMemory, memtools.UpdateMemory, memtools.DeleteMemory, memtools.ListMemories,
	}, calls[0].Tools)
	assert.ElementsMatch(t, memtools.ReadOnly, calls[1].Tools)
	assert.Equal(t, "structured", calls[2].Method)
	assert.Equal(t, "query_type", calls[2].Schema)
	assert.Contains(t, calls[3].Tools, core.CreateFile)
	assert.Contains(t, calls[3].Tools, memtools.SearchMemory)
	assert.NotContains(t, calls[3].Tools, memtools.AddMemory)
	assert.NotContains(t, calls[3].Tools, scaffold.AskUser)
}

func TestIterationCapStillAnswers(t *testing.T) {
	f := newFixture(t, Options{MaxIterations: 2})
	f.client.Push(memoryQuiet()...)
	f.client.Push(
		classify("execution"),
		toolCall("a", core.ReadFile, map[string]any{"path": "x"}),
		toolCall("b", core.ReadFile, map[string]any{"path": "y"}),
	)

	next, out, err := f.graph.Run(context.Background(), "loop forever", f.state(t))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "[incomplete: iteration limit reached]"), out)
	assert.Len(t, next.Messages, 3)
}

// =============================================================================
// MEMORY NODE
// =============================================================================

func TestMemoryNodeStoresFacts(t *testing.T) {
	f := newFixture(t, Options{})
	f.client.Push(
		toolCall("m1", memtools.AddMemory, map[string]any{"texts": []any{"Technical: prefers Go"}}),
		perception.ScriptStep{Text: prompt.MemoryUpdated},
		perception.ScriptStep{Text: prompt.NoContext},
		classify("execution"),
		perception.ScriptStep{Text: "Noted."},
	)

	_, out, err := f.graph.Run(context.Background(), "I prefer Go for everything", f.state(t))
	require.NoError(t, err)
	assert.Equal(t, "Noted.", out)

	records, err := f.mem.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Technical: prefers Go", records[0].Text)
}

func TestMemoryNodeInjectsContext(t *testing.T) {
	f := newFixture(t, Options{})
	f.client.Push(
		perception.ScriptStep{Text: prompt.MemoryNotUpdated},
		perception.ScriptStep{Text: "- Technical: prefers tabs"},
		classify("execution"),
		perception.ScriptStep{Text: "Reformatted."},
	)

	next, _, err := f.graph.Run(context.Background(), "format main.go", f.state(t))
	require.NoError(t, err)

	want := "format main.go\n\n## User context\n- Technical: prefers tabs"
	calls := f.client.Calls()
	assert.Equal(t, want, calls[2].Messages[1].Content, "classifier sees the enriched query")
	exec := calls[3].Messages
	assert.Equal(t, want, exec[len(exec)-1].Content)
	assert.Equal(t, want, next.Messages[1].Content)
}

func TestMemoryFailureIsNonFatal(t *testing.T) {
	f := newFixture(t, Options{})
	down := errors.New("embedding provider down")
	f.client.Push(
		perception.ScriptStep{Err: down},
		perception.ScriptStep{Err: down},
		classify("execution"),
		perception.ScriptStep{Text: "Done anyway."},
	)

	next, out, err := f.graph.Run(context.Background(), "touch a.txt", f.state(t))
	require.NoError(t, err)
	assert.Equal(t, "Done anyway.", out)
	assert.Equal(t, "touch a.txt", next.Messages[1].Content, "query passes through unchanged")
}

func TestMemoryNodeSkippedWithoutMemoryCapabilities(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, core.RegisterAll(reg, core.NewWorkspace(t.TempDir())))
	f := newFixture(t, Options{Registry: reg})
	f.client.Push(classify("execution"), perception.ScriptStep{Text: "ok"})

	_, _, err := f.graph.Run(context.Background(), "hi", f.state(t))
	require.NoError(t, err)
	assert.Len(t, f.client.Calls(), 2)
}

// =============================================================================
// UNDERSTANDING NODE
// =============================================================================

func TestClassificationFailureIsTurnFatal(t *testing.T) {
	for name, reply := range map[string]string{
		"out of domain": `{"type":"poetry"}`,
		"not json":      "execution, probably",
		"missing field": `{"kind":"execution"}`,
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, Options{})
			f.client.Push(memoryQuiet()...)
			f.client.Push(perception.ScriptStep{Structured: reply}, perception.ScriptStep{Text: "must not run"})

			prior := f.state(t)
			next, out, err := f.graph.Run(context.Background(), "write a poem", prior)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrClassification)

			var te *TurnError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, NodeUnderstanding, te.Node)
			assert.Equal(t, te.Reason, out)
			if d := cmp.Diff(prior, next); d != "" {
				t.Errorf("state changed on failure (-prior +next):\n%s", d)
			}
			assert.Equal(t, 1, f.client.Remaining())
		})
	}
}

func TestClassificationToleratesFencesAndNodeNames(t *testing.T) {
	f := newFixture(t, Options{})
	f.client.Push(memoryQuiet()...)
	f.client.Push(perception.ScriptStep{Structured: "```json\n{\"type\": \"Execution_Node\"}\n```"}, perception.ScriptStep{Text: "ok"})

	next, _, err := f.graph.Run(context.Background(), "hi", f.state(t))
	require.NoError(t, err)
	assert.Equal(t, QueryExecution, next.QueryType)
}

func TestUnderstandingModelFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.client.Push(memoryQuiet()...)
	f.client.Push(perception.ScriptStep{Err: errors.New("503 from provider")})

	_, out, err := f.graph.Run(context.Background(), "hi", f.state(t))
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Contains(t, out, "Capability unavailable")
}

func TestCancelledTurn(t *testing.T) {
	f := newFixture(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := f.graph.Run(ctx, "hi", f.state(t))
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// FAILURE PROPAGATION
// =============================================================================

func TestNonRecoverableCapabilityAbortsTurn(t *testing.T) {
	reg := tools.NewRegistry()
	reg.MustRegister(&tools.Tool{
		Name:        "run_shell",
		Description: "Run a command",
		Category:    tools.CategoryShell,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "", tools.Fatalf(tools.KindUnavailable, "shell is not available")
		},
	})
	f := newFixture(t, Options{Registry: reg})
	f.client.Push(classify("execution"), toolCall("s1", "run_shell", nil), perception.ScriptStep{Text: "never"})

	prior := f.state(t)
	next, out, err := f.graph.Run(context.Background(), "ls", prior)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCapabilityAborted)
	assert.True(t, tools.IsNonRecoverable(err))
	assert.Contains(t, out, "run_shell")
	assert.Len(t, next.Messages, len(prior.Messages))
}

func TestExecutionModelFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.client.Push(memoryQuiet()...)
	f.client.Push(classify("execution"), perception.ScriptStep{Err: errors.New("connection refused")})

	_, out, err := f.graph.Run(context.Background(), "hi", f.state(t))
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.True(t, strings.HasPrefix(out, "Capability unavailable: the language model could not be reached"), out)
	assert.Contains(t, out, "connection refused")
}

// =============================================================================
// SCAFFOLDING ROUTE
// =============================================================================

func TestScaffoldingRunsTwoPhases(t *testing.T) {
	f := newFixture(t, Options{})
	f.client.Push(memoryQuiet()...)
	f.client.Push(
		classify("scaffolding"),
		toolCall("q1", scaffold.AskUser, map[string]any{"question": "Which framework?"}),
		toolCall("t1", scaffold.GetFrameworkTemplate, map[string]any{"framework": "react"}),
		perception.ScriptStep{Text: "1. Run the react setup script\n2. Write README.md"},
		toolCall("w1", core.CreateFile, map[string]any{"path": "app/README.md", "content": "# app\n"}),
		perception.ScriptStep{Text: "Project created in `app/`."},
	)

	prior := f.state(t)
	next, out, err := f.graph.Run(context.Background(), "create a new react app", prior)
	require.NoError(t, err)
	assert.Equal(t, "Project created in `app/`.", out)
	assert.Equal(t, QueryScaffolding, next.QueryType)
	require.Len(t, next.Messages, len(prior.Messages)+2)

	calls := f.client.Calls()
	require.Len(t, calls, 8)

	planning := calls[3]
	assert.ElementsMatch(t, []string{scaffold.AskUser, scaffold.GetFrameworkTemplate}, planning.Tools)
	assert.Contains(t, calls[4].Messages[len(calls[4].Messages)-1].Content, "User answered: react please")
	assert.Contains(t, calls[5].Messages[len(calls[5].Messages)-1].Content, "The setup script for react is:")

	build := calls[6]
	assert.Contains(t, build.Tools, core.CreateFile)
	assert.NotContains(t, build.Tools, scaffold.AskUser)
	assert.Contains(t, build.Messages[0].Content, "## Plan\n1. Run the react setup script")

	data, err := os.ReadFile(filepath.Join(f.root, "app", "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "# app\n", string(data))
}

// =============================================================================
// SUMMARIZATION
// =============================================================================

func history(n int) []types.Message {
	msgs := []types.Message{types.SystemMessage("base")}
	for i := 1; i < n; i++ {
		if i%2 == 1 {
			msgs = append(msgs, types.HumanMessage("q"))
		} else {
			msgs = append(msgs, types.AIMessage("a"))
		}
	}
	return msgs
}

func TestSummarizationCompactsWindow(t *testing.T) {
	f := newFixture(t, Options{})
	f.client.Push(perception.ScriptStep{Text: "User asked several questions."})

	tr := &turn{state: State{Messages: history(9)}}
	require.NoError(t, f.graph.summarizationNode(context.Background(), tr))

	require.Len(t, tr.state.Messages, 9-8+1)
	assert.Equal(t, "base", tr.state.Messages[0].Content)
	assert.True(t, IsSummary(tr.state.Messages[1]))
	assert.Contains(t, tr.state.Messages[1].Content, "User asked several questions.")

	calls := f.client.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Messages[1].Content, "human: q")
}

func TestSummarizationWindowKeepsTail(t *testing.T) {
	f := newFixture(t, Options{})
	f.client.Push(perception.ScriptStep{Text: "summary"})

	msgs := history(12)
	tr := &turn{state: State{Messages: msgs}}
	require.NoError(t, f.graph.summarizationNode(context.Background(), tr))

	// entries 1..9 collapse into one
	require.Len(t, tr.state.Messages, 12-9+1)
	if d := cmp.Diff(msgs[10:], tr.state.Messages[2:]); d != "" {
		t.Errorf("tail mismatch (-want +got):\n%s", d)
	}
}

func TestSummarizationDropsStaleMarker(t *testing.T) {
	f := newFixture(t, Options{})
	msgs := []types.Message{
		types.SystemMessage("base"),
		types.HumanMessage("q"),
		types.AIMessage("a"),
		SummaryMessage("old"),
	}
	tr := &turn{state: State{Messages: msgs}}
	require.NoError(t, f.graph.summarizationNode(context.Background(), tr))

	assert.Len(t, tr.state.Messages, 1)
	assert.Empty(t, f.client.Calls(), "dropping a marker needs no model call")
}

func TestSummarizationBelowThreshold(t *testing.T) {
	f := newFixture(t, Options{})
	msgs := []types.Message{types.SystemMessage("base"), SummaryMessage("fresh"), types.HumanMessage("q")}
	tr := &turn{state: State{Messages: msgs}}
	require.NoError(t, f.graph.summarizationNode(context.Background(), tr))
	assert.Len(t, tr.state.Messages, 3)
}

func TestSummarizationFailureKeepsHistory(t *testing.T) {
	f := newFixture(t, Options{})
	f.client.Push(perception.ScriptStep{Err: errors.New("timeout")})

	tr := &turn{state: State{Messages: history(10)}}
	require.NoError(t, f.graph.summarizationNode(context.Background(), tr))
	assert.Len(t, tr.state.Messages, 10)
}

func TestTurnCompactsInSameTurn(t *testing.T) {
	f := newFixture(t, Options{})
	f.client.Push(memoryQuiet()...)
	f.client.Push(classify("execution"), perception.ScriptStep{Text: "answer"}, perception.ScriptStep{Text: "summary of old turns"})

	prior := State{Messages: history(7)}
	next, out, err := f.graph.Run(context.Background(), "again", prior)
	require.NoError(t, err)
	assert.Equal(t, "answer", out)
	require.Len(t, next.Messages, 2)
	assert.True(t, IsSummary(next.Messages[1]))
}

// =============================================================================
// PERSISTENCE AND EVENTS
// =============================================================================

type recordedMessage struct {
	Thread, Role, Content string
}

type fakeHistory struct {
	msgs []recordedMessage
	ids  map[string]bool
}

func (h *fakeHistory) AppendMessage(ctx context.Context, threadID, messageID string, role types.Role, content string) error {
	if h.ids == nil {
		h.ids = map[string]bool{}
	}
	h.ids[messageID] = true
	h.msgs = append(h.msgs, recordedMessage{threadID, string(role), content})
	return nil
}

func TestTurnPersistsRawInput(t *testing.T) {
	hist := &fakeHistory{}
	f := newFixture(t, Options{History: hist})
	f.client.Push(perception.ScriptStep{Text: prompt.MemoryNotUpdated}, perception.ScriptStep{Text: "- likes Go"})
	f.client.Push(classify("execution"), perception.ScriptStep{Text: "sure"})

	state, err := f.graph.NewState("thread-1")
	require.NoError(t, err)
	_, _, err = f.graph.Run(context.Background(), "hello", state)
	require.NoError(t, err)

	want := []recordedMessage{
		{"thread-1", "human", "hello"},
		{"thread-1", "ai", "sure"},
	}
	if d := cmp.Diff(want, hist.msgs); d != "" {
		t.Errorf("persisted mismatch (-want +got):\n%s", d)
	}
	assert.Len(t, hist.ids, 2)
}

func TestNoPersistenceOnFailure(t *testing.T) {
	hist := &fakeHistory{}
	f := newFixture(t, Options{History: hist})
	f.client.Push(memoryQuiet()...)
	f.client.Push(perception.ScriptStep{Structured: `{"type":"nope"}`})

	state, err := f.graph.NewState("thread-1")
	require.NoError(t, err)
	_, _, err = f.graph.Run(context.Background(), "hello", state)
	require.Error(t, err)
	assert.Empty(t, hist.msgs)
}

func TestObserverSeesNodesAndTools(t *testing.T) {
	f := newFixture(t, Options{})
	var nodes []NodeID
	var toolEvents int
	f.graph.SetObserver(func(ev Event) {
		if ev.Tool != nil {
			toolEvents++
			return
		}
		nodes = append(nodes, ev.Node)
	})
	f.client.Push(memoryQuiet()...)
	f.client.Push(
		classify("execution"),
		toolCall("r", core.GetDirectoryTree, map[string]any{"path": "."}),
		perception.ScriptStep{Text: "empty project"},
	)

	_, _, err := f.graph.Run(context.Background(), "show the tree", f.state(t))
	require.NoError(t, err)

	want := []NodeID{NodeMemory, NodeUnderstanding, NodeExecution, NodeSummarization}
	if d := cmp.Diff(want, nodes); d != "" {
		t.Errorf("node order (-want +got):\n%s", d)
	}
	assert.Equal(t, 2, toolEvents)
}

// =============================================================================
// STATE HELPERS
// =============================================================================

func TestParseQueryType(t *testing.T) {
	tests := []struct {
		in   string
		want QueryType
		ok   bool
	}{
		{"execution", QueryExecution, true},
		{" Scaffolding ", QueryScaffolding, true},
		{"scaffolding_node", QueryScaffolding, true},
		{"memory", QueryUnset, false},
		{"", QueryUnset, false},
	}
	for _, tt := range tests {
		got, ok := ParseQueryType(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

func TestRouteTable(t *testing.T) {
	_, err := route(&State{})
	assert.ErrorIs(t, err, ErrClassification)

	next, err := route(&State{QueryType: QueryScaffolding})
	require.NoError(t, err)
	assert.Equal(t, NodeScaffolding, next)
}

func TestStateHistorySkipsBasePrompt(t *testing.T) {
	s := NewState("t", "base")
	s.Messages = append(s.Messages, types.HumanMessage("q"))
	assert.Len(t, s.History(), 1)

	sys, ok := s.SystemPrompt()
	assert.True(t, ok)
	assert.Equal(t, "base", sys)

	compacted := State{Messages: []types.Message{SummaryMessage("x")}}
	_, ok = compacted.SystemPrompt()
	assert.False(t, ok)
}
