package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"termcoder/internal/graph"
	"termcoder/internal/logging"
	"termcoder/internal/memory"
	"termcoder/internal/store"
	"termcoder/internal/tactile"
	"termcoder/internal/tools/shell"
	"termcoder/internal/types"
)

// turnRunner is the orchestration graph as seen by the caller loop.
type turnRunner interface {
	NewState(threadID string) (graph.State, error)
	Run(ctx context.Context, query string, prior graph.State) (graph.State, string, error)
}

type memorySearcher interface {
	Search(ctx context.Context, query string, k int, threshold float64) ([]memory.Record, error)
	Threshold() float64
}

type commandRunner interface {
	Execute(ctx context.Context, kind tactile.Kind, command string, interactive bool) (*tactile.Result, error)
}

type threadStore interface {
	CreateThread(ctx context.Context, id, title string) error
	GetThread(ctx context.Context, id string) (*store.Thread, error)
	History(ctx context.Context, threadID string) ([]types.Message, error)
}

// Reply is the caller loop's answer to one input line.
type Reply struct {
	Text string
	Quit bool

	// Markdown marks model answers, which render through glamour.
	Markdown bool
}

const goodbye = "Goodbye!"

// conversation is the caller loop around the graph: it applies the input
// conventions and carries graph state from one turn to the next.
type conversation struct {
	id      string
	created bool
	state   graph.State

	graph   turnRunner
	memory  memorySearcher
	shells  commandRunner
	threads threadStore
}

// openConversation resumes threadID, or starts a new thread when empty.
// New threads are stored on the first graph turn.
func openConversation(ctx context.Context, g turnRunner, mem memorySearcher, shells commandRunner, threads threadStore, threadID string) (*conversation, error) {
	c := &conversation{graph: g, memory: mem, shells: shells, threads: threads}

	if threadID == "" {
		c.id = uuid.NewString()
		state, err := g.NewState(c.id)
		if err != nil {
			return nil, err
		}
		c.state = state
		return c, nil
	}

	if _, err := threads.GetThread(ctx, threadID); err != nil {
		return nil, err
	}
	history, err := threads.History(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load thread %s: %w", threadID, err)
	}
	state, err := g.NewState(threadID)
	if err != nil {
		return nil, err
	}
	state.Messages = append(state.Messages, history...)

	c.id = threadID
	c.created = true
	c.state = state
	logging.Session("Resumed thread %s with %d messages", threadID, len(history))
	return c, nil
}

// newAppConversation wires a conversation to the app's services.
func newAppConversation(ctx context.Context, a *app, threadID string) (*conversation, error) {
	var mem memorySearcher
	if a.memory != nil {
		mem = a.memory
	}
	return openConversation(ctx, a.graph, mem, a.shells, a.conversations, threadID)
}

// ID returns the thread id.
func (c *conversation) ID() string { return c.id }

// Handle processes one input line. Graph failures come back as a Reply
// carrying the human-readable reason together with the error.
func (c *conversation) Handle(ctx context.Context, line string) (Reply, error) {
	cmd := ParseInput(line)
	switch cmd.Kind {
	case CommandEmpty:
		return Reply{}, nil

	case CommandQuit:
		return Reply{Text: goodbye, Quit: true}, nil

	case CommandSearch:
		if c.memory == nil {
			return Reply{Text: "Memory is unavailable."}, nil
		}
		records, err := c.memory.Search(ctx, cmd.Arg, 0, c.memory.Threshold())
		if err != nil {
			return Reply{Text: "Memory search failed: " + err.Error()}, err
		}
		return Reply{Text: memory.FormatRecords(records)}, nil

	case CommandTerminal:
		res, err := c.shells.Execute(ctx, tactile.KindShell, cmd.Arg, true)
		if err != nil && !errors.Is(err, tactile.ErrTimeout) {
			return Reply{Text: "Shell error: " + err.Error()}, err
		}
		return Reply{Text: shell.FormatResult(res)}, nil
	}

	if !c.created {
		if err := c.threads.CreateThread(ctx, c.id, threadTitle(cmd.Arg)); err != nil && !errors.Is(err, store.ErrThreadExists) {
			logging.SessionWarn("Failed to create thread %s: %v", c.id, err)
		} else {
			c.created = true
		}
	}

	next, out, err := c.graph.Run(ctx, cmd.Arg, c.state)
	if err != nil {
		return Reply{Text: out}, err
	}
	c.state = next
	return Reply{Text: out, Markdown: true}, nil
}

// threadTitle derives a short title from the first request.
func threadTitle(query string) string {
	title := strings.Join(strings.Fields(query), " ")
	const max = 60
	if utf8.RuneCountInString(title) <= max {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:max])) + "…"
}
