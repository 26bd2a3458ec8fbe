package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"termcoder/internal/config"
	"termcoder/internal/graph"
	"termcoder/internal/logging"
	"termcoder/internal/memory"
	"termcoder/internal/perception"
	"termcoder/internal/prompt"
	"termcoder/internal/store"
	"termcoder/internal/tactile"
	"termcoder/internal/tools"
	"termcoder/internal/tools/core"
	"termcoder/internal/tools/memtools"
	"termcoder/internal/tools/scaffold"
	"termcoder/internal/tools/shell"
	"termcoder/internal/types"
)

// =============================================================================
// COMPOSITION ROOT
// =============================================================================

// appOptions selects which services a command needs.
type appOptions struct {
	// agents builds the model client, shells, capabilities and graph.
	agents bool

	// input answers shell prompts and clarifying questions.
	input types.InputFunc

	// confirm approves destructive capability calls.
	confirm tools.ConfirmFunc
}

// app owns every long-lived service. Nothing here is global; commands build
// one app and close it when they finish.
type app struct {
	cfg       *config.Config
	cfgPath   string
	workspace string

	client        types.LLMClient
	memory        *memory.Service
	memoryErr     error
	conversations *store.ConversationStore
	shells        *tactile.Manager
	registry      *tools.Registry
	graph         *graph.Graph
}

// loadConfig resolves the workspace and loads its configuration.
func loadConfig() (*config.Config, string, string, error) {
	ws := workspace
	if ws == "" {
		var err error
		if ws, err = config.FindWorkspaceRoot(); err != nil {
			return nil, "", "", fmt.Errorf("failed to detect workspace: %w", err)
		}
	}
	ws, err := filepath.Abs(ws)
	if err != nil {
		return nil, "", "", err
	}

	if err := config.LoadDotEnv(filepath.Join(ws, ".env")); err != nil {
		return nil, "", "", err
	}

	path := configPath
	if path == "" {
		path = config.DefaultPath(ws)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", "", err
	}
	cfg.Resolve(ws)
	return cfg, path, ws, nil
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, path, ws, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := logging.Initialize(ws, cfg.Logging.Settings()); err != nil {
		logger.Warn("file logging disabled", zap.Error(err))
	}
	logging.Boot("termcoder starting in %s (config %s)", ws, path)

	a := &app{cfg: cfg, cfgPath: path, workspace: ws}

	a.conversations, err = store.NewConversationStore(cfg.Conversation.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}

	// Memory is optional: an unreachable embedding provider or vector store
	// leaves the assistant working without it.
	a.memory, err = memory.NewFromConfig(ctx, cfg)
	if err != nil {
		logger.Warn("memory store unavailable", zap.Error(err))
		logging.MemoryWarn("Memory store unavailable: %v", err)
		a.memory, a.memoryErr = nil, err
	}

	if !opts.agents {
		return a, nil
	}
	if err := a.buildAgents(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) buildAgents(ctx context.Context, opts appOptions) error {
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration (%s): %w", a.cfgPath, err)
	}

	client, err := perception.NewClientFromConfig(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}
	a.client = client

	a.shells = tactile.NewManagerFromConfig(a.cfg, a.workspace, opts.input)

	a.registry = tools.NewRegistry()
	a.registry.SetTimeout(a.cfg.GetToolTimeout())
	a.registry.SetConfirm(opts.confirm)
	if err := core.RegisterAll(a.registry, core.NewWorkspace(a.workspace)); err != nil {
		return err
	}
	if err := shell.RegisterAll(a.registry, a.shells); err != nil {
		return err
	}
	if err := scaffold.RegisterAll(a.registry, opts.input); err != nil {
		return err
	}
	if a.memory != nil {
		if err := memtools.RegisterAll(a.registry, a.memory); err != nil {
			return err
		}
	}

	prompts, err := prompt.NewLibrary()
	if err != nil {
		return err
	}
	if _, err := prompts.LoadDir(filepath.Join(a.workspace, config.DirName, "prompts")); err != nil {
		return fmt.Errorf("failed to load prompt overrides: %w", err)
	}

	a.graph, err = graph.New(graph.Options{
		Client:           client,
		Registry:         a.registry,
		Prompts:          prompts,
		Environment:      prompt.HostEnvironment(a.workspace, a.cfg.Shell.Shell),
		MaxIterations:    a.cfg.Agent.MaxIterations,
		SummaryThreshold: a.cfg.Graph.SummaryThreshold,
		SummaryWindow:    a.cfg.Graph.SummaryWindow,
		History:          a.conversations,
	})
	if err != nil {
		return err
	}
	logging.Boot("agents ready: model=%s, %d capabilities", client.GetModel(), a.registry.Count())
	return nil
}

// Close releases every service. Safe on a partially built app.
func (a *app) Close() error {
	var errs []error
	if a.shells != nil {
		errs = append(errs, a.shells.StopAll())
	}
	if a.memory != nil {
		errs = append(errs, a.memory.Close())
	}
	if a.conversations != nil {
		errs = append(errs, a.conversations.Close())
	}
	logging.CloseAll()
	return errors.Join(errs...)
}

// =============================================================================
// TERMINAL INPUT
// =============================================================================

// stdinInput answers prompts from the controlling terminal.
func stdinInput(reader *bufio.Reader) types.InputFunc {
	return func(ctx context.Context, question string) (string, error) {
		fmt.Fprintf(os.Stderr, "\n%s\n> ", strings.TrimSpace(question))
		answer := make(chan string, 1)
		failed := make(chan error, 1)
		go func() {
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				failed <- err
				return
			}
			answer <- strings.TrimRight(line, "\r\n")
		}()
		select {
		case line := <-answer:
			return line, nil
		case err := <-failed:
			return "", fmt.Errorf("no answer available: %w", err)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// askConfirm turns an InputFunc into a yes/no confirm hook.
func askConfirm(input types.InputFunc) tools.ConfirmFunc {
	return func(ctx context.Context, tool string, args map[string]any) (bool, error) {
		question := fmt.Sprintf("Allow %s on %q? [y/N]", tool, types.ArgString(args, "path"))
		answer, err := input(ctx, question)
		if err != nil {
			return false, err
		}
		return isYes(answer), nil
	}
}

func isYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return true
	}
	return false
}
