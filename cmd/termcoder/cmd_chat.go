package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"termcoder/cmd/termcoder/chat"
	"termcoder/internal/config"
	"termcoder/internal/graph"
	"termcoder/internal/logging"
	"termcoder/internal/session"
)

var chatThread string

// chatCmd starts the interactive interface
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the interactive chat interface (default)",
	Long: `Start an interactive session.

Type a request and press Enter. Special inputs:
  search: <query>   look up remembered preferences
  ter: <command>    run a command in the persistent shell
  bye | exit        leave the session`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatThread, "thread", "", "Resume an existing thread")
	rootCmd.Flags().StringVar(&chatThread, "thread", "", "Resume an existing thread")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	bridge := chat.NewBridge()
	a, err := newApp(ctx, appOptions{agents: true, input: bridge.Ask, confirm: askConfirm(bridge.Ask)})
	if err != nil {
		return err
	}
	defer a.Close()

	conv, err := newAppConversation(ctx, a, chatThread)
	if err != nil {
		return err
	}
	a.graph.SetObserver(func(ev graph.Event) {
		bridge.Progress(progressText(ev))
	})

	go func() {
		err := config.Watch(ctx, a.cfgPath, func(cfg *config.Config) {
			if err := logging.Reconfigure(cfg.Logging.Settings()); err != nil {
				logger.Warn("failed to apply logging settings", zap.Error(err))
			}
		})
		if err != nil {
			logger.Debug("config watcher stopped", zap.Error(err))
		}
	}()

	greeting := "Hi! What are we building today?"
	if a.memory == nil {
		greeting += "\n\n_Memory is unavailable this session; preferences will not be remembered._"
	}

	model := chat.New(ctx, chat.Config{
		ThreadID: conv.ID(),
		Model:    a.client.GetModel(),
		Greeting: greeting,
		Handler: func(ctx context.Context, line string) (chat.Response, error) {
			turnCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			reply, err := conv.Handle(turnCtx, line)
			return chat.Response{Text: reply.Text, Markdown: reply.Markdown, Quit: reply.Quit}, err
		},
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	bridge.Attach(p.Send)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat interface failed: %w", err)
	}
	fmt.Printf("Thread %s saved. Resume with: termcoder chat --thread %s\n", conv.ID(), conv.ID())
	return nil
}

// progressText describes a graph event for the status line.
func progressText(ev graph.Event) string {
	if ev.Tool == nil {
		return string(ev.Node)
	}
	switch ev.Tool.Kind {
	case session.EventToolCall:
		return fmt.Sprintf("%s: running %s", ev.Node, ev.Tool.Call.Name)
	default:
		return fmt.Sprintf("%s: %s finished", ev.Node, ev.Tool.Call.Name)
	}
}
