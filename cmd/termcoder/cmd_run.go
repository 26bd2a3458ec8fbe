package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"termcoder/internal/logging"
)

// =============================================================================
// ONE-SHOT COMMAND
// =============================================================================

var runThread string

// runCmd sends a single request through the graph and prints the reply
var runCmd = &cobra.Command{
	Use:   "run <instruction...>",
	Short: "Run a single request and exit",
	Long: `Send one request through the agent graph and print the answer.

Clarifying questions and shell prompts are read from stdin. The
"search:" and "ter:" prefixes work the same as in chat.

Examples:
  termcoder run "add a --json flag to the list command"
  termcoder run --thread 4f0c... "now write tests for it"
  termcoder run "ter: go test ./..."`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInstruction,
}

func init() {
	runCmd.Flags().StringVar(&runThread, "thread", "", "Continue an existing thread")
}

func runInstruction(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	input := stdinInput(bufio.NewReader(os.Stdin))
	a, err := newApp(ctx, appOptions{agents: true, input: input, confirm: askConfirm(input)})
	if err != nil {
		return err
	}
	defer a.Close()

	conv, err := newAppConversation(ctx, a, runThread)
	if err != nil {
		return err
	}

	instruction := strings.Join(args, " ")
	logger.Debug("running instruction", zap.String("thread", conv.ID()), zap.Int("chars", len(instruction)))
	timer := logging.StartTimer(logging.CategorySession, "run")
	reply, err := conv.Handle(ctx, instruction)
	timer.Stop()

	if reply.Text != "" {
		printReply(reply)
	}
	if err != nil {
		return fmt.Errorf("request failed (thread %s): %w", conv.ID(), err)
	}
	if reply.Markdown {
		fmt.Fprintf(os.Stderr, "\nthread: %s\n", conv.ID())
	}
	return nil
}

// printReply writes a reply to stdout, rendering markdown when the
// terminal supports it.
func printReply(reply Reply) {
	if !reply.Markdown {
		fmt.Println(reply.Text)
		return
	}
	renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		fmt.Println(reply.Text)
		return
	}
	out, err := renderer.Render(reply.Text)
	if err != nil {
		fmt.Println(reply.Text)
		return
	}
	fmt.Print(out)
}
