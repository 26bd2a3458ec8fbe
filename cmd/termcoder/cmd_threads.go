package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// =============================================================================
// THREAD COMMANDS
// =============================================================================

// threadsCmd manages stored conversation threads
var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "Manage conversation threads",
	Long: `List and manage stored conversations.

Subcommands:
  list   - List all threads
  show   - Print a thread's messages
  rename - Change a thread's title
  delete - Remove a thread and its messages

Resume a thread with: termcoder chat --thread <id>`,
	RunE: runThreadsList,
}

var threadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all threads",
	RunE:  runThreadsList,
}

var threadsShowCmd = &cobra.Command{
	Use:   "show <thread-id>",
	Short: "Print a thread's messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runThreadsShow,
}

var threadsRenameCmd = &cobra.Command{
	Use:   "rename <thread-id> <title...>",
	Short: "Change a thread's title",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runThreadsRename,
}

var threadsDeleteCmd = &cobra.Command{
	Use:   "delete <thread-id>",
	Short: "Remove a thread",
	Args:  cobra.ExactArgs(1),
	RunE:  runThreadsDelete,
}

func init() {
	threadsCmd.AddCommand(threadsListCmd, threadsShowCmd, threadsRenameCmd, threadsDeleteCmd)
}

func withThreads(cmd *cobra.Command, fn func(a *app) error) error {
	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func runThreadsList(cmd *cobra.Command, args []string) error {
	return withThreads(cmd, func(a *app) error {
		threads, err := a.conversations.ListThreads(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list threads: %w", err)
		}
		if len(threads) == 0 {
			fmt.Println("No saved threads found.")
			return nil
		}

		fmt.Println("📁 Threads")
		fmt.Println(strings.Repeat("─", 70))
		for _, t := range threads {
			title := t.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("  %s  %s\n", t.ID, title)
			fmt.Printf("  %s  %d messages, last active %s\n",
				strings.Repeat(" ", len(t.ID)), t.Messages, lastActive(t.UpdatedAt, t.CreatedAt))
		}
		fmt.Println(strings.Repeat("─", 70))
		fmt.Printf("Total: %d threads\n", len(threads))
		fmt.Println("\nUse: termcoder chat --thread <thread-id>")
		return nil
	})
}

func runThreadsShow(cmd *cobra.Command, args []string) error {
	return withThreads(cmd, func(a *app) error {
		thread, err := a.conversations.GetThread(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		messages, err := a.conversations.GetMessages(cmd.Context(), thread.ID)
		if err != nil {
			return fmt.Errorf("failed to load messages: %w", err)
		}

		fmt.Printf("💬 %s\n", thread.Title)
		fmt.Println(strings.Repeat("─", 70))
		for _, m := range messages {
			fmt.Printf("[%s] %s\n%s\n\n", m.CreatedAt.Format("2006-01-02 15:04"), m.Role, m.Content)
		}
		return nil
	})
}

func runThreadsRename(cmd *cobra.Command, args []string) error {
	return withThreads(cmd, func(a *app) error {
		title := strings.Join(args[1:], " ")
		if err := a.conversations.RenameThread(cmd.Context(), args[0], title); err != nil {
			return fmt.Errorf("failed to rename thread: %w", err)
		}
		fmt.Printf("✅ Thread %s renamed to %q\n", args[0], title)
		return nil
	})
}

func runThreadsDelete(cmd *cobra.Command, args []string) error {
	return withThreads(cmd, func(a *app) error {
		if err := a.conversations.DeleteThread(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to delete thread: %w", err)
		}
		fmt.Printf("🗑️  Deleted thread %s\n", args[0])
		return nil
	})
}

func lastActive(updated, created time.Time) string {
	t := updated
	if t.UnixMilli() == 0 {
		t = created
	}
	return t.Format("2006-01-02 15:04")
}
